package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// microsoftEventsURL is the Microsoft Graph events endpoint for the signed-in user.
// See: https://learn.microsoft.com/en-us/graph/api/user-list-events
const microsoftEventsURL = "https://graph.microsoft.com/v1.0/me/events"

// MicrosoftProvider fetches events from Microsoft Graph. Same 401 contract as
// the Google provider: one refresh through the Microsoft identity platform,
// one retry, then hard failure.
type MicrosoftProvider struct {
	httpClient   *http.Client
	oauthConfig  *oauth2.Config
	eventsURL    string
	accessToken  string
	refreshToken string
	onToken      TokenUpdateFunc
}

// MicrosoftOption configures a MicrosoftProvider.
type MicrosoftOption func(*MicrosoftProvider)

// WithMicrosoftHTTPClient sets a custom HTTP client (for testing).
func WithMicrosoftHTTPClient(client *http.Client) MicrosoftOption {
	return func(p *MicrosoftProvider) { p.httpClient = client }
}

// WithMicrosoftEventsURL overrides the events endpoint (for testing).
func WithMicrosoftEventsURL(u string) MicrosoftOption {
	return func(p *MicrosoftProvider) { p.eventsURL = u }
}

// WithMicrosoftTokenEndpoint overrides the OAuth token endpoint (for testing).
func WithMicrosoftTokenEndpoint(ep oauth2.Endpoint) MicrosoftOption {
	return func(p *MicrosoftProvider) { p.oauthConfig.Endpoint = ep }
}

// WithMicrosoftTokenUpdate registers a callback invoked after a successful refresh.
func WithMicrosoftTokenUpdate(fn TokenUpdateFunc) MicrosoftOption {
	return func(p *MicrosoftProvider) { p.onToken = fn }
}

// NewMicrosoftProvider creates a Microsoft Graph calendar provider.
func NewMicrosoftProvider(creds OAuthCredentials, accessToken, refreshToken string, opts ...MicrosoftOption) *MicrosoftProvider {
	p := &MicrosoftProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		oauthConfig: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoints.Microsoft,
			Scopes:       []string{"offline_access", "Calendars.Read"},
		},
		eventsURL:    microsoftEventsURL,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetCalendarEvents fetches one page of the user's events within the window.
func (p *MicrosoftProvider) GetCalendarEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	events, status, err := p.fetch(ctx, timeMin, timeMax)
	if err == nil {
		return events, nil
	}
	if status != http.StatusUnauthorized {
		return nil, err
	}

	if err := refreshAccessToken(ctx, p.httpClient, p.oauthConfig, p.refreshToken, &p.accessToken, p.onToken); err != nil {
		return nil, fmt.Errorf("microsoft token refresh: %w", err)
	}

	events, status, err = p.fetch(ctx, timeMin, timeMax)
	if err != nil && status == http.StatusUnauthorized {
		return nil, fmt.Errorf("microsoft: unauthorized after token refresh: %w", err)
	}
	return events, err
}

func (p *MicrosoftProvider) fetch(ctx context.Context, timeMin, timeMax time.Time) ([]Event, int, error) {
	params := url.Values{}
	params.Set("$top", maxResults)
	params.Set("$orderby", "start/dateTime")
	params.Set("$filter", fmt.Sprintf("start/dateTime ge '%s' and start/dateTime le '%s'",
		timeMin.UTC().Format(time.RFC3339), timeMax.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.eventsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("microsoft events request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("microsoft events: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response microsoftEventsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("microsoft events: decoding response: %w", err)
	}

	events := make([]Event, 0, len(response.Value))
	for _, item := range response.Value {
		ev, ok := convertMicrosoftEvent(item)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, resp.StatusCode, nil
}

type microsoftEventsResponse struct {
	Value []microsoftEvent `json:"value"`
}

type microsoftEvent struct {
	ID          string              `json:"id"`
	Subject     string              `json:"subject"`
	BodyPreview string              `json:"bodyPreview"`
	IsAllDay    bool                `json:"isAllDay"`
	Start       microsoftDateTime   `json:"start"`
	End         microsoftDateTime   `json:"end"`
	Location    microsoftLocation   `json:"location"`
	Attendees   []microsoftAttendee `json:"attendees"`
	Recurrence  json.RawMessage     `json:"recurrence"`
	ShowAs      string              `json:"showAs"`
}

type microsoftDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type microsoftLocation struct {
	DisplayName string `json:"displayName"`
}

type microsoftAttendee struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// convertMicrosoftEvent maps a Graph item to the normalized shape. The
// recurrence object is kept verbatim as an opaque blob.
func convertMicrosoftEvent(item microsoftEvent) (Event, bool) {
	if item.ID == "" {
		return Event{}, false
	}

	start, ok := parseGraphTime(item.Start.DateTime)
	if !ok {
		return Event{}, false
	}
	end, ok := parseGraphTime(item.End.DateTime)
	if !ok {
		return Event{}, false
	}

	attendees := make([]string, 0, len(item.Attendees))
	for _, a := range item.Attendees {
		if a.EmailAddress.Address != "" {
			attendees = append(attendees, a.EmailAddress.Address)
		}
	}

	recurrence := ""
	if len(item.Recurrence) > 0 && string(item.Recurrence) != "null" {
		recurrence = string(item.Recurrence)
	}

	return Event{
		ExternalID:  item.ID,
		Title:       item.Subject,
		Description: item.BodyPreview,
		StartsAt:    start,
		EndsAt:      end,
		AllDay:      item.IsAllDay,
		Location:    item.Location.DisplayName,
		Attendees:   attendees,
		Recurrence:  recurrence,
		Status:      item.ShowAs,
	}, true
}

// parseGraphTime parses Graph's fractional-second timestamps, which arrive in
// UTC because of the Prefer header.
func parseGraphTime(s string) (time.Time, bool) {
	if len(s) >= 19 {
		s = s[:19]
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
