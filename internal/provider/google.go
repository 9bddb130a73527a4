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

// googleEventsURL is the events.list endpoint for the primary calendar.
// See: https://developers.google.com/calendar/api/v3/reference/events/list
const googleEventsURL = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

// maxResults caps every provider fetch at one page.
const maxResults = "250"

// GoogleProvider fetches events from the Google Calendar REST API for the
// account's primary calendar. On a 401 it performs exactly one token refresh
// through the Google OAuth endpoint and retries once; a second 401 is a hard
// failure.
type GoogleProvider struct {
	httpClient   *http.Client
	oauthConfig  *oauth2.Config
	eventsURL    string
	accessToken  string
	refreshToken string
	onToken      TokenUpdateFunc
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleHTTPClient sets a custom HTTP client (for testing).
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(p *GoogleProvider) { p.httpClient = client }
}

// WithGoogleEventsURL overrides the events endpoint (for testing).
func WithGoogleEventsURL(u string) GoogleOption {
	return func(p *GoogleProvider) { p.eventsURL = u }
}

// WithGoogleTokenEndpoint overrides the OAuth token endpoint (for testing).
func WithGoogleTokenEndpoint(ep oauth2.Endpoint) GoogleOption {
	return func(p *GoogleProvider) { p.oauthConfig.Endpoint = ep }
}

// WithGoogleTokenUpdate registers a callback invoked after a successful refresh.
func WithGoogleTokenUpdate(fn TokenUpdateFunc) GoogleOption {
	return func(p *GoogleProvider) { p.onToken = fn }
}

// NewGoogleProvider creates a Google Calendar provider.
func NewGoogleProvider(creds OAuthCredentials, accessToken, refreshToken string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		oauthConfig: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoints.Google,
		},
		eventsURL:    googleEventsURL,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetCalendarEvents fetches one page of primary-calendar events within the window.
func (p *GoogleProvider) GetCalendarEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	events, status, err := p.fetch(ctx, timeMin, timeMax)
	if err == nil {
		return events, nil
	}
	if status != http.StatusUnauthorized {
		return nil, err
	}

	if err := refreshAccessToken(ctx, p.httpClient, p.oauthConfig, p.refreshToken, &p.accessToken, p.onToken); err != nil {
		return nil, fmt.Errorf("google token refresh: %w", err)
	}

	events, status, err = p.fetch(ctx, timeMin, timeMax)
	if err != nil && status == http.StatusUnauthorized {
		return nil, fmt.Errorf("google: unauthorized after token refresh: %w", err)
	}
	return events, err
}

func (p *GoogleProvider) fetch(ctx context.Context, timeMin, timeMax time.Time) ([]Event, int, error) {
	params := url.Values{}
	params.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	params.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	params.Set("maxResults", maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.eventsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("google events request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("google events: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response googleEventsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("google events: decoding response: %w", err)
	}

	events := make([]Event, 0, len(response.Items))
	for _, item := range response.Items {
		ev, ok := convertGoogleEvent(item)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, resp.StatusCode, nil
}

type googleEventsResponse struct {
	Items []googleEvent `json:"items"`
}

type googleEvent struct {
	ID          string           `json:"id"`
	Summary     string           `json:"summary"`
	Description string           `json:"description"`
	Location    string           `json:"location"`
	Status      string           `json:"status"`
	Start       googleEventTime  `json:"start"`
	End         googleEventTime  `json:"end"`
	Attendees   []googleAttendee `json:"attendees"`
	Recurrence  []string         `json:"recurrence"`
}

type googleEventTime struct {
	Date     string `json:"date"`
	DateTime string `json:"dateTime"`
}

type googleAttendee struct {
	Email string `json:"email"`
}

// convertGoogleEvent maps a vendor item to the normalized shape. An event is
// all-day when the start carries a bare date and no dateTime.
func convertGoogleEvent(item googleEvent) (Event, bool) {
	if item.ID == "" {
		return Event{}, false
	}

	start, allDay, ok := parseGoogleTime(item.Start)
	if !ok {
		return Event{}, false
	}
	end, _, ok := parseGoogleTime(item.End)
	if !ok {
		return Event{}, false
	}

	attendees := make([]string, 0, len(item.Attendees))
	for _, a := range item.Attendees {
		if a.Email != "" {
			attendees = append(attendees, a.Email)
		}
	}

	return Event{
		ExternalID:  item.ID,
		Title:       item.Summary,
		Description: item.Description,
		StartsAt:    start,
		EndsAt:      end,
		AllDay:      allDay,
		Location:    item.Location,
		Attendees:   attendees,
		Recurrence:  strings.Join(item.Recurrence, "\n"),
		Status:      item.Status,
	}, true
}

func parseGoogleTime(t googleEventTime) (time.Time, bool, bool) {
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, false, true
	}
	if t.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", t.Date, time.Local)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, true, true
	}
	return time.Time{}, false, false
}
