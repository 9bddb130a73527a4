package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/caldav"
)

// AppleProvider serves iCloud-style accounts over CalDAV. It satisfies the
// same Provider shape as the OAuth providers; the first discovered calendar
// is treated as primary and no choice among multiple calendars is modeled.
type AppleProvider struct {
	client      *caldav.Client
	calendarURL string
}

// NewAppleProvider creates a CalDAV-backed provider. baseURL may be empty to
// use the default iCloud endpoint; password must be an app-specific password.
func NewAppleProvider(email, appPassword, baseURL string) *AppleProvider {
	return &AppleProvider{client: caldav.NewClient(baseURL, email, appPassword)}
}

// NewAppleProviderWithClient injects a prebuilt CalDAV client (for testing).
func NewAppleProviderWithClient(client *caldav.Client) *AppleProvider {
	return &AppleProvider{client: client}
}

// DiscoverCalendars enumerates the account's calendars. A connection is only
// considered valid when this returns at least one calendar.
func (p *AppleProvider) DiscoverCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	return p.client.DiscoverCalendars(ctx)
}

// GetCalendarEvents fetches events from the primary calendar, discovering it
// on first use.
func (p *AppleProvider) GetCalendarEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	if p.calendarURL == "" {
		calendars, err := p.client.DiscoverCalendars(ctx)
		if err != nil {
			return nil, fmt.Errorf("apple calendar discovery: %w", err)
		}
		if len(calendars) == 0 {
			return nil, fmt.Errorf("apple: no calendars found for account")
		}
		p.calendarURL = calendars[0].URL
	}

	raw, err := p.client.GetCalendarEvents(ctx, p.calendarURL, timeMin, timeMax)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, e := range raw {
		events = append(events, Event{
			ExternalID:  e.UID,
			Title:       e.Summary,
			Description: e.Description,
			StartsAt:    e.StartsAt,
			EndsAt:      e.EndsAt,
			AllDay:      e.AllDay,
			Location:    e.Location,
			Recurrence:  e.RRule,
			Status:      e.Status,
		})
	}
	return events, nil
}
