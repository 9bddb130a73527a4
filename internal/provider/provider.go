// Package provider wraps the external calendar vendors (Google, Microsoft,
// Apple/CalDAV) behind one capability-polymorphic interface so the sync
// orchestrator can treat them uniformly.
package provider

import (
	"context"
	"time"
)

// Event is the normalized shape every provider maps its vendor payload into.
// Recurrence is carried as an opaque string; occurrences are never expanded.
type Event struct {
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Recurrence  string    `json:"recurrence,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// Provider fetches events from one external calendar account within a time
// window. Implementations issue a single bounded request (page size capped);
// pagination is not followed.
type Provider interface {
	GetCalendarEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error)
}

// OAuthCredentials are the server-side client credentials used for token
// refresh against a vendor's OAuth endpoint.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
}

// TokenUpdateFunc is called after a successful refresh so the caller can
// persist the new access token. Failures to persist are the caller's concern.
type TokenUpdateFunc func(ctx context.Context, accessToken string, expiry time.Time)
