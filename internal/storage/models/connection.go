// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Provider tags for sync connections.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderApple     = "apple"
)

// Sync status constants for a connection's health.
const (
	SyncStatusActive = "active"
	SyncStatusError  = "error"
	SyncStatusPaused = "paused"
)

// Sync direction constants.
const (
	DirectionImport        = "import"
	DirectionExport        = "export"
	DirectionBidirectional = "bidirectional"
)

// SyncConnection links a user to one external calendar account.
// Google and Microsoft connections carry OAuth tokens; Apple connections
// carry an iCloud email, app-specific password, and CalDAV URL.
type SyncConnection struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Provider         string     `json:"provider"`
	CalendarID       string     `json:"calendar_id"`
	CalendarName     string     `json:"calendar_name"`
	AccessToken      *string    `json:"-"`
	RefreshToken     *string    `json:"-"`
	TokenExpiry      *time.Time `json:"token_expiry,omitempty"`
	CalDAVURL        *string    `json:"caldav_url,omitempty"`
	CalDAVUsername   *string    `json:"caldav_username,omitempty"`
	CalDAVPassword   *string    `json:"-"`
	SyncDirection    string     `json:"sync_direction"`
	SyncFrequencyMin int        `json:"sync_frequency_min"`
	Settings         string     `json:"settings,omitempty"`
	IsPrimary        bool       `json:"is_primary"`
	SyncStatus       string     `json:"sync_status"`
	SyncError        *string    `json:"sync_error,omitempty"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// SyncedEvent is the local projection of one remote event, keyed by
// (connection_id, external_id) for upsert.
type SyncedEvent struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	ExternalID   string    `json:"external_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	AllDay       bool      `json:"all_day"`
	Location     string    `json:"location,omitempty"`
	Attendees    []string  `json:"attendees,omitempty"`
	Recurrence   string    `json:"recurrence,omitempty"`
	Status       string    `json:"status,omitempty"`
	IsPrivate    bool      `json:"is_private"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// SyncResult summarizes one orchestrated sync pass for a user.
type SyncResult struct {
	Success      bool                   `json:"success"`
	Message      string                 `json:"message"`
	EventsSynced int                    `json:"events_synced"`
	Connections  []ConnectionSyncResult `json:"connections,omitempty"`
}

// ConnectionSyncResult is the per-connection outcome within a sync pass.
type ConnectionSyncResult struct {
	ConnectionID string `json:"connection_id"`
	Provider     string `json:"provider"`
	CalendarName string `json:"calendar_name"`
	EventsSynced int    `json:"events_synced"`
	Error        string `json:"error,omitempty"`
}
