package models

import (
	"time"
)

// Availability block kinds.
const (
	BlockBusy        = "busy"
	BlockFree        = "free"
	BlockTentative   = "tentative"
	BlockOutOfOffice = "out_of_office"
)

// AvailabilityBlock is a materialized busy/free block for a user on a date,
// derived from their synced personal calendars. When IsPrivate is set the
// title is suppressed for other viewers but the busy signal remains.
type AvailabilityBlock struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Date          string    `json:"date"` // YYYY-MM-DD
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Kind          string    `json:"kind"`
	Title         *string   `json:"title,omitempty"`
	IsPrivate     bool      `json:"is_private"`
	SourceEventID *string   `json:"source_event_id,omitempty"`
}
