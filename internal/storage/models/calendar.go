package models

import (
	"time"
)

// Calendar levels, from widest to narrowest scope.
const (
	LevelNetwork  = "network"
	LevelChurch   = "church"
	LevelMinistry = "ministry"
	LevelPersonal = "personal"
)

// Permission levels for calendar grants.
const (
	PermissionView = "view"
	PermissionEdit = "edit"
)

// Calendar is a named scheduling surface. Exactly one owner reference is set
// depending on level; network calendars have no owner and are visible to
// every church.
type Calendar struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	Level       string    `json:"level"`
	ChurchID    *string   `json:"church_id,omitempty"`
	MinistryID  *string   `json:"ministry_id,omitempty"`
	UserID      *string   `json:"user_id,omitempty"`
	Active      bool      `json:"active"`
	Settings    string    `json:"settings,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidLevel reports whether s names a known calendar level.
func ValidLevel(s string) bool {
	switch s {
	case LevelNetwork, LevelChurch, LevelMinistry, LevelPersonal:
		return true
	}
	return false
}

// CalendarPermission grants a church, user, or role access to a calendar.
// A grant is effective only while active and, if an expiry is set, not yet
// expired.
type CalendarPermission struct {
	ID         string     `json:"id"`
	CalendarID string     `json:"calendar_id"`
	ChurchID   *string    `json:"church_id,omitempty"`
	UserID     *string    `json:"user_id,omitempty"`
	Role       *string    `json:"role,omitempty"`
	Level      string     `json:"level"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Effective reports whether the grant applies at the given instant.
func (p *CalendarPermission) Effective(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	return true
}
