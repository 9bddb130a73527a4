// Package conflict classifies scheduling conflicts for a proposed event time
// against existing internal and synced events.
package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// Conflict types.
const (
	TypeTimeOverlap      = "time_overlap"
	TypeResourceConflict = "resource_conflict"
	TypePersonConflict   = "person_conflict"
	TypeLocationConflict = "location_conflict"
)

// Severities. Assignment is deterministic: a person conflict involving a
// required attendee is critical; resource and location clashes are major; a
// plain time overlap is minor when the overlap is at most 15 minutes and
// major otherwise.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

const softOverlap = 15 * time.Minute

// Conflict is a transient classification record. Never persisted; recomputed
// on every query.
type Conflict struct {
	Type          string    `json:"type"`
	Severity      string    `json:"severity"`
	Description   string    `json:"description"`
	EventID       string    `json:"event_id,omitempty"`
	EventTitle    string    `json:"event_title,omitempty"`
	EventStart    time.Time `json:"event_start,omitempty"`
	EventEnd      time.Time `json:"event_end,omitempty"`
	Location      string    `json:"location,omitempty"`
	AffectedUsers []string  `json:"affected_users,omitempty"`
	Suggestions   []string  `json:"suggestions,omitempty"`
}

// Request describes a proposed booking to check.
type Request struct {
	Start             time.Time     `json:"start"`
	Duration          time.Duration `json:"duration"`
	UserID            string        `json:"user_id,omitempty"`
	ExcludeEventID    string        `json:"exclude_event_id,omitempty"`
	Location          string        `json:"location,omitempty"`
	Resource          string        `json:"resource,omitempty"`
	RequiredAttendees []string      `json:"required_attendees,omitempty"`
}

// FindEventsFunc queries internal events overlapping [start, end), excluding
// one event id (empty excludes nothing).
type FindEventsFunc func(ctx context.Context, start, end time.Time, excludeID string) ([]models.Event, error)

// FindUserBusyFunc queries a user's synced events overlapping [start, end).
type FindUserBusyFunc func(ctx context.Context, userID string, start, end time.Time) ([]models.SyncedEvent, error)

// Detector runs read-only, idempotent conflict checks. Query functions are
// injected so the classification logic is testable without a store.
type Detector struct {
	findEvents   FindEventsFunc
	findUserBusy FindUserBusyFunc
}

// NewDetector creates a conflict detector.
func NewDetector(findEvents FindEventsFunc, findUserBusy FindUserBusyFunc) *Detector {
	return &Detector{findEvents: findEvents, findUserBusy: findUserBusy}
}

// CheckConflicts classifies every overlap with the proposed slot. An empty
// result means no conflicts; a store failure returns an error, which callers
// must treat as "couldn't determine", never as "safe to book".
func (d *Detector) CheckConflicts(ctx context.Context, req Request) ([]Conflict, error) {
	if req.Duration <= 0 {
		return nil, fmt.Errorf("conflict check: duration must be positive")
	}
	start := req.Start
	end := start.Add(req.Duration)

	events, err := d.findEvents(ctx, start, end, req.ExcludeEventID)
	if err != nil {
		return nil, fmt.Errorf("querying overlapping events: %w", err)
	}

	conflicts := []Conflict{}
	for i := range events {
		conflicts = append(conflicts, d.classify(&events[i], req, start, end)...)
	}

	if req.UserID != "" && d.findUserBusy != nil {
		busy, err := d.findUserBusy(ctx, req.UserID, start, end)
		if err != nil {
			return nil, fmt.Errorf("querying user busy blocks: %w", err)
		}
		for i := range busy {
			conflicts = append(conflicts, busyConflict(&busy[i], start, end))
		}
	}

	return conflicts, nil
}

// classify produces every applicable conflict for one overlapping event.
// A single event can both double-book a room and collide with a required
// attendee; each case is reported separately.
func (d *Detector) classify(ev *models.Event, req Request, start, end time.Time) []Conflict {
	overlapStart, overlapEnd := overlap(start, end, ev.StartsAt, ev.EndsAt)
	var conflicts []Conflict

	if shared := intersect(req.RequiredAttendees, ev.RequiredAttendees); len(shared) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:     TypePersonConflict,
			Severity: SeverityCritical,
			Description: fmt.Sprintf("%s is already committed to %q from %s to %s",
				strings.Join(shared, ", "), ev.Title, clock(ev.StartsAt), clock(ev.EndsAt)),
			EventID:       ev.ID,
			EventTitle:    ev.Title,
			EventStart:    ev.StartsAt,
			EventEnd:      ev.EndsAt,
			Location:      ev.Location,
			AffectedUsers: shared,
			Suggestions:   shiftSuggestions(req, ev.EndsAt),
		})
	}

	if req.Resource != "" && ev.Resource != "" && strings.EqualFold(req.Resource, ev.Resource) {
		conflicts = append(conflicts, Conflict{
			Type:     TypeResourceConflict,
			Severity: SeverityMajor,
			Description: fmt.Sprintf("resource %q is double-booked by %q from %s to %s",
				ev.Resource, ev.Title, clock(ev.StartsAt), clock(ev.EndsAt)),
			EventID:     ev.ID,
			EventTitle:  ev.Title,
			EventStart:  ev.StartsAt,
			EventEnd:    ev.EndsAt,
			Location:    ev.Location,
			Suggestions: append(shiftSuggestions(req, ev.EndsAt), "use an alternate resource"),
		})
	}

	if req.Location != "" && ev.Location != "" && strings.EqualFold(req.Location, ev.Location) {
		conflicts = append(conflicts, Conflict{
			Type:     TypeLocationConflict,
			Severity: SeverityMajor,
			Description: fmt.Sprintf("%q is already booked in %s from %s to %s",
				ev.Title, ev.Location, clock(ev.StartsAt), clock(ev.EndsAt)),
			EventID:     ev.ID,
			EventTitle:  ev.Title,
			EventStart:  ev.StartsAt,
			EventEnd:    ev.EndsAt,
			Location:    ev.Location,
			Suggestions: append(shiftSuggestions(req, ev.EndsAt), "use an alternate room"),
		})
	}

	if len(conflicts) == 0 {
		severity := SeverityMajor
		if overlapEnd.Sub(overlapStart) <= softOverlap {
			severity = SeverityMinor
		}
		conflicts = append(conflicts, Conflict{
			Type:     TypeTimeOverlap,
			Severity: severity,
			Description: fmt.Sprintf("overlaps %q from %s to %s",
				ev.Title, clock(overlapStart), clock(overlapEnd)),
			EventID:     ev.ID,
			EventTitle:  ev.Title,
			EventStart:  ev.StartsAt,
			EventEnd:    ev.EndsAt,
			Location:    ev.Location,
			Suggestions: shiftSuggestions(req, ev.EndsAt),
		})
	}

	return conflicts
}

// busyConflict reports an overlap with the proposing user's own synced
// calendar. Private events keep their busy signal but not their title.
func busyConflict(ev *models.SyncedEvent, start, end time.Time) Conflict {
	overlapStart, overlapEnd := overlap(start, end, ev.StartsAt, ev.EndsAt)
	severity := SeverityMajor
	if overlapEnd.Sub(overlapStart) <= softOverlap {
		severity = SeverityMinor
	}

	title := ev.Title
	if ev.IsPrivate {
		title = "a private event"
	} else {
		title = fmt.Sprintf("%q", title)
	}

	return Conflict{
		Type:     TypeTimeOverlap,
		Severity: severity,
		Description: fmt.Sprintf("your calendar has %s from %s to %s",
			title, clock(ev.StartsAt), clock(ev.EndsAt)),
		EventID:     ev.ID,
		EventStart:  ev.StartsAt,
		EventEnd:    ev.EndsAt,
		Suggestions: []string{suggestShift(end.Sub(start), ev.EndsAt)},
	}
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time) {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	return start, end
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[strings.ToLower(v)] = true
	}
	var shared []string
	for _, v := range a {
		if set[strings.ToLower(v)] {
			shared = append(shared, v)
		}
	}
	return shared
}

func shiftSuggestions(req Request, conflictEnd time.Time) []string {
	return []string{suggestShift(req.Duration, conflictEnd)}
}

// suggestShift proposes the next half-hour boundary at or after the
// conflicting event ends.
func suggestShift(duration time.Duration, conflictEnd time.Time) string {
	shifted := conflictEnd.Round(30 * time.Minute)
	if shifted.Before(conflictEnd) {
		shifted = shifted.Add(30 * time.Minute)
	}
	return fmt.Sprintf("shift to %s or later", clock(shifted))
}

func clock(t time.Time) string {
	return t.Format("15:04")
}
