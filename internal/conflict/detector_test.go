package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

var noon = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func staticEvents(events ...models.Event) FindEventsFunc {
	return func(ctx context.Context, start, end time.Time, excludeID string) ([]models.Event, error) {
		var out []models.Event
		for _, ev := range events {
			if ev.ID == excludeID {
				continue
			}
			if ev.StartsAt.Before(end) && ev.EndsAt.After(start) {
				out = append(out, ev)
			}
		}
		return out, nil
	}
}

func noBusy(ctx context.Context, userID string, start, end time.Time) ([]models.SyncedEvent, error) {
	return nil, nil
}

func TestCheckConflicts_NoOverlap(t *testing.T) {
	existing := models.Event{
		ID:       "ev-1",
		Title:    "Morning Prayer",
		StartsAt: noon.Add(-3 * time.Hour),
		EndsAt:   noon.Add(-2 * time.Hour),
	}
	d := NewDetector(staticEvents(existing), noBusy)

	conflicts, err := d.CheckConflicts(context.Background(), Request{
		Start:    noon,
		Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("CheckConflicts returned error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("expected no conflicts, got %+v", conflicts)
	}
}

func TestCheckConflicts_BackToBackIsClear(t *testing.T) {
	existing := models.Event{
		ID:       "ev-1",
		Title:    "Setup",
		StartsAt: noon.Add(-time.Hour),
		EndsAt:   noon,
	}
	d := NewDetector(staticEvents(existing), noBusy)

	conflicts, err := d.CheckConflicts(context.Background(), Request{
		Start:    noon,
		Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("CheckConflicts returned error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("back-to-back events must not conflict, got %+v", conflicts)
	}
}

func TestCheckConflicts_TimeOverlapSeverity(t *testing.T) {
	tests := []struct {
		name         string
		eventStart   time.Time
		eventEnd     time.Time
		wantSeverity string
	}{
		{
			name:         "ten minute overlap is minor",
			eventStart:   noon.Add(50 * time.Minute),
			eventEnd:     noon.Add(2 * time.Hour),
			wantSeverity: SeverityMinor,
		},
		{
			name:         "full overlap is major",
			eventStart:   noon,
			eventEnd:     noon.Add(time.Hour),
			wantSeverity: SeverityMajor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := models.Event{
				ID:       "ev-1",
				Title:    "Choir Practice",
				StartsAt: tt.eventStart,
				EndsAt:   tt.eventEnd,
			}
			d := NewDetector(staticEvents(existing), noBusy)

			conflicts, err := d.CheckConflicts(context.Background(), Request{
				Start:    noon,
				Duration: time.Hour,
			})
			if err != nil {
				t.Fatalf("CheckConflicts returned error: %v", err)
			}
			if len(conflicts) != 1 {
				t.Fatalf("expected 1 conflict, got %d", len(conflicts))
			}
			if conflicts[0].Type != TypeTimeOverlap {
				t.Errorf("Type = %q", conflicts[0].Type)
			}
			if conflicts[0].Severity != tt.wantSeverity {
				t.Errorf("Severity = %q, want %q", conflicts[0].Severity, tt.wantSeverity)
			}
			if len(conflicts[0].Suggestions) == 0 {
				t.Error("conflict carries no resolution suggestions")
			}
		})
	}
}

func TestCheckConflicts_PersonConflictIsCritical(t *testing.T) {
	existing := models.Event{
		ID:                "ev-1",
		Title:             "Deacon Meeting",
		StartsAt:          noon,
		EndsAt:            noon.Add(time.Hour),
		RequiredAttendees: []string{"Pastor Kim", "Elder Lee"},
	}
	d := NewDetector(staticEvents(existing), noBusy)

	conflicts, err := d.CheckConflicts(context.Background(), Request{
		Start:             noon.Add(30 * time.Minute),
		Duration:          time.Hour,
		RequiredAttendees: []string{"pastor kim"},
	})
	if err != nil {
		t.Fatalf("CheckConflicts returned error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}

	c := conflicts[0]
	if c.Type != TypePersonConflict {
		t.Errorf("Type = %q", c.Type)
	}
	if c.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", c.Severity)
	}
	if len(c.AffectedUsers) != 1 {
		t.Errorf("AffectedUsers = %v", c.AffectedUsers)
	}
}

func TestCheckConflicts_LocationAndResource(t *testing.T) {
	existing := models.Event{
		ID:       "ev-1",
		Title:    "Youth Group",
		StartsAt: noon,
		EndsAt:   noon.Add(2 * time.Hour),
		Location: "Fellowship Hall",
		Resource: "Projector",
	}
	d := NewDetector(staticEvents(existing), noBusy)

	conflicts, err := d.CheckConflicts(context.Background(), Request{
		Start:    noon,
		Duration: time.Hour,
		Location: "fellowship hall",
		Resource: "projector",
	})
	if err != nil {
		t.Fatalf("CheckConflicts returned error: %v", err)
	}

	types := map[string]bool{}
	for _, c := range conflicts {
		types[c.Type] = true
		if c.Severity != SeverityMajor {
			t.Errorf("%s severity = %q, want major", c.Type, c.Severity)
		}
	}
	if !types[TypeLocationConflict] || !types[TypeResourceConflict] {
		t.Errorf("conflict types = %v, want both location and resource", types)
	}
}

func TestCheckConflicts_ExcludesEventUnderEdit(t *testing.T) {
	existing := models.Event{
		ID:       "ev-1",
		Title:    "Being Edited",
		StartsAt: noon,
		EndsAt:   noon.Add(time.Hour),
	}
	d := NewDetector(staticEvents(existing), noBusy)

	conflicts, err := d.CheckConflicts(context.Background(), Request{
		Start:          noon,
		Duration:       time.Hour,
		ExcludeEventID: "ev-1",
	})
	if err != nil {
		t.Fatalf("CheckConflicts returned error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("event under edit conflicted with itself: %+v", conflicts)
	}
}

func TestCheckConflicts_UserBusyFromSyncedCalendar(t *testing.T) {
	busy := func(ctx context.Context, userID string, start, end time.Time) ([]models.SyncedEvent, error) {
		return []models.SyncedEvent{{
			ID:        "se-1",
			Title:     "Dentist",
			StartsAt:  noon,
			EndsAt:    noon.Add(time.Hour),
			IsPrivate: true,
		}}, nil
	}
	d := NewDetector(staticEvents(), busy)

	conflicts, err := d.CheckConflicts(context.Background(), Request{
		Start:    noon,
		Duration: time.Hour,
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("CheckConflicts returned error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	// A private synced event keeps its busy signal but not its title.
	if conflicts[0].Description == "" || containsTitle(conflicts[0].Description, "Dentist") {
		t.Errorf("private title leaked: %q", conflicts[0].Description)
	}
}

func TestCheckConflicts_StoreFailureFailsClosed(t *testing.T) {
	failing := func(ctx context.Context, start, end time.Time, excludeID string) ([]models.Event, error) {
		return nil, errors.New("store unreachable")
	}
	d := NewDetector(failing, noBusy)

	_, err := d.CheckConflicts(context.Background(), Request{
		Start:    noon,
		Duration: time.Hour,
	})
	if err == nil {
		t.Fatal("store failure must surface as an error, never as no-conflicts")
	}
}

func containsTitle(description, title string) bool {
	for i := 0; i+len(title) <= len(description); i++ {
		if description[i:i+len(title)] == title {
			return true
		}
	}
	return false
}
