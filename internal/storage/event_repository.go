package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// EventRepository provides data access for internally created church events
// and their approval history.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{BaseRepository: NewBaseRepository(db)}
}

const eventColumns = `
	id, calendar_id, creator_id, title, description, location, resource,
	starts_at, ends_at, all_day, required_attendees, optional_attendees,
	approval_status, status, first_approver_id, final_approver_id,
	created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	ev := &models.Event{}
	var required, optional string
	err := row.Scan(
		&ev.ID, &ev.CalendarID, &ev.CreatorID, &ev.Title, &ev.Description, &ev.Location, &ev.Resource,
		&ev.StartsAt, &ev.EndsAt, &ev.AllDay, &required, &optional,
		&ev.ApprovalStatus, &ev.Status, &ev.FirstApproverID, &ev.FinalApproverID,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.RequiredAttendees = unmarshalStrings(required)
	ev.OptionalAttendees = unmarshalStrings(optional)
	return ev, nil
}

// Create inserts a new event in the pending/draft state.
func (r *EventRepository) Create(ctx context.Context, ev *models.Event) error {
	ev.ID = GenerateID()
	ev.CreatedAt = r.Now()
	ev.UpdatedAt = ev.CreatedAt
	if ev.ApprovalStatus == "" {
		ev.ApprovalStatus = models.ApprovalPending
	}
	if ev.Status == "" {
		ev.Status = models.EventDraft
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO events (
			id, calendar_id, creator_id, title, description, location, resource,
			starts_at, ends_at, all_day, required_attendees, optional_attendees,
			approval_status, status, first_approver_id, final_approver_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.CalendarID, ev.CreatorID, ev.Title, ev.Description, ev.Location, ev.Resource,
		ev.StartsAt, ev.EndsAt, ev.AllDay,
		marshalStrings(ev.RequiredAttendees), marshalStrings(ev.OptionalAttendees),
		ev.ApprovalStatus, ev.Status, ev.FirstApproverID, ev.FinalApproverID,
		ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by ID. Returns (nil, nil) when no row exists.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	ev, err := scanEvent(r.DB().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return ev, nil
}

// ListOverlapping retrieves events intersecting [start, end), optionally
// excluding one event (the one being edited). An empty excludeID excludes
// nothing.
func (r *EventRepository) ListOverlapping(ctx context.Context, start, end time.Time, excludeID string) ([]models.Event, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE starts_at < ? AND ends_at > ? AND id != ?
		  AND approval_status != ?
		ORDER BY starts_at
	`, end, start, excludeID, models.ApprovalRejected)
	if err != nil {
		return nil, fmt.Errorf("querying overlapping events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// ErrStaleEvent reports that an event's approval state moved underneath a
// transition; the caller decided against a snapshot that is no longer
// current.
var ErrStaleEvent = errors.New("event approval state changed concurrently")

// RecordTransition atomically updates an event's approval state, appends the
// history row, and (on final approval) flips publication status. The update
// is guarded by the expected previous status so two racing decisions cannot
// both land; the loser gets ErrStaleEvent and no history row. The history
// table is append-only; nothing here ever updates or deletes a history row.
func (r *EventRepository) RecordTransition(ctx context.Context, ev *models.Event, previous string, approval *models.EventApproval) error {
	approval.ID = GenerateID()
	approval.CreatedAt = r.Now()
	ev.UpdatedAt = approval.CreatedAt

	return r.Transaction(func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE events SET approval_status = ?, status = ?, updated_at = ?
			WHERE id = ? AND approval_status = ?
		`, ev.ApprovalStatus, ev.Status, ev.UpdatedAt, ev.ID, previous)
		if err != nil {
			return fmt.Errorf("updating event state: %w", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return fmt.Errorf("event %s from %s: %w", ev.ID, previous, ErrStaleEvent)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO event_approvals (id, event_id, approver_id, level, decision, comments, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, approval.ID, approval.EventID, approval.ApproverID, approval.Level, approval.Decision, approval.Comments, approval.CreatedAt)
		if err != nil {
			return fmt.Errorf("appending approval record: %w", err)
		}
		return nil
	})
}

// ApprovalHistory retrieves an event's approval records, oldest first.
func (r *EventRepository) ApprovalHistory(ctx context.Context, eventID string) ([]models.EventApproval, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, event_id, approver_id, level, decision, comments, created_at
		FROM event_approvals WHERE event_id = ? ORDER BY created_at
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying approval history: %w", err)
	}
	defer rows.Close()

	var records []models.EventApproval
	for rows.Next() {
		var rec models.EventApproval
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.ApproverID, &rec.Level, &rec.Decision, &rec.Comments, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning approval record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
