package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// SyncedEventRepository provides data access for locally mirrored remote events.
type SyncedEventRepository struct {
	BaseRepository
}

// NewSyncedEventRepository creates a new synced event repository.
func NewSyncedEventRepository(db *DB) *SyncedEventRepository {
	return &SyncedEventRepository{BaseRepository: NewBaseRepository(db)}
}

const syncedEventColumns = `
	id, connection_id, external_id, title, description,
	starts_at, ends_at, all_day, location, attendees,
	recurrence, status, is_private, last_synced_at`

func scanSyncedEvent(row interface{ Scan(...any) error }) (*models.SyncedEvent, error) {
	ev := &models.SyncedEvent{}
	var attendees string
	err := row.Scan(
		&ev.ID, &ev.ConnectionID, &ev.ExternalID, &ev.Title, &ev.Description,
		&ev.StartsAt, &ev.EndsAt, &ev.AllDay, &ev.Location, &attendees,
		&ev.Recurrence, &ev.Status, &ev.IsPrivate, &ev.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Attendees = unmarshalStrings(attendees)
	return ev, nil
}

// UpsertBatch inserts or updates a batch of events inside one transaction,
// keyed by (connection_id, external_id). Insert on first sight; overwrite
// the mutable fields and refresh last_synced_at on every subsequent sight.
func (r *SyncedEventRepository) UpsertBatch(ctx context.Context, events []models.SyncedEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.Transaction(func(tx *sql.Tx) error {
		for i := range events {
			if err := r.upsert(ctx, tx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SyncedEventRepository) upsert(ctx context.Context, q Queryable, ev *models.SyncedEvent) error {
	if ev.ID == "" {
		ev.ID = GenerateID()
	}
	if ev.LastSyncedAt.IsZero() {
		ev.LastSyncedAt = r.Now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO synced_events (
			id, connection_id, external_id, title, description,
			starts_at, ends_at, all_day, location, attendees,
			recurrence, status, is_private, last_synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			all_day = excluded.all_day,
			location = excluded.location,
			attendees = excluded.attendees,
			recurrence = excluded.recurrence,
			status = excluded.status,
			is_private = excluded.is_private,
			last_synced_at = excluded.last_synced_at
	`,
		ev.ID, ev.ConnectionID, ev.ExternalID, ev.Title, ev.Description,
		ev.StartsAt, ev.EndsAt, ev.AllDay, ev.Location, marshalStrings(ev.Attendees),
		ev.Recurrence, ev.Status, ev.IsPrivate, ev.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting event %s: %w", ev.ExternalID, err)
	}
	return nil
}

// GetByExternalID retrieves one synced event by its upsert key.
// Returns (nil, nil) when no row exists.
func (r *SyncedEventRepository) GetByExternalID(ctx context.Context, connectionID, externalID string) (*models.SyncedEvent, error) {
	ev, err := scanSyncedEvent(r.DB().QueryRowContext(ctx,
		`SELECT `+syncedEventColumns+` FROM synced_events WHERE connection_id = ? AND external_id = ?`,
		connectionID, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying synced event: %w", err)
	}
	return ev, nil
}

// ListByConnection retrieves all events mirrored from one connection.
func (r *SyncedEventRepository) ListByConnection(ctx context.Context, connectionID string) ([]models.SyncedEvent, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+syncedEventColumns+` FROM synced_events WHERE connection_id = ? ORDER BY starts_at`,
		connectionID)
	if err != nil {
		return nil, fmt.Errorf("querying synced events: %w", err)
	}
	defer rows.Close()
	return collectSyncedEvents(rows)
}

// ListForUserWindow retrieves a user's synced events overlapping [start, end),
// joined through the user's connections.
func (r *SyncedEventRepository) ListForUserWindow(ctx context.Context, userID string, start, end time.Time) ([]models.SyncedEvent, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+syncedEventColumns+`
		FROM synced_events
		WHERE connection_id IN (SELECT id FROM sync_connections WHERE user_id = ?)
		  AND starts_at < ? AND ends_at > ?
		ORDER BY starts_at
	`, userID, end, start)
	if err != nil {
		return nil, fmt.Errorf("querying user events: %w", err)
	}
	defer rows.Close()
	return collectSyncedEvents(rows)
}

func collectSyncedEvents(rows *sql.Rows) ([]models.SyncedEvent, error) {
	var events []models.SyncedEvent
	for rows.Next() {
		ev, err := scanSyncedEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning synced event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// CountByConnection returns how many events are mirrored for a connection.
func (r *SyncedEventRepository) CountByConnection(ctx context.Context, connectionID string) (int, error) {
	var n int
	err := r.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM synced_events WHERE connection_id = ?", connectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting synced events: %w", err)
	}
	return n, nil
}
