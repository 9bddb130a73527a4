package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/church-connect/backend/internal/storage/models"
)

// AvailabilityRepository provides data access for materialized availability blocks.
type AvailabilityRepository struct {
	BaseRepository
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *DB) *AvailabilityRepository {
	return &AvailabilityRepository{BaseRepository: NewBaseRepository(db)}
}

// ReplaceRange atomically replaces a user's availability blocks for a span of
// dates (inclusive, YYYY-MM-DD) with a freshly derived set.
func (r *AvailabilityRepository) ReplaceRange(ctx context.Context, userID, fromDate, toDate string, blocks []models.AvailabilityBlock) error {
	return r.Transaction(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM personal_availability WHERE user_id = ? AND date >= ? AND date <= ?
		`, userID, fromDate, toDate)
		if err != nil {
			return fmt.Errorf("clearing availability: %w", err)
		}

		for i := range blocks {
			b := &blocks[i]
			if b.ID == "" {
				b.ID = GenerateID()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO personal_availability (id, user_id, date, starts_at, ends_at, kind, title, is_private, source_event_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, b.ID, b.UserID, b.Date, b.StartsAt, b.EndsAt, b.Kind, b.Title, b.IsPrivate, b.SourceEventID)
			if err != nil {
				return fmt.Errorf("inserting availability block: %w", err)
			}
		}
		return nil
	})
}

// ListRange retrieves a user's blocks for a span of dates, ordered by start.
func (r *AvailabilityRepository) ListRange(ctx context.Context, userID, fromDate, toDate string) ([]models.AvailabilityBlock, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, user_id, date, starts_at, ends_at, kind, title, is_private, source_event_id
		FROM personal_availability
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY starts_at
	`, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("querying availability: %w", err)
	}
	defer rows.Close()

	var blocks []models.AvailabilityBlock
	for rows.Next() {
		var b models.AvailabilityBlock
		if err := rows.Scan(&b.ID, &b.UserID, &b.Date, &b.StartsAt, &b.EndsAt, &b.Kind, &b.Title, &b.IsPrivate, &b.SourceEventID); err != nil {
			return nil, fmt.Errorf("scanning availability block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
