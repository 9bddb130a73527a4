package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// ConnectionRepository provides data access for calendar sync connections.
type ConnectionRepository struct {
	BaseRepository
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{BaseRepository: NewBaseRepository(db)}
}

const connectionColumns = `
	id, user_id, provider, calendar_id, calendar_name,
	access_token, refresh_token, token_expiry,
	caldav_url, caldav_username, caldav_password,
	sync_direction, sync_frequency_min, settings, is_primary,
	sync_status, sync_error, last_sync_at, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*models.SyncConnection, error) {
	conn := &models.SyncConnection{}
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.Provider, &conn.CalendarID, &conn.CalendarName,
		&conn.AccessToken, &conn.RefreshToken, &conn.TokenExpiry,
		&conn.CalDAVURL, &conn.CalDAVUsername, &conn.CalDAVPassword,
		&conn.SyncDirection, &conn.SyncFrequencyMin, &conn.Settings, &conn.IsPrimary,
		&conn.SyncStatus, &conn.SyncError, &conn.LastSyncAt, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Create inserts a new sync connection.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.SyncConnection) error {
	conn.ID = GenerateID()
	conn.CreatedAt = r.Now()
	conn.UpdatedAt = conn.CreatedAt
	if conn.SyncStatus == "" {
		conn.SyncStatus = models.SyncStatusActive
	}
	if conn.SyncDirection == "" {
		conn.SyncDirection = models.DirectionImport
	}
	if conn.SyncFrequencyMin <= 0 {
		conn.SyncFrequencyMin = 15
	}
	if conn.Settings == "" {
		conn.Settings = "{}"
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO sync_connections (
			id, user_id, provider, calendar_id, calendar_name,
			access_token, refresh_token, token_expiry,
			caldav_url, caldav_username, caldav_password,
			sync_direction, sync_frequency_min, settings, is_primary,
			sync_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		conn.ID, conn.UserID, conn.Provider, conn.CalendarID, conn.CalendarName,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiry,
		conn.CalDAVURL, conn.CalDAVUsername, conn.CalDAVPassword,
		conn.SyncDirection, conn.SyncFrequencyMin, conn.Settings, conn.IsPrimary,
		conn.SyncStatus, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

// GetByID retrieves a connection by its ID. Returns (nil, nil) when no row exists.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.SyncConnection, error) {
	conn, err := scanConnection(r.DB().QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM sync_connections WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	return conn, nil
}

// ListByUser retrieves all connections belonging to a user.
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID string) ([]models.SyncConnection, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM sync_connections WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []models.SyncConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// ListSchedulable retrieves every connection that should hold a sync job,
// across users. Errored connections stay schedulable so they recover on the
// next pass; only paused connections opt out.
func (r *ConnectionRepository) ListSchedulable(ctx context.Context) ([]models.SyncConnection, error) {
	rows, err := r.DB().QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM sync_connections WHERE sync_status != ? ORDER BY last_sync_at ASC NULLS FIRST`,
		models.SyncStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("querying schedulable connections: %w", err)
	}
	defer rows.Close()

	var conns []models.SyncConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// UpdateSyncStatus records the outcome of a sync pass for a connection.
// A successful pass clears the error and stamps last_sync_at.
func (r *ConnectionRepository) UpdateSyncStatus(ctx context.Context, id, status string, syncError *string) error {
	now := time.Now().UTC()
	var lastSyncAt *time.Time
	if status == models.SyncStatusActive {
		lastSyncAt = &now
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE sync_connections SET
			sync_status = ?, sync_error = ?, last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE id = ?
	`, status, syncError, lastSyncAt, now, id)
	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}
	return nil
}

// UpdateTokens persists refreshed OAuth tokens on a connection.
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, id, accessToken string, expiry *time.Time) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE sync_connections SET access_token = ?, token_expiry = ?, updated_at = ? WHERE id = ?
	`, accessToken, expiry, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}
	return nil
}

// DeleteOwned removes a connection only when it belongs to the given user.
// Synced events cascade via the foreign key. Returns false when no row matched.
func (r *ConnectionRepository) DeleteOwned(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM sync_connections WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return false, fmt.Errorf("deleting connection: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
