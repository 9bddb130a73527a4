package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

// CalendarRepository provides data access for calendars and their sharing grants.
type CalendarRepository struct {
	BaseRepository
}

// NewCalendarRepository creates a new calendar repository.
func NewCalendarRepository(db *DB) *CalendarRepository {
	return &CalendarRepository{BaseRepository: NewBaseRepository(db)}
}

const calendarColumns = `
	id, name, description, color, level, church_id, ministry_id, user_id,
	active, settings, created_at, updated_at`

func scanCalendar(row interface{ Scan(...any) error }) (*models.Calendar, error) {
	cal := &models.Calendar{}
	err := row.Scan(
		&cal.ID, &cal.Name, &cal.Description, &cal.Color, &cal.Level,
		&cal.ChurchID, &cal.MinistryID, &cal.UserID,
		&cal.Active, &cal.Settings, &cal.CreatedAt, &cal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cal, nil
}

// Create inserts a new calendar. The owner-reference CHECK in the schema
// enforces the level/owner pairing.
func (r *CalendarRepository) Create(ctx context.Context, cal *models.Calendar) error {
	cal.ID = GenerateID()
	cal.CreatedAt = r.Now()
	cal.UpdatedAt = cal.CreatedAt
	if cal.Settings == "" {
		cal.Settings = "{}"
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendars (
			id, name, description, color, level, church_id, ministry_id, user_id,
			active, settings, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cal.ID, cal.Name, cal.Description, cal.Color, cal.Level,
		cal.ChurchID, cal.MinistryID, cal.UserID,
		cal.Active, cal.Settings, cal.CreatedAt, cal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

// GetByID retrieves a calendar by ID. Returns (nil, nil) when no row exists.
func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*models.Calendar, error) {
	cal, err := scanCalendar(r.DB().QueryRowContext(ctx,
		`SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	return cal, nil
}

// ListVisibleToChurch retrieves the calendars a church can see: every
// network-level calendar, the church's own calendars and ministries, and
// calendars shared with it through an effective grant.
func (r *CalendarRepository) ListVisibleToChurch(ctx context.Context, churchID string) ([]models.Calendar, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT DISTINCT c.id, c.name, c.description, c.color, c.level,
		       c.church_id, c.ministry_id, c.user_id,
		       c.active, c.settings, c.created_at, c.updated_at
		FROM calendars c
		LEFT JOIN calendar_permissions p ON p.calendar_id = c.id
			AND p.active = 1
			AND (p.expires_at IS NULL OR p.expires_at > ?)
		WHERE c.active = 1
		  AND (c.level = 'network' OR c.church_id = ? OR p.church_id = ?)
		ORDER BY c.name
	`, time.Now().UTC(), churchID, churchID)
	if err != nil {
		return nil, fmt.Errorf("querying visible calendars: %w", err)
	}
	defer rows.Close()

	var calendars []models.Calendar
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning calendar: %w", err)
		}
		calendars = append(calendars, *cal)
	}
	return calendars, rows.Err()
}

// Update updates a calendar's mutable fields.
func (r *CalendarRepository) Update(ctx context.Context, cal *models.Calendar) error {
	cal.UpdatedAt = r.Now()
	result, err := r.DB().ExecContext(ctx, `
		UPDATE calendars SET name = ?, description = ?, color = ?, active = ?, settings = ?, updated_at = ?
		WHERE id = ?
	`, cal.Name, cal.Description, cal.Color, cal.Active, cal.Settings, cal.UpdatedAt, cal.ID)
	if err != nil {
		return fmt.Errorf("updating calendar: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("calendar not found: %s", cal.ID)
	}
	return nil
}

// Grant inserts a sharing grant for a calendar.
func (r *CalendarRepository) Grant(ctx context.Context, perm *models.CalendarPermission) error {
	perm.ID = GenerateID()
	perm.CreatedAt = r.Now()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_permissions (id, calendar_id, church_id, user_id, role, level, expires_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, perm.ID, perm.CalendarID, perm.ChurchID, perm.UserID, perm.Role, perm.Level, perm.ExpiresAt, perm.Active, perm.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting permission: %w", err)
	}
	return nil
}

// Revoke deactivates a grant. The row is kept for audit; Effective() treats
// inactive grants as absent.
func (r *CalendarRepository) Revoke(ctx context.Context, permissionID string) error {
	result, err := r.DB().ExecContext(ctx,
		"UPDATE calendar_permissions SET active = 0 WHERE id = ?", permissionID)
	if err != nil {
		return fmt.Errorf("revoking permission: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("permission not found: %s", permissionID)
	}
	return nil
}

// ListGrants retrieves all grants (active or not) for a calendar.
func (r *CalendarRepository) ListGrants(ctx context.Context, calendarID string) ([]models.CalendarPermission, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, calendar_id, church_id, user_id, role, level, expires_at, active, created_at
		FROM calendar_permissions WHERE calendar_id = ? ORDER BY created_at
	`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	var perms []models.CalendarPermission
	for rows.Next() {
		var p models.CalendarPermission
		if err := rows.Scan(&p.ID, &p.CalendarID, &p.ChurchID, &p.UserID, &p.Role, &p.Level, &p.ExpiresAt, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// HasEffectiveGrant reports whether the user (directly or through their
// church) holds an effective grant of at least the given level on a calendar.
// Edit grants satisfy a view requirement.
func (r *CalendarRepository) HasEffectiveGrant(ctx context.Context, calendarID, userID, churchID, level string) (bool, error) {
	levels := []string{level}
	if level == models.PermissionView {
		levels = append(levels, models.PermissionEdit)
	}

	query := `
		SELECT COUNT(*) FROM calendar_permissions
		WHERE calendar_id = ? AND active = 1
		  AND (expires_at IS NULL OR expires_at > ?)
		  AND (user_id = ? OR church_id = ?)
		  AND level IN (?` + repeatPlaceholder(len(levels)-1) + `)`

	args := []any{calendarID, time.Now().UTC(), userID, churchID}
	for _, l := range levels {
		args = append(args, l)
	}

	var n int
	if err := r.DB().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("querying grant: %w", err)
	}
	return n > 0, nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
