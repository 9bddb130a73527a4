package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/church-connect/backend/internal/storage/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db
}

func mkCalendar(t *testing.T, repo *CalendarRepository, level string, churchID, userID *string) *models.Calendar {
	t.Helper()
	cal := &models.Calendar{
		Name:     level + " calendar",
		Level:    level,
		ChurchID: churchID,
		UserID:   userID,
		Active:   true,
	}
	if err := repo.Create(context.Background(), cal); err != nil {
		t.Fatalf("creating calendar: %v", err)
	}
	return cal
}

func strp(s string) *string { return &s }

func TestListVisibleToChurch(t *testing.T) {
	db := newTestDB(t)
	repo := NewCalendarRepository(db)

	network := mkCalendar(t, repo, models.LevelNetwork, nil, nil)
	mine := mkCalendar(t, repo, models.LevelChurch, strp("church-a"), nil)
	other := mkCalendar(t, repo, models.LevelChurch, strp("church-b"), nil)
	shared := mkCalendar(t, repo, models.LevelChurch, strp("church-c"), nil)

	err := repo.Grant(context.Background(), &models.CalendarPermission{
		CalendarID: shared.ID,
		ChurchID:   strp("church-a"),
		Level:      models.PermissionView,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("granting: %v", err)
	}

	visible, err := repo.ListVisibleToChurch(context.Background(), "church-a")
	if err != nil {
		t.Fatalf("ListVisibleToChurch returned error: %v", err)
	}

	ids := map[string]bool{}
	for _, cal := range visible {
		ids[cal.ID] = true
	}
	if !ids[network.ID] {
		t.Error("network calendar not visible to every church")
	}
	if !ids[mine.ID] {
		t.Error("own church calendar not visible")
	}
	if !ids[shared.ID] {
		t.Error("granted calendar not visible")
	}
	if ids[other.ID] {
		t.Error("unshared foreign calendar leaked into visibility")
	}
}

func TestHasEffectiveGrant(t *testing.T) {
	db := newTestDB(t)
	repo := NewCalendarRepository(db)
	cal := mkCalendar(t, repo, models.LevelChurch, strp("church-owner"), nil)

	past := time.Now().Add(-time.Hour)
	err := repo.Grant(context.Background(), &models.CalendarPermission{
		CalendarID: cal.ID,
		UserID:     strp("user-expired"),
		Level:      models.PermissionEdit,
		ExpiresAt:  &past,
		Active:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = repo.Grant(context.Background(), &models.CalendarPermission{
		CalendarID: cal.ID,
		UserID:     strp("user-editor"),
		Level:      models.PermissionEdit,
		Active:     true,
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		userID string
		level  string
		want   bool
	}{
		{"live edit grant", "user-editor", models.PermissionEdit, true},
		{"edit grant satisfies view", "user-editor", models.PermissionView, true},
		{"expired grant ineffective", "user-expired", models.PermissionEdit, false},
		{"no grant at all", "user-stranger", models.PermissionView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.HasEffectiveGrant(context.Background(), cal.ID, tt.userID, "", tt.level)
			if err != nil {
				t.Fatalf("HasEffectiveGrant returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasEffectiveGrant = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRevokeKeepsRowForAudit(t *testing.T) {
	db := newTestDB(t)
	repo := NewCalendarRepository(db)
	cal := mkCalendar(t, repo, models.LevelChurch, strp("church-owner"), nil)

	perm := &models.CalendarPermission{
		CalendarID: cal.ID,
		UserID:     strp("user-1"),
		Level:      models.PermissionView,
		Active:     true,
	}
	if err := repo.Grant(context.Background(), perm); err != nil {
		t.Fatal(err)
	}

	if err := repo.Revoke(context.Background(), perm.ID); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	ok, err := repo.HasEffectiveGrant(context.Background(), cal.ID, "user-1", "", models.PermissionView)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("revoked grant still effective")
	}

	grants, err := repo.ListGrants(context.Background(), cal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 {
		t.Fatalf("grant row deleted instead of deactivated, grants = %d", len(grants))
	}
	if grants[0].Active {
		t.Error("revoked grant still marked active")
	}
}
