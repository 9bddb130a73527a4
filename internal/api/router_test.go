package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/church-connect/backend/internal/approval"
	"github.com/church-connect/backend/internal/conflict"
	"github.com/church-connect/backend/internal/notify"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

func newTestRouter(t *testing.T) (http.Handler, *storage.DB) {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	eventRepo := storage.NewEventRepository(db)
	syncedRepo := storage.NewSyncedEventRepository(db)

	r := NewRouter(Services{
		DB:       db,
		Events:   eventRepo,
		Detector: conflict.NewDetector(eventRepo.ListOverlapping, syncedRepo.ListForUserWindow),
		Approval: approval.NewMachine(eventRepo, &notify.LogNotifier{}, nil, nil),
	})
	return r, db
}

func seedCalendar(t *testing.T, db *storage.DB, ownerID string) *models.Calendar {
	t.Helper()
	cal := &models.Calendar{Name: "Events", Level: models.LevelPersonal, UserID: &ownerID, Active: true}
	if err := storage.NewCalendarRepository(db).Create(context.Background(), cal); err != nil {
		t.Fatalf("creating calendar: %v", err)
	}
	return cal
}

func doJSON(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEventLifecycleOverHTTP(t *testing.T) {
	router, db := newTestRouter(t)
	cal := seedCalendar(t, db, "creator-1")

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := doJSON(t, router, "POST", "/api/events", "creator-1", map[string]any{
		"calendar_id":       cal.ID,
		"title":             "Easter Rehearsal",
		"starts_at":         start,
		"ends_at":           start.Add(2 * time.Hour),
		"first_approver_id": "leader-1",
		"final_approver_id": "admin-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event status = %d, body %s", rec.Code, rec.Body.String())
	}
	var ev models.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ApprovalStatus != models.ApprovalPending {
		t.Fatalf("new event approval status = %q, want pending", ev.ApprovalStatus)
	}

	// The final approver cannot jump the first stage.
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%s/approve", ev.ID), "admin-1", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("out-of-turn approve status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%s/approve", ev.ID), "leader-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first approve status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%s/approve", ev.ID), "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("final approve status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", "/api/events/"+ev.ID, "creator-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get event status = %d", rec.Code)
	}
	var got models.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ApprovalStatus != models.ApprovalFinalApproved {
		t.Errorf("approval status = %q, want final_approved", got.ApprovalStatus)
	}
	if got.Status != models.EventPublished {
		t.Errorf("status = %q, want published", got.Status)
	}

	// Terminal state: further decisions conflict.
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/events/%s/reject", ev.ID), "admin-1", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("reject after final approval status = %d, want 409", rec.Code)
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	router, _ := newTestRouter(t)
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		userID string
		body   map[string]any
		want   int
	}{
		{
			name: "missing identity",
			body: map[string]any{"calendar_id": "c", "title": "t", "starts_at": start, "ends_at": start.Add(time.Hour)},
			want: http.StatusUnauthorized,
		},
		{
			name:   "missing title",
			userID: "u1",
			body:   map[string]any{"calendar_id": "c", "starts_at": start, "ends_at": start.Add(time.Hour)},
			want:   http.StatusBadRequest,
		},
		{
			name:   "ends before starts",
			userID: "u1",
			body:   map[string]any{"calendar_id": "c", "title": "t", "starts_at": start, "ends_at": start.Add(-time.Hour)},
			want:   http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, "POST", "/api/events", tt.userID, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCheckConflictsOverHTTP(t *testing.T) {
	router, db := newTestRouter(t)
	events := storage.NewEventRepository(db)
	cal := seedCalendar(t, db, "creator-1")

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := &models.Event{
		CalendarID:      cal.ID,
		CreatorID:       "creator-1",
		Title:           "Morning Service",
		Location:        "Sanctuary",
		StartsAt:        start,
		EndsAt:          start.Add(2 * time.Hour),
		FirstApproverID: "leader-1",
		FinalApproverID: "admin-1",
	}
	if err := events.Create(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, router, "POST", "/api/events/conflicts", "planner-1", map[string]any{
		"start":            start.Add(30 * time.Minute),
		"duration_minutes": 60,
		"location":         "sanctuary",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("conflict check status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Conflicts []conflict.Conflict `json:"conflicts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	foundLocation := false
	for _, c := range resp.Conflicts {
		if c.Type == conflict.TypeLocationConflict {
			foundLocation = true
		}
	}
	if !foundLocation {
		t.Errorf("expected a location conflict, got %+v", resp.Conflicts)
	}
}
