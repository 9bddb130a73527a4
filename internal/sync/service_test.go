package sync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db
}

// fakeProvider returns canned events or a canned error.
type fakeProvider struct {
	events []provider.Event
	err    error
}

func (f *fakeProvider) GetCalendarEvents(ctx context.Context, timeMin, timeMax time.Time) ([]provider.Event, error) {
	return f.events, f.err
}

func newTestService(t *testing.T, db *storage.DB, providers map[string]provider.Provider) (*Service, *storage.ConnectionRepository, *storage.SyncedEventRepository) {
	t.Helper()
	connRepo := storage.NewConnectionRepository(db)
	eventRepo := storage.NewSyncedEventRepository(db)
	svc := NewService(connRepo, eventRepo, provider.OAuthCredentials{}, provider.OAuthCredentials{})
	svc.SetProviderFactory(func(conn *models.SyncConnection, onToken provider.TokenUpdateFunc) (provider.Provider, error) {
		p, ok := providers[conn.ID]
		if !ok {
			return nil, errors.New("no fake provider for connection")
		}
		return p, nil
	})
	return svc, connRepo, eventRepo
}

func createConnection(t *testing.T, repo *storage.ConnectionRepository, userID, name, status string) *models.SyncConnection {
	t.Helper()
	conn := &models.SyncConnection{
		UserID:       userID,
		Provider:     models.ProviderGoogle,
		CalendarName: name,
		SyncStatus:   status,
	}
	if err := repo.Create(context.Background(), conn); err != nil {
		t.Fatalf("creating connection: %v", err)
	}
	return conn
}

func sampleEvents(n int) []provider.Event {
	events := make([]provider.Event, 0, n)
	base := time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		start := base.Add(time.Duration(i) * 24 * time.Hour)
		events = append(events, provider.Event{
			ExternalID: string(rune('a' + i)),
			Title:      "Event",
			StartsAt:   start,
			EndsAt:     start.Add(time.Hour),
		})
	}
	return events
}

func TestSyncUserCalendars_PerConnectionIsolation(t *testing.T) {
	db := newTestDB(t)
	connRepo := storage.NewConnectionRepository(db)

	broken := createConnection(t, connRepo, "user-1", "Broken", models.SyncStatusActive)
	healthy := createConnection(t, connRepo, "user-1", "Healthy", models.SyncStatusActive)

	svc, _, eventRepo := newTestService(t, db, map[string]provider.Provider{
		broken.ID:  &fakeProvider{err: errors.New("token revoked")},
		healthy.ID: &fakeProvider{events: sampleEvents(3)},
	})

	result, err := svc.SyncUserCalendars(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("SyncUserCalendars returned error: %v", err)
	}

	// One broken connection must not fail the orchestration.
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.EventsSynced != 3 {
		t.Errorf("EventsSynced = %d, want 3", result.EventsSynced)
	}
	if len(result.Connections) != 2 {
		t.Fatalf("per-connection results = %d, want 2", len(result.Connections))
	}

	got, err := connRepo.GetByID(context.Background(), broken.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SyncStatus != models.SyncStatusError {
		t.Errorf("broken connection status = %q, want error", got.SyncStatus)
	}
	if got.SyncError == nil || *got.SyncError != "token revoked" {
		t.Errorf("broken connection error = %v", got.SyncError)
	}

	got, err = connRepo.GetByID(context.Background(), healthy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SyncStatus != models.SyncStatusActive {
		t.Errorf("healthy connection status = %q, want active", got.SyncStatus)
	}
	if got.LastSyncAt == nil {
		t.Error("healthy connection LastSyncAt not stamped")
	}

	count, err := eventRepo.CountByConnection(context.Background(), healthy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("stored events = %d, want 3", count)
	}
}

func TestSyncUserCalendars_ErroredConnectionsSelfHeal(t *testing.T) {
	db := newTestDB(t)
	connRepo := storage.NewConnectionRepository(db)

	// A connection that previously errored is retried on the next run.
	errored := createConnection(t, connRepo, "user-1", "Recovering", models.SyncStatusError)

	svc, _, _ := newTestService(t, db, map[string]provider.Provider{
		errored.ID: &fakeProvider{events: sampleEvents(1)},
	})

	result, err := svc.SyncUserCalendars(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("SyncUserCalendars returned error: %v", err)
	}
	if result.EventsSynced != 1 {
		t.Errorf("EventsSynced = %d, want 1", result.EventsSynced)
	}

	got, err := connRepo.GetByID(context.Background(), errored.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SyncStatus != models.SyncStatusActive {
		t.Errorf("status = %q, want active after successful pass", got.SyncStatus)
	}
	if got.SyncError != nil {
		t.Errorf("error not cleared: %v", *got.SyncError)
	}
}

func TestSyncUserCalendars_SkipsPaused(t *testing.T) {
	db := newTestDB(t)
	connRepo := storage.NewConnectionRepository(db)

	paused := createConnection(t, connRepo, "user-1", "Paused", models.SyncStatusPaused)

	svc, _, eventRepo := newTestService(t, db, map[string]provider.Provider{
		paused.ID: &fakeProvider{events: sampleEvents(2)},
	})

	result, err := svc.SyncUserCalendars(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("SyncUserCalendars returned error: %v", err)
	}
	if len(result.Connections) != 0 {
		t.Errorf("paused connection was synced: %+v", result.Connections)
	}

	count, err := eventRepo.CountByConnection(context.Background(), paused.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("stored events = %d, want 0", count)
	}
}

func TestSyncUserCalendars_UpsertIdempotent(t *testing.T) {
	db := newTestDB(t)
	connRepo := storage.NewConnectionRepository(db)

	conn := createConnection(t, connRepo, "user-1", "Stable", models.SyncStatusActive)

	svc, _, eventRepo := newTestService(t, db, map[string]provider.Provider{
		conn.ID: &fakeProvider{events: sampleEvents(3)},
	})

	for i := 0; i < 2; i++ {
		if _, err := svc.SyncUserCalendars(context.Background(), "user-1"); err != nil {
			t.Fatalf("sync pass %d: %v", i+1, err)
		}
	}

	count, err := eventRepo.CountByConnection(context.Background(), conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("stored events after two passes = %d, want 3", count)
	}
}

const appleDiscoverNone = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/alice/calendars/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop>
    </d:propstat>
  </d:response>
</d:multistatus>`

const appleDiscoverOne = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/alice/calendars/home/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:displayname>Home</d:displayname>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
      </d:prop>
    </d:propstat>
  </d:response>
</d:multistatus>`

func TestConnectAppleCalendar_ZeroCalendars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(appleDiscoverNone))
	}))
	defer server.Close()

	db := newTestDB(t)
	svc, connRepo, _ := newTestService(t, db, nil)

	_, err := svc.ConnectAppleCalendar(context.Background(), "user-1", "alice", "app-pw", server.URL)
	if err == nil {
		t.Fatal("expected failure when discovery finds no calendars")
	}

	conns, err := connRepo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 0 {
		t.Errorf("connection persisted despite failed probe: %+v", conns)
	}
}

func TestConnectAppleCalendar_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(appleDiscoverOne))
	}))
	defer server.Close()

	db := newTestDB(t)
	svc, connRepo, _ := newTestService(t, db, nil)

	conn, err := svc.ConnectAppleCalendar(context.Background(), "user-1", "alice", "app-pw", server.URL)
	if err != nil {
		t.Fatalf("ConnectAppleCalendar returned error: %v", err)
	}
	if conn.Provider != models.ProviderApple {
		t.Errorf("Provider = %q", conn.Provider)
	}
	if conn.CalendarName != "Home" {
		t.Errorf("CalendarName = %q", conn.CalendarName)
	}

	stored, err := connRepo.GetByID(context.Background(), conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil {
		t.Fatal("connection was not persisted")
	}
}

func TestDisconnectCalendar(t *testing.T) {
	db := newTestDB(t)
	connRepo := storage.NewConnectionRepository(db)
	eventRepo := storage.NewSyncedEventRepository(db)

	conn := createConnection(t, connRepo, "user-1", "Mine", models.SyncStatusActive)
	err := eventRepo.UpsertBatch(context.Background(), []models.SyncedEvent{{
		ConnectionID: conn.ID,
		ExternalID:   "ev-1",
		Title:        "Orphan-to-be",
		StartsAt:     time.Now(),
		EndsAt:       time.Now().Add(time.Hour),
		LastSyncedAt: time.Now(),
	}})
	if err != nil {
		t.Fatalf("seeding synced event: %v", err)
	}

	svc, _, _ := newTestService(t, db, nil)

	// Wrong owner: distinct not-found, nothing deleted.
	if err := svc.DisconnectCalendar(context.Background(), "someone-else", conn.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong-owner disconnect error = %v, want ErrNotFound", err)
	}

	if err := svc.DisconnectCalendar(context.Background(), "user-1", conn.ID); err != nil {
		t.Fatalf("DisconnectCalendar returned error: %v", err)
	}

	gone, err := connRepo.GetByID(context.Background(), conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("connection row survived disconnect")
	}

	count, err := eventRepo.CountByConnection(context.Background(), conn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("synced events survived disconnect: %d", count)
	}
}
