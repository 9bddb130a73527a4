package sync

import (
	"context"
	"testing"

	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

func (s *Scheduler) hasJob(connectionID string) bool {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	_, ok := s.jobs[connectionID]
	return ok
}

func TestRefreshSchedules_KeepsErroredConnections(t *testing.T) {
	db := newTestDB(t)
	svc, connRepo, _ := newTestService(t, db, map[string]provider.Provider{})
	sched := NewScheduler(svc, connRepo, nil, 15)

	conn := createConnection(t, connRepo, "user-1", "Flaky", models.SyncStatusActive)
	sched.ScheduleConnection(conn)
	if !sched.hasJob(conn.ID) {
		t.Fatal("connection not scheduled")
	}

	// A transient provider failure marks the connection errored. The job
	// must survive the reconcile so the connection heals on its next run.
	msg := "provider timeout"
	if err := connRepo.UpdateSyncStatus(context.Background(), conn.ID, models.SyncStatusError, &msg); err != nil {
		t.Fatal(err)
	}
	sched.refreshSchedules(context.Background())
	if !sched.hasJob(conn.ID) {
		t.Fatal("errored connection lost its sync job")
	}

	// Pausing is the one state that opts out of scheduling.
	if err := connRepo.UpdateSyncStatus(context.Background(), conn.ID, models.SyncStatusPaused, nil); err != nil {
		t.Fatal(err)
	}
	sched.refreshSchedules(context.Background())
	if sched.hasJob(conn.ID) {
		t.Fatal("paused connection still scheduled")
	}
}

func TestRefreshSchedules_PicksUpNewConnections(t *testing.T) {
	db := newTestDB(t)
	svc, connRepo, _ := newTestService(t, db, map[string]provider.Provider{})
	sched := NewScheduler(svc, connRepo, nil, 15)

	conn := createConnection(t, connRepo, "user-1", "New", models.SyncStatusActive)
	sched.refreshSchedules(context.Background())
	if !sched.hasJob(conn.ID) {
		t.Fatal("new connection not picked up by reconcile")
	}
}

func TestListSchedulable(t *testing.T) {
	db := newTestDB(t)
	connRepo := storage.NewConnectionRepository(db)

	active := createConnection(t, connRepo, "user-1", "Active", models.SyncStatusActive)
	errored := createConnection(t, connRepo, "user-1", "Errored", models.SyncStatusError)
	createConnection(t, connRepo, "user-1", "Paused", models.SyncStatusPaused)

	conns, err := connRepo.ListSchedulable(context.Background())
	if err != nil {
		t.Fatalf("ListSchedulable returned error: %v", err)
	}
	ids := map[string]bool{}
	for i := range conns {
		ids[conns[i].ID] = true
	}
	if !ids[active.ID] || !ids[errored.ID] {
		t.Errorf("active/errored connections missing: %v", ids)
	}
	if len(conns) != 2 {
		t.Errorf("ListSchedulable returned %d connections, want 2", len(conns))
	}
}
