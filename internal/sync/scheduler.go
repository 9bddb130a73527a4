package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
	"github.com/church-connect/backend/internal/websocket"
)

// Scheduler runs periodic sync jobs, one per schedulable connection, on each
// connection's configured frequency.
type Scheduler struct {
	cron        *cron.Cron
	service     *Service
	connections *storage.ConnectionRepository
	broadcaster *websocket.EventBroadcaster

	jobs   map[string]cron.EntryID
	jobsMu sync.RWMutex

	defaultInterval time.Duration
}

// NewScheduler creates a sync scheduler. hub may be nil when no live status
// push is wanted.
func NewScheduler(
	service *Service,
	connections *storage.ConnectionRepository,
	hub *websocket.Hub,
	defaultIntervalMin int,
) *Scheduler {
	if defaultIntervalMin <= 0 {
		defaultIntervalMin = 15
	}

	var broadcaster *websocket.EventBroadcaster
	if hub != nil {
		broadcaster = websocket.NewEventBroadcaster(hub)
	}

	return &Scheduler{
		cron:            cron.New(),
		service:         service,
		connections:     connections,
		broadcaster:     broadcaster,
		jobs:            make(map[string]cron.EntryID),
		defaultInterval: time.Duration(defaultIntervalMin) * time.Minute,
	}
}

// Start loads all schedulable connections, schedules them, and begins the
// cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Println("Starting calendar sync scheduler...")

	conns, err := s.connections.ListSchedulable(ctx)
	if err != nil {
		return err
	}
	for i := range conns {
		s.ScheduleConnection(&conns[i])
	}

	// Pick up newly added or reconfigured connections.
	s.cron.AddFunc("@every 5m", func() {
		s.refreshSchedules(context.Background())
	})

	s.cron.Start()
	log.Printf("Sync scheduler started with %d connections", len(conns))
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	log.Println("Stopping calendar sync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Sync scheduler stopped")
}

// ScheduleConnection adds or replaces a connection's sync job. Paused
// connections are unscheduled.
func (s *Scheduler) ScheduleConnection(conn *models.SyncConnection) {
	if conn.SyncStatus == models.SyncStatusPaused {
		s.UnscheduleConnection(conn.ID)
		return
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if existing, ok := s.jobs[conn.ID]; ok {
		s.cron.Remove(existing)
		delete(s.jobs, conn.ID)
	}

	interval := time.Duration(conn.SyncFrequencyMin) * time.Minute
	if interval < time.Minute {
		interval = s.defaultInterval
	}

	id := conn.ID
	entryID, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.runSync(id)
	})
	if err != nil {
		log.Printf("Failed to schedule connection %s: %v", conn.ID, err)
		return
	}

	s.jobs[conn.ID] = entryID
	log.Printf("Scheduled connection %s (%s/%s) every %s", conn.ID, conn.Provider, conn.CalendarName, interval)
}

// UnscheduleConnection removes a connection's sync job.
func (s *Scheduler) UnscheduleConnection(connectionID string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if entryID, ok := s.jobs[connectionID]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, connectionID)
		log.Printf("Unscheduled connection %s", connectionID)
	}
}

// TriggerSync runs an immediate sync for one connection in the background.
func (s *Scheduler) TriggerSync(connectionID string) {
	go s.runSync(connectionID)
}

func (s *Scheduler) runSync(connectionID string) {
	ctx := context.Background()
	result, err := s.service.SyncConnection(ctx, connectionID)
	if err != nil {
		log.Printf("Sync failed for connection %s: %v", connectionID, err)
		if s.broadcaster != nil {
			s.broadcaster.BroadcastSyncError(connectionID, "", err)
		}
		return
	}

	if result.Error != "" {
		log.Printf("Sync completed with error for connection %s: %s", connectionID, result.Error)
	} else {
		log.Printf("Synced %d events for connection %s", result.EventsSynced, connectionID)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSyncCompleted(*result)
	}
}

// refreshSchedules reconciles cron jobs with the current connection table.
// Errored connections keep their job so a transient provider failure heals
// on the next run.
func (s *Scheduler) refreshSchedules(ctx context.Context) {
	conns, err := s.connections.ListSchedulable(ctx)
	if err != nil {
		log.Printf("Failed to refresh sync schedules: %v", err)
		return
	}

	current := make(map[string]bool)
	for i := range conns {
		current[conns[i].ID] = true
		s.ScheduleConnection(&conns[i])
	}

	s.jobsMu.Lock()
	for id := range s.jobs {
		if !current[id] {
			s.cron.Remove(s.jobs[id])
			delete(s.jobs, id)
			log.Printf("Removed schedule for connection %s (paused or deleted)", id)
		}
	}
	s.jobsMu.Unlock()
}
