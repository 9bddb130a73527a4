// Package sync orchestrates pulling events from external calendar providers
// into the local store and maintaining per-connection health.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/church-connect/backend/internal/provider"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

// Sync window bounds relative to now.
const (
	windowBack    = 30 * 24 * time.Hour
	windowForward = 90 * 24 * time.Hour
)

// ErrNotFound is returned when a connection doesn't exist or doesn't belong
// to the caller. Distinct from permission errors so handlers can render
// "doesn't exist" vs "access denied".
var ErrNotFound = errors.New("sync connection not found")

// ProviderFactory builds a provider for one connection. Injectable so tests
// can substitute fakes; onToken receives refreshed access tokens.
type ProviderFactory func(conn *models.SyncConnection, onToken provider.TokenUpdateFunc) (provider.Provider, error)

// Service orchestrates calendar synchronization for users' connections.
type Service struct {
	connections *storage.ConnectionRepository
	events      *storage.SyncedEventRepository
	google      provider.OAuthCredentials
	microsoft   provider.OAuthCredentials
	factory     ProviderFactory
}

// NewService creates a sync service with the default provider factory.
func NewService(
	connections *storage.ConnectionRepository,
	events *storage.SyncedEventRepository,
	google, microsoft provider.OAuthCredentials,
) *Service {
	s := &Service{
		connections: connections,
		events:      events,
		google:      google,
		microsoft:   microsoft,
	}
	s.factory = s.buildProvider
	return s
}

// SetProviderFactory replaces the provider factory (for testing).
func (s *Service) SetProviderFactory(f ProviderFactory) {
	s.factory = f
}

// buildProvider constructs the matching provider from a connection's stored
// credentials.
func (s *Service) buildProvider(conn *models.SyncConnection, onToken provider.TokenUpdateFunc) (provider.Provider, error) {
	switch conn.Provider {
	case models.ProviderGoogle:
		return provider.NewGoogleProvider(s.google,
			deref(conn.AccessToken), deref(conn.RefreshToken),
			provider.WithGoogleTokenUpdate(onToken)), nil
	case models.ProviderMicrosoft:
		return provider.NewMicrosoftProvider(s.microsoft,
			deref(conn.AccessToken), deref(conn.RefreshToken),
			provider.WithMicrosoftTokenUpdate(onToken)), nil
	case models.ProviderApple:
		return provider.NewAppleProvider(deref(conn.CalDAVUsername), deref(conn.CalDAVPassword), deref(conn.CalDAVURL)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", conn.Provider)
	}
}

// SyncUserCalendars syncs every active connection belonging to the user,
// concurrently, isolating per-connection failures. The overall call succeeds
// as long as the orchestration completes; EventsSynced counts only events
// from connections that succeeded.
func (s *Service) SyncUserCalendars(ctx context.Context, userID string) (*models.SyncResult, error) {
	conns, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	var active []models.SyncConnection
	for _, conn := range conns {
		if conn.SyncStatus != models.SyncStatusPaused {
			active = append(active, conn)
		}
	}

	results := make(chan models.ConnectionSyncResult, len(active))
	var wg sync.WaitGroup
	for i := range active {
		conn := active[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.syncConnection(ctx, &conn)
		}()
	}
	wg.Wait()
	close(results)

	// Fold after all branches settled; no shared counter is mutated
	// from inside the goroutines.
	result := &models.SyncResult{Success: true}
	failed := 0
	for r := range results {
		result.Connections = append(result.Connections, r)
		if r.Error != "" {
			failed++
			continue
		}
		result.EventsSynced += r.EventsSynced
	}

	switch {
	case len(active) == 0:
		result.Message = "no active calendar connections"
	case failed == 0:
		result.Message = fmt.Sprintf("synced %d events from %d connections", result.EventsSynced, len(active))
	default:
		result.Message = fmt.Sprintf("synced %d events; %d of %d connections failed", result.EventsSynced, failed, len(active))
	}
	return result, nil
}

// SyncConnection syncs one connection by id. Used by the scheduler.
func (s *Service) SyncConnection(ctx context.Context, connectionID string) (*models.ConnectionSyncResult, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}
	if conn == nil {
		return nil, ErrNotFound
	}
	res := s.syncConnection(ctx, conn)
	return &res, nil
}

// syncConnection fetches one connection's window and upserts the results.
// Any failure marks the connection error without affecting siblings.
func (s *Service) syncConnection(ctx context.Context, conn *models.SyncConnection) models.ConnectionSyncResult {
	result := models.ConnectionSyncResult{
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		CalendarName: conn.CalendarName,
	}

	fail := func(err error) models.ConnectionSyncResult {
		msg := err.Error()
		result.Error = msg
		if statusErr := s.connections.UpdateSyncStatus(ctx, conn.ID, models.SyncStatusError, &msg); statusErr != nil {
			log.Printf("Failed to record sync error for connection %s: %v", conn.ID, statusErr)
		}
		return result
	}

	onToken := func(ctx context.Context, accessToken string, expiry time.Time) {
		if err := s.connections.UpdateTokens(ctx, conn.ID, accessToken, &expiry); err != nil {
			log.Printf("Failed to persist refreshed token for connection %s: %v", conn.ID, err)
		}
	}

	prov, err := s.factory(conn, onToken)
	if err != nil {
		return fail(err)
	}

	now := time.Now().UTC()
	fetched, err := prov.GetCalendarEvents(ctx, now.Add(-windowBack), now.Add(windowForward))
	if err != nil {
		return fail(err)
	}

	private := connPrivate(conn)
	events := make([]models.SyncedEvent, 0, len(fetched))
	for _, ev := range fetched {
		if ev.ExternalID == "" {
			continue
		}
		events = append(events, models.SyncedEvent{
			ConnectionID: conn.ID,
			ExternalID:   ev.ExternalID,
			Title:        ev.Title,
			Description:  ev.Description,
			StartsAt:     ev.StartsAt,
			EndsAt:       ev.EndsAt,
			AllDay:       ev.AllDay,
			Location:     ev.Location,
			Attendees:    ev.Attendees,
			Recurrence:   ev.Recurrence,
			Status:       ev.Status,
			IsPrivate:    private,
			LastSyncedAt: now,
		})
	}

	if err := s.events.UpsertBatch(ctx, events); err != nil {
		return fail(err)
	}

	if err := s.connections.UpdateSyncStatus(ctx, conn.ID, models.SyncStatusActive, nil); err != nil {
		log.Printf("Failed to mark connection %s active: %v", conn.ID, err)
	}
	result.EventsSynced = len(events)
	return result
}

// ConnectAppleCalendar probes the account with a live calendar discovery
// before persisting anything. Zero discovered calendars means bad
// credentials and nothing is stored.
func (s *Service) ConnectAppleCalendar(ctx context.Context, userID, email, appPassword, caldavURL string) (*models.SyncConnection, error) {
	apple := provider.NewAppleProvider(email, appPassword, caldavURL)
	calendars, err := apple.DiscoverCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("verifying apple calendar access: %w", err)
	}
	if len(calendars) == 0 {
		return nil, fmt.Errorf("no calendars found for %s; check the iCloud email and app-specific password", email)
	}

	primary := calendars[0]
	conn := &models.SyncConnection{
		UserID:         userID,
		Provider:       models.ProviderApple,
		CalendarID:     primary.URL,
		CalendarName:   primary.DisplayName,
		CalDAVURL:      &caldavURL,
		CalDAVUsername: &email,
		CalDAVPassword: &appPassword,
		SyncDirection:  models.DirectionImport,
	}
	if err := s.connections.Create(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// DisconnectCalendar deletes a connection and all its synced events.
// Ownership is checked by matching both connection id and user id.
func (s *Service) DisconnectCalendar(ctx context.Context, userID, connectionID string) error {
	deleted, err := s.connections.DeleteOwned(ctx, connectionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// connPrivate reads the privacy flag from the connection's settings blob.
func connPrivate(conn *models.SyncConnection) bool {
	if conn.Settings == "" {
		return false
	}
	var settings struct {
		Private bool `json:"private"`
	}
	if err := json.Unmarshal([]byte(conn.Settings), &settings); err != nil {
		return false
	}
	return settings.Private
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
