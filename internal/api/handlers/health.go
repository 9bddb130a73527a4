// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	ConnectionsCount   int `json:"connections_count"`
	ActiveConnections  int `json:"active_connections"`
	ErroredConnections int `json:"errored_connections"`
	SyncedEventsCount  int `json:"synced_events_count"`
	CalendarsCount     int `json:"calendars_count"`
	PendingApprovals   int `json:"pending_approvals"`
	ConnectedClients   int `json:"connected_clients"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var response StatusResponse
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_connections").Scan(&response.ConnectionsCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_connections WHERE sync_status = 'active'").Scan(&response.ActiveConnections)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_connections WHERE sync_status = 'error'").Scan(&response.ErroredConnections)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM synced_events").Scan(&response.SyncedEventsCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calendars WHERE active = 1").Scan(&response.CalendarsCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE approval_status IN ('pending', 'first_approved')").Scan(&response.PendingApprovals)
		response.ConnectedClients = hub.ClientCount()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
