// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/church-connect/backend/internal/api/handlers"
	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/approval"
	"github.com/church-connect/backend/internal/availability"
	"github.com/church-connect/backend/internal/conflict"
	"github.com/church-connect/backend/internal/storage"
	syncsvc "github.com/church-connect/backend/internal/sync"
	"github.com/church-connect/backend/internal/websocket"
	"github.com/gorilla/mux"
)

// Services bundles the wired application services the router depends on.
type Services struct {
	DB           *storage.DB
	Hub          *websocket.Hub
	Connections  *storage.ConnectionRepository
	Calendars    *storage.CalendarRepository
	Events       *storage.EventRepository
	Sync         *syncsvc.Service
	Scheduler    *syncsvc.Scheduler
	Detector     *conflict.Detector
	Availability *availability.Aggregator
	Approval     *approval.Machine
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods("GET")

	// Sync connection endpoints
	api.HandleFunc("/connections", handlers.ListConnections(s.Connections)).Methods("GET")
	api.HandleFunc("/connections/apple", handlers.ConnectAppleCalendar(s.Sync, s.Scheduler)).Methods("POST")
	api.HandleFunc("/connections/{id}", handlers.DisconnectCalendar(s.Sync, s.Scheduler)).Methods("DELETE")
	api.HandleFunc("/connections/{id}/sync", handlers.TriggerConnectionSync(s.Connections, s.Scheduler)).Methods("POST")
	api.HandleFunc("/sync", handlers.SyncNow(s.Sync)).Methods("POST")

	// Calendar endpoints
	api.HandleFunc("/calendars", handlers.ListCalendars(s.Calendars)).Methods("GET")
	api.HandleFunc("/calendars", handlers.CreateCalendar(s.Calendars)).Methods("POST")
	api.HandleFunc("/calendars/{id}", handlers.GetCalendar(s.Calendars)).Methods("GET")
	api.HandleFunc("/calendars/{id}", handlers.UpdateCalendar(s.Calendars)).Methods("PUT")
	api.HandleFunc("/calendars/{id}/grants", handlers.ListCalendarGrants(s.Calendars)).Methods("GET")
	api.HandleFunc("/calendars/{id}/grants", handlers.GrantCalendarAccess(s.Calendars)).Methods("POST")
	api.HandleFunc("/calendars/{id}/grants/{grantId}", handlers.RevokeCalendarGrant(s.Calendars)).Methods("DELETE")

	// Event and approval endpoints
	api.HandleFunc("/events", handlers.CreateEvent(s.Events)).Methods("POST")
	api.HandleFunc("/events/conflicts", handlers.CheckConflicts(s.Detector)).Methods("POST")
	api.HandleFunc("/events/{id}", handlers.GetEvent(s.Events)).Methods("GET")
	api.HandleFunc("/events/{id}/approve", handlers.ApproveEvent(s.Approval)).Methods("POST")
	api.HandleFunc("/events/{id}/reject", handlers.RejectEvent(s.Approval)).Methods("POST")
	api.HandleFunc("/events/{id}/approvals", handlers.ApprovalHistory(s.Approval)).Methods("GET")

	// Availability endpoints
	api.HandleFunc("/availability/{userId}/week", handlers.WeekAvailability(s.Availability)).Methods("GET")
	api.HandleFunc("/availability/rebuild", handlers.RebuildAvailability(s.Availability)).Methods("POST")

	return r
}
