package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/sync"
	"github.com/gorilla/mux"
)

// ListConnections returns the caller's sync connections.
func ListConnections(connections *storage.ConnectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}

		conns, err := connections.ListByUser(r.Context(), userID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query connections")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conns)
	}
}

// ConnectAppleRequest is the payload for linking an iCloud calendar.
type ConnectAppleRequest struct {
	Email       string `json:"email"`
	AppPassword string `json:"app_password"`
	CalDAVURL   string `json:"caldav_url,omitempty"`
}

// ConnectAppleCalendar links an iCloud account via CalDAV. Credentials are
// probed with a live calendar discovery before anything is persisted.
func ConnectAppleCalendar(service *sync.Service, scheduler *sync.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}

		var req ConnectAppleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Email == "" || req.AppPassword == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "email and app_password are required")
			return
		}

		conn, err := service.ConnectAppleCalendar(r.Context(), userID, req.Email, req.AppPassword, req.CalDAVURL)
		if err != nil {
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrBadRequest, err.Error())
			return
		}

		if scheduler != nil {
			scheduler.ScheduleConnection(conn)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(conn)
	}
}

// DisconnectCalendar removes a connection and all of its synced events.
// Ownership is checked against the caller, never the connection id alone.
func DisconnectCalendar(service *sync.Service, scheduler *sync.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}
		id := mux.Vars(r)["id"]

		if err := service.DisconnectCalendar(r.Context(), userID, id); err != nil {
			if errors.Is(err, sync.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Connection not found")
				return
			}
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to disconnect calendar")
			return
		}

		if scheduler != nil {
			scheduler.UnscheduleConnection(id)
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SyncNow runs a full sync pass over the caller's connections and returns the
// aggregate result. Individual connection failures are reported in the body,
// not as an HTTP error.
func SyncNow(service *sync.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}

		result, err := service.SyncUserCalendars(r.Context(), userID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Sync failed to run")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// TriggerConnectionSync kicks off a background sync for one connection. The
// result arrives over the WebSocket, not in this response.
func TriggerConnectionSync(connections *storage.ConnectionRepository, scheduler *sync.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}
		id := mux.Vars(r)["id"]

		conn, err := connections.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query connection")
			return
		}
		if conn == nil || conn.UserID != userID {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Connection not found")
			return
		}

		scheduler.TriggerSync(id)
		w.WriteHeader(http.StatusAccepted)
	}
}
