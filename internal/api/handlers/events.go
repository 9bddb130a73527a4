package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/approval"
	"github.com/church-connect/backend/internal/conflict"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
	"github.com/gorilla/mux"
)

// CreateEventRequest is the payload for creating a church event.
type CreateEventRequest struct {
	CalendarID        string    `json:"calendar_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Location          string    `json:"location,omitempty"`
	Resource          string    `json:"resource,omitempty"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	AllDay            bool      `json:"all_day"`
	RequiredAttendees []string  `json:"required_attendees,omitempty"`
	OptionalAttendees []string  `json:"optional_attendees,omitempty"`
	FirstApproverID   string    `json:"first_approver_id"`
	FinalApproverID   string    `json:"final_approver_id"`
}

// CreateEvent creates an event in the pending/draft state, awaiting approval.
func CreateEvent(events *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}

		var req CreateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Title == "" || req.CalendarID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "title and calendar_id are required")
			return
		}
		if !req.EndsAt.After(req.StartsAt) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "ends_at must be after starts_at")
			return
		}

		ev := &models.Event{
			CalendarID:        req.CalendarID,
			CreatorID:         userID,
			Title:             req.Title,
			Description:       req.Description,
			Location:          req.Location,
			Resource:          req.Resource,
			StartsAt:          req.StartsAt,
			EndsAt:            req.EndsAt,
			AllDay:            req.AllDay,
			RequiredAttendees: req.RequiredAttendees,
			OptionalAttendees: req.OptionalAttendees,
			FirstApproverID:   req.FirstApproverID,
			FinalApproverID:   req.FinalApproverID,
		}
		if err := events.Create(r.Context(), ev); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create event")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ev)
	}
}

// GetEvent returns a single event by ID.
func GetEvent(events *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		ev, err := events.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query event")
			return
		}
		if ev == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
	}
}

// CheckConflictsRequest is the payload for a conflict pre-check.
type CheckConflictsRequest struct {
	Start             time.Time `json:"start"`
	DurationMinutes   int       `json:"duration_minutes"`
	ExcludeEventID    string    `json:"exclude_event_id,omitempty"`
	Location          string    `json:"location,omitempty"`
	Resource          string    `json:"resource,omitempty"`
	RequiredAttendees []string  `json:"required_attendees,omitempty"`
}

// CheckConflictsResponse carries the classified conflicts for a proposed slot.
type CheckConflictsResponse struct {
	Conflicts []conflict.Conflict `json:"conflicts"`
}

// CheckConflicts classifies conflicts for a proposed time slot. A detector
// failure is a hard error; callers must not treat it as "no conflicts".
func CheckConflicts(detector *conflict.Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)

		var req CheckConflictsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.DurationMinutes <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "duration_minutes must be positive")
			return
		}

		conflicts, err := detector.CheckConflicts(r.Context(), conflict.Request{
			Start:             req.Start,
			Duration:          time.Duration(req.DurationMinutes) * time.Minute,
			UserID:            userID,
			ExcludeEventID:    req.ExcludeEventID,
			Location:          req.Location,
			Resource:          req.Resource,
			RequiredAttendees: req.RequiredAttendees,
		})
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Conflict check failed; do not assume the slot is free")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CheckConflictsResponse{Conflicts: conflicts})
	}
}

// DecisionRequest is the payload for an approval or rejection.
type DecisionRequest struct {
	Comments *string `json:"comments,omitempty"`
}

// ApproveEvent advances the event one approval stage as the calling approver.
func ApproveEvent(machine *approval.Machine) http.HandlerFunc {
	return decisionHandler(machine, func(m *approval.Machine, r *http.Request, comments *string) (*models.Event, error) {
		return m.Approve(r.Context(), mux.Vars(r)["id"], requestUserID(r), comments)
	})
}

// RejectEvent terminates the event's approval flow as the calling approver.
func RejectEvent(machine *approval.Machine) http.HandlerFunc {
	return decisionHandler(machine, func(m *approval.Machine, r *http.Request, comments *string) (*models.Event, error) {
		return m.Reject(r.Context(), mux.Vars(r)["id"], requestUserID(r), comments)
	})
}

func decisionHandler(machine *approval.Machine, decide func(*approval.Machine, *http.Request, *string) (*models.Event, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requestUserID(r) == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}

		var req DecisionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
				return
			}
		}

		ev, err := decide(machine, r, req.Comments)
		if err != nil {
			switch {
			case errors.Is(err, approval.ErrNotFound):
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
			case errors.Is(err, approval.ErrPermissionDenied):
				middleware.WriteError(w, http.StatusForbidden, middleware.ErrUnauthorized, "You are not the designated approver for this stage")
			case errors.Is(err, approval.ErrTerminal):
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Approval flow is already complete")
			case errors.Is(err, approval.ErrStale):
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Approval state changed; reload the event and retry")
			default:
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to record decision")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
	}
}

// ApprovalHistory returns an event's append-only approval record.
func ApprovalHistory(machine *approval.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := machine.History(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			if errors.Is(err, approval.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
				return
			}
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query approval history")
			return
		}
		if history == nil {
			history = []models.EventApproval{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(history)
	}
}
