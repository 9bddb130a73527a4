package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
	"github.com/gorilla/mux"
)

// ListCalendars returns the calendars visible to the caller's church:
// network-level calendars, the church's own, and those shared via an
// effective grant.
func ListCalendars(calendars *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		churchID := requestChurchID(r)
		if churchID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing church identity")
			return
		}

		cals, err := calendars.ListVisibleToChurch(r.Context(), churchID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendars")
			return
		}
		if cals == nil {
			cals = []models.Calendar{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cals)
	}
}

// CreateCalendarRequest is the payload for creating a calendar.
type CreateCalendarRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Color       string  `json:"color,omitempty"`
	Level       string  `json:"level"`
	MinistryID  *string `json:"ministry_id,omitempty"`
	Settings    string  `json:"settings,omitempty"`
}

// CreateCalendar creates a calendar at one of the four levels. The owner
// reference comes from the caller's identity, never the payload.
func CreateCalendar(calendars *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		churchID := requestChurchID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}

		var req CreateCalendarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Name == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "name is required")
			return
		}
		if !models.ValidLevel(req.Level) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "level must be network, church, ministry, or personal")
			return
		}

		cal := &models.Calendar{
			Name:        req.Name,
			Description: req.Description,
			Color:       req.Color,
			Level:       req.Level,
			Settings:    req.Settings,
			Active:      true,
		}
		switch req.Level {
		case models.LevelChurch:
			if churchID == "" {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "church calendar requires a church identity")
				return
			}
			cal.ChurchID = &churchID
		case models.LevelMinistry:
			if req.MinistryID == nil || *req.MinistryID == "" {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "ministry calendar requires ministry_id")
				return
			}
			cal.MinistryID = req.MinistryID
		case models.LevelPersonal:
			cal.UserID = &userID
		}

		if err := calendars.Create(r.Context(), cal); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create calendar")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(cal)
	}
}

// GetCalendar returns a single calendar by ID.
func GetCalendar(calendars *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		cal, err := calendars.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendar")
			return
		}
		if cal == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cal)
	}
}

// UpdateCalendarRequest is the payload for updating calendar metadata.
type UpdateCalendarRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Active      *bool  `json:"active,omitempty"`
	Settings    string `json:"settings,omitempty"`
}

// UpdateCalendar updates calendar metadata. Editing requires ownership or an
// effective edit grant; a missing calendar and a denied edit are reported
// distinctly.
func UpdateCalendar(calendars *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		churchID := requestChurchID(r)
		id := mux.Vars(r)["id"]

		cal, err := calendars.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendar")
			return
		}
		if cal == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not found")
			return
		}

		allowed, err := canEditCalendar(r, calendars, cal, userID, churchID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to check permissions")
			return
		}
		if !allowed {
			middleware.WriteError(w, http.StatusForbidden, middleware.ErrUnauthorized, "No edit access to this calendar")
			return
		}

		var req UpdateCalendarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if req.Name != "" {
			cal.Name = req.Name
		}
		cal.Description = req.Description
		if req.Color != "" {
			cal.Color = req.Color
		}
		if req.Active != nil {
			cal.Active = *req.Active
		}
		if req.Settings != "" {
			cal.Settings = req.Settings
		}

		if err := calendars.Update(r.Context(), cal); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update calendar")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cal)
	}
}

// GrantRequest is the payload for sharing a calendar.
type GrantRequest struct {
	ChurchID  *string    `json:"church_id,omitempty"`
	UserID    *string    `json:"user_id,omitempty"`
	Role      *string    `json:"role,omitempty"`
	Level     string     `json:"level"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GrantCalendarAccess shares a calendar with a church, user, or role.
func GrantCalendarAccess(calendars *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		churchID := requestChurchID(r)
		id := mux.Vars(r)["id"]

		cal, err := calendars.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendar")
			return
		}
		if cal == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not found")
			return
		}

		allowed, err := canEditCalendar(r, calendars, cal, userID, churchID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to check permissions")
			return
		}
		if !allowed {
			middleware.WriteError(w, http.StatusForbidden, middleware.ErrUnauthorized, "Only calendar owners can share it")
			return
		}

		var req GrantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.Level != models.PermissionView && req.Level != models.PermissionEdit {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "level must be view or edit")
			return
		}
		if req.ChurchID == nil && req.UserID == nil && req.Role == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "grant needs a church_id, user_id, or role")
			return
		}

		perm := &models.CalendarPermission{
			CalendarID: id,
			ChurchID:   req.ChurchID,
			UserID:     req.UserID,
			Role:       req.Role,
			Level:      req.Level,
			ExpiresAt:  req.ExpiresAt,
			Active:     true,
		}
		if err := calendars.Grant(r.Context(), perm); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create grant")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(perm)
	}
}

// ListCalendarGrants returns a calendar's sharing grants.
func ListCalendarGrants(calendars *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		grants, err := calendars.ListGrants(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query grants")
			return
		}
		if grants == nil {
			grants = []models.CalendarPermission{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(grants)
	}
}

// RevokeCalendarGrant deactivates one sharing grant. The row is kept for
// audit.
func RevokeCalendarGrant(calendars *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		permissionID := mux.Vars(r)["grantId"]

		if err := calendars.Revoke(r.Context(), permissionID); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to revoke grant")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// canEditCalendar reports whether the caller owns the calendar or holds an
// effective edit grant on it.
func canEditCalendar(r *http.Request, calendars *storage.CalendarRepository, cal *models.Calendar, userID, churchID string) (bool, error) {
	if cal.UserID != nil && *cal.UserID == userID {
		return true, nil
	}
	if cal.ChurchID != nil && churchID != "" && *cal.ChurchID == churchID {
		return true, nil
	}
	return calendars.HasEffectiveGrant(r.Context(), cal.ID, userID, churchID, models.PermissionEdit)
}
