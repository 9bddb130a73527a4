package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/availability"
	"github.com/gorilla/mux"
)

// WeekAvailability serves a user's week grid. The viewer sees busy/free
// intervals for every block but titles only where the block is not private
// or the viewer owns the calendar.
func WeekAvailability(aggregator *availability.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID := requestUserID(r)
		targetID := mux.Vars(r)["userId"]

		weekStart := time.Now()
		if raw := r.URL.Query().Get("week_start"); raw != "" {
			parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "week_start must be YYYY-MM-DD")
				return
			}
			weekStart = parsed
		}

		week, err := aggregator.Week(r.Context(), targetID, viewerID, weekStart)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load availability")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(week)
	}
}

// RebuildAvailability re-derives the caller's availability blocks from their
// synced events over the sync window.
func RebuildAvailability(aggregator *availability.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Missing user identity")
			return
		}

		now := time.Now()
		err := aggregator.Rebuild(r.Context(), userID, now.AddDate(0, 0, -30), now.AddDate(0, 0, 90))
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to rebuild availability")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
