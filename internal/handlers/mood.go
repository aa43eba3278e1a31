package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/metrics"
	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// moodWindow is how long a check-in counts as "current".
const moodWindow = 24 * time.Hour

// CheckinRequest represents the mood check-in request.
type CheckinRequest struct {
	Mood string `json:"mood"`
}

// CheckinResponse represents the mood check-in response.
type CheckinResponse struct {
	Mood string `json:"mood"`
	Room string `json:"room"`
}

// MatchResponse lists users currently sharing the caller's mood.
type MatchResponse struct {
	Mood    string       `json:"mood"`
	Matches []MatchEntry `json:"matches"`
}

// MatchEntry is one matched user.
type MatchEntry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Checkin records the caller's current mood.
func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	mood := models.Mood(req.Mood)
	if !models.ValidMood(mood) {
		h.Error(w, http.StatusBadRequest, "unknown mood")
		return
	}

	if err := h.db.RecordMood(r.Context(), user.ID, mood); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to record mood")
		return
	}

	metrics.MoodCheckins.WithLabelValues(string(mood)).Inc()
	h.JSON(w, http.StatusCreated, CheckinResponse{
		Mood: string(mood),
		Room: "/rooms/mood/" + string(mood),
	})
}

// Matches returns users whose current mood matches the caller's.
func (h *Handler) Matches(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	since := time.Now().Add(-moodWindow)
	mood, ok, err := h.db.LatestMood(r.Context(), user.ID, since)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if !ok {
		h.Error(w, http.StatusNotFound, "no current mood, check in first")
		return
	}

	active, err := h.db.ActiveUsers(r.Context(), since)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	matches := []MatchEntry{}
	for _, au := range active {
		if au.Mood != mood || au.UserID == user.ID {
			continue
		}
		matches = append(matches, MatchEntry{
			UserID:      au.UserID.String(),
			DisplayName: au.DisplayName,
			CheckedInAt: au.CheckedInAt,
		})
	}

	h.JSON(w, http.StatusOK, MatchResponse{Mood: string(mood), Matches: matches})
}
