package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
)

// UserResponse represents a user profile in API responses.
type UserResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Mood        string    `json:"mood,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetUser returns a user's public profile, with their current mood
// when they have checked in recently.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUserFromContext(r.Context()); user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.db.GetUser(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	resp := UserResponse{
		ID:          user.ID.String(),
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
		CreatedAt:   user.CreatedAt,
	}
	since := time.Now().Add(-moodWindow)
	if mood, ok, err := h.db.LatestMood(r.Context(), id, since); err == nil && ok {
		resp.Mood = string(mood)
	}

	h.JSON(w, http.StatusOK, resp)
}
