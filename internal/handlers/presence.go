package handlers

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/models"
	"github.com/dav22-wa/uni-mood-share/internal/presence"
)

// Channel name validation: alphanumeric, hyphens, colons, 1-80 chars.
var channelNameRegex = regexp.MustCompile(`^[a-zA-Z0-9:_-]{1,80}$`)

// PresenceSnapshotResponse represents the channel membership snapshot.
type PresenceSnapshotResponse struct {
	Channel string            `json:"channel"`
	Members []presence.Member `json:"members"`
}

func (h *Handler) presenceChannel(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "channel")
	if !channelNameRegex.MatchString(name) {
		h.Error(w, http.StatusBadRequest, "invalid channel name")
		return "", false
	}
	return name, true
}

func (h *Handler) presenceMember(r *http.Request, user *models.User) presence.Member {
	member := presence.Member{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
	}
	// Carry the current mood when the user has one, so channel
	// rosters can render it without another round trip.
	since := time.Now().Add(-moodWindow)
	if mood, ok, err := h.db.LatestMood(r.Context(), user.ID, since); err == nil && ok {
		member.Mood = mood
	}
	return member
}

// JoinChannel adds the caller to a presence channel.
func (h *Handler) JoinChannel(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	channel, ok := h.presenceChannel(w, r)
	if !ok {
		return
	}

	h.tracker.Join(r.Context(), channel, h.presenceMember(r, user))
	w.WriteHeader(http.StatusNoContent)
}

// HeartbeatChannel refreshes the caller's presence TTL.
func (h *Handler) HeartbeatChannel(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	channel, ok := h.presenceChannel(w, r)
	if !ok {
		return
	}

	h.tracker.Heartbeat(r.Context(), channel, h.presenceMember(r, user))
	w.WriteHeader(http.StatusNoContent)
}

// LeaveChannel removes the caller from a presence channel.
func (h *Handler) LeaveChannel(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	channel, ok := h.presenceChannel(w, r)
	if !ok {
		return
	}

	h.tracker.Leave(r.Context(), channel, user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ChannelSnapshot returns the channel's current members.
func (h *Handler) ChannelSnapshot(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUserFromContext(r.Context()); user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	channel, ok := h.presenceChannel(w, r)
	if !ok {
		return
	}

	h.JSON(w, http.StatusOK, PresenceSnapshotResponse{
		Channel: channel,
		Members: h.tracker.Snapshot(channel),
	})
}
