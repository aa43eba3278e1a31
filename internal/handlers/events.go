package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/fanout"
)

// sseHeartbeat keeps idle SSE connections alive through proxies.
const sseHeartbeat = 15 * time.Second

// RoomEvents streams change hints for a room as server-sent events.
// Clients refetch messages on every hint; the stream itself never
// carries message bodies.
func (h *Handler) RoomEvents(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	room, ok := h.roomFromURL(w, r)
	if !ok {
		return
	}
	h.streamHints(w, r, fanout.RoomTopic(room.ID))
}

// DMEvents streams change hints for the direct conversation with a peer.
func (h *Handler) DMEvents(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	room, _, ok := h.dmRoom(w, r, user)
	if !ok {
		return
	}
	h.streamHints(w, r, fanout.RoomTopic(room.ID))
}

// ChannelEvents streams presence sync hints for a channel.
func (h *Handler) ChannelEvents(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUserFromContext(r.Context()); user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	channel, ok := h.presenceChannel(w, r)
	if !ok {
		return
	}
	h.streamHints(w, r, fanout.PresenceTopic(channel))
}

func (h *Handler) streamHints(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub, err := h.notifier.Subscribe(r.Context(), topic)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("subscribe failed")
		h.Error(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Tell the client the stream is live before the first hint.
	fmt.Fprintf(w, ": connected %s\n\n", topic)
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case hint, ok := <-sub.Hints():
			if !ok {
				return
			}
			payload, err := json.Marshal(hint)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", hint.Kind, payload)
			flusher.Flush()
		}
	}
}
