package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/dav22-wa/uni-mood-share/internal/blob"
	"github.com/dav22-wa/uni-mood-share/internal/chat"
	"github.com/dav22-wa/uni-mood-share/internal/fanout"
	"github.com/dav22-wa/uni-mood-share/internal/presence"
	"github.com/dav22-wa/uni-mood-share/internal/rooms"
	"github.com/dav22-wa/uni-mood-share/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db         store.DataStore
	redis      *store.RedisStore
	resolver   *rooms.Resolver
	chat       *chat.Service
	receipts   *chat.Receipts
	moderation *chat.Moderation
	tracker    *presence.Tracker
	notifier   fanout.Notifier
	blobs      blob.Store
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(
	db store.DataStore,
	redis *store.RedisStore,
	resolver *rooms.Resolver,
	chatSvc *chat.Service,
	receipts *chat.Receipts,
	moderation *chat.Moderation,
	tracker *presence.Tracker,
	notifier fanout.Notifier,
	blobs blob.Store,
) *Handler {
	return &Handler{
		db:         db,
		redis:      redis,
		resolver:   resolver,
		chat:       chatSvc,
		receipts:   receipts,
		moderation: moderation,
		tracker:    tracker,
		notifier:   notifier,
		blobs:      blobs,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// serviceError maps chat and room errors onto HTTP statuses.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrForbidden):
		h.Error(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, chat.ErrEmptyMessage):
		h.Error(w, http.StatusBadRequest, "message needs a body or an attachment")
	case errors.Is(err, chat.ErrBodyTooLong):
		h.Error(w, http.StatusBadRequest, fmt.Sprintf("message body exceeds %d characters", chat.MaxBodyLen))
	case errors.Is(err, chat.ErrBadReply):
		h.Error(w, http.StatusBadRequest, "reply target is not in this room")
	case errors.Is(err, chat.ErrSelfReport):
		h.Error(w, http.StatusBadRequest, "cannot report your own message")
	case errors.Is(err, rooms.ErrInvalidKey):
		h.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// sanitizeName trims and limits a display name to 100 characters,
// removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
