package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/metrics"
	"github.com/dav22-wa/uni-mood-share/internal/store"
)

// defaultSearchLimit caps a user search page when none is requested.
const defaultSearchLimit = 20

// maxSearchLimit is the hard user search ceiling.
const maxSearchLimit = 100

// ContactResponse is one roster entry: a user's public profile plus
// their live presence and current mood.
type ContactResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Mood        string `json:"mood,omitempty"`
	Online      bool   `json:"online"`
}

// SearchUsers finds users by display name so a contact can be added
// without already knowing their id.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "search query required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	found, err := h.db.SearchUsers(r.Context(), query, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]ContactResponse, 0, len(found))
	for _, u := range found {
		if u.ID == user.ID {
			continue
		}
		out = append(out, h.contactResponse(r, u.ID, u.DisplayName, u.AvatarURL))
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"users": out})
}

// AddContact saves another user on the caller's roster. Saving an
// already-saved contact succeeds without a second row.
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	contactID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if contactID == user.ID {
		h.Error(w, http.StatusBadRequest, "cannot add yourself as a contact")
		return
	}

	contact, err := h.db.GetUser(r.Context(), contactID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if contact == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	switch err := h.db.AddContact(r.Context(), user.ID, contactID); {
	case errors.Is(err, store.ErrDuplicate):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		h.Error(w, http.StatusInternalServerError, "database error")
	default:
		metrics.ContactsAdded.Inc()
		w.WriteHeader(http.StatusCreated)
	}
}

// RemoveContact drops a user from the caller's roster.
func (h *Handler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	contactID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.db.RemoveContact(r.Context(), user.ID, contactID); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListContacts returns the caller's roster with each contact's
// presence and current mood attached.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	contacts, err := h.db.ListContacts(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, h.contactResponse(r, c.ID, c.DisplayName, c.AvatarURL))
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"contacts": out})
}

func (h *Handler) contactResponse(r *http.Request, id uuid.UUID, name, avatar string) ContactResponse {
	resp := ContactResponse{
		ID:          id.String(),
		DisplayName: name,
		AvatarURL:   avatar,
		Online:      h.tracker.Online(id),
	}
	since := time.Now().Add(-moodWindow)
	if mood, ok, err := h.db.LatestMood(r.Context(), id, since); err == nil && ok {
		resp.Mood = string(mood)
	}
	return resp
}
