package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/chat"
	"github.com/dav22-wa/uni-mood-share/internal/models"
	"github.com/dav22-wa/uni-mood-share/internal/rooms"
)

// DMMessagesResponse represents the direct conversation listing.
type DMMessagesResponse struct {
	Peer     string            `json:"peer"`
	Messages []MessageResponse `json:"messages"`
	HasMore  bool              `json:"has_more"`
}

// SendDMRequest represents the send direct message request.
type SendDMRequest struct {
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	ReplyTo       string `json:"reply_to,omitempty"`
}

// MarkReadResponse reports how many messages a read sweep covered.
type MarkReadResponse struct {
	Marked int `json:"marked"`
}

// dmRoom resolves the direct room between the caller and the {peer}
// URL segment.
func (h *Handler) dmRoom(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Room, uuid.UUID, bool) {
	peerID, err := uuid.Parse(chi.URLParam(r, "peer"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid peer id")
		return nil, uuid.Nil, false
	}
	if peerID == user.ID {
		h.Error(w, http.StatusBadRequest, "cannot message yourself")
		return nil, uuid.Nil, false
	}

	peer, err := h.db.GetUser(r.Context(), peerID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil, uuid.Nil, false
	}
	if peer == nil {
		h.Error(w, http.StatusNotFound, "peer not found")
		return nil, uuid.Nil, false
	}

	room, err := h.resolver.Resolve(r.Context(), models.RoomDirect, rooms.DirectKey(user.ID, peerID))
	if err != nil {
		h.serviceError(w, err)
		return nil, uuid.Nil, false
	}
	return room, peerID, true
}

// ListDMs returns a page of the direct conversation with the peer.
func (h *Handler) ListDMs(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	room, peerID, ok := h.dmRoom(w, r, user)
	if !ok {
		return
	}

	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = chat.DefaultListLimit
	}
	if limit > chat.MaxListLimit {
		limit = chat.MaxListLimit
	}

	msgs, err := h.chat.List(r.Context(), user, room, afterSeq, limit+1)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	threads, err := h.chat.ThreadIndex(r.Context(), msgs)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toMessageResponse(msg, threads))
	}

	h.JSON(w, http.StatusOK, DMMessagesResponse{
		Peer:     peerID.String(),
		Messages: out,
		HasMore:  hasMore,
	})
}

// SendDM appends a message to the direct conversation with the peer.
func (h *Handler) SendDM(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	room, peerID, ok := h.dmRoom(w, r, user)
	if !ok {
		return
	}

	var req SendDMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.chat.Append(r.Context(), user, room, chat.AppendInput{
		Body:          req.Body,
		AttachmentURL: req.AttachmentURL,
		ReplyTo:       req.ReplyTo,
		ReceiverID:    &peerID,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, PostMessageResponse{
		ID:        msg.ID,
		Seq:       msg.Seq,
		CreatedAt: msg.CreatedAt,
	})
}

// MarkConversationRead marks all unread messages from the peer as read.
func (h *Handler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	room, _, ok := h.dmRoom(w, r, user)
	if !ok {
		return
	}

	ctx := r.Context()
	marked, err := h.receipts.MarkConversationRead(ctx, user, room)
	if err != nil && marked == 0 {
		h.Error(w, http.StatusInternalServerError, "failed to mark conversation read")
		return
	}
	// Partial success still reports what was marked; the client's next
	// sweep picks up the rest.
	h.JSON(w, http.StatusOK, MarkReadResponse{Marked: marked})
}
