package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/chat"
	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID            string              `json:"id"`
	Seq           int64               `json:"seq"`
	From          string              `json:"from"`
	To            string              `json:"to,omitempty"`
	Body          string              `json:"body"`
	AttachmentURL string              `json:"attachment_url,omitempty"`
	ReplyTo       string              `json:"reply_to,omitempty"`
	Thread        *chat.ThreadContext `json:"thread,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// RoomMessagesResponse represents the list messages response.
type RoomMessagesResponse struct {
	Room     RoomInfo          `json:"room"`
	Messages []MessageResponse `json:"messages"`
	HasMore  bool              `json:"has_more"`
}

// RoomInfo represents basic room information.
type RoomInfo struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	ReplyTo       string `json:"reply_to,omitempty"`
}

// PostMessageResponse represents the post message response.
type PostMessageResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// roomFromURL resolves the {kind}/{key} URL segments to a room,
// creating it on first use. Direct rooms are not reachable here:
// only the /dm routes address the receiver, and a DM posted without
// one would never show up as unread.
func (h *Handler) roomFromURL(w http.ResponseWriter, r *http.Request) (*models.Room, bool) {
	kind := models.RoomKind(chi.URLParam(r, "kind"))
	key := chi.URLParam(r, "key")

	if kind == models.RoomDirect {
		h.Error(w, http.StatusNotFound, "direct conversations live under /dm")
		return nil, false
	}

	room, err := h.resolver.Resolve(r.Context(), kind, key)
	if err != nil {
		h.serviceError(w, err)
		return nil, false
	}
	return room, true
}

// ListRoomMessages returns a page of a room's messages.
func (h *Handler) ListRoomMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	room, ok := h.roomFromURL(w, r)
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

	// Fetch one extra to learn whether another page exists.
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

	h.JSON(w, http.StatusOK, RoomMessagesResponse{
		Room:     RoomInfo{ID: room.ID.String(), Kind: string(room.Kind), Key: room.Key},
		Messages: out,
		HasMore:  hasMore,
	})
}

// PostRoomMessage appends a message to a room.
func (h *Handler) PostRoomMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	room, ok := h.roomFromURL(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.chat.Append(r.Context(), user, room, chat.AppendInput{
		Body:          req.Body,
		AttachmentURL: req.AttachmentURL,
		ReplyTo:       req.ReplyTo,
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

// ListRooms returns recently active shared rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	roomsList, err := h.db.ListActiveRooms(r.Context(), 50)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	type roomEntry struct {
		RoomInfo
		LastActiveAt time.Time `json:"last_active_at"`
		MessageCount int64     `json:"message_count"`
	}
	out := make([]roomEntry, 0, len(roomsList))
	for _, room := range roomsList {
		out = append(out, roomEntry{
			RoomInfo:     RoomInfo{ID: room.ID.String(), Kind: string(room.Kind), Key: room.Key},
			LastActiveAt: room.LastActiveAt,
			MessageCount: room.MessageCount,
		})
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"rooms": out})
}

func toMessageResponse(msg models.Message, threads map[string]chat.ThreadContext) MessageResponse {
	out := MessageResponse{
		ID:            msg.ID,
		Seq:           msg.Seq,
		From:          msg.SenderID.String(),
		Body:          msg.Body,
		AttachmentURL: msg.AttachmentURL,
		ReplyTo:       msg.ReplyTo,
		CreatedAt:     msg.CreatedAt,
	}
	if msg.ReceiverID != nil {
		out.To = msg.ReceiverID.String()
	}
	if msg.ReplyTo != "" {
		if tc, ok := threads[msg.ReplyTo]; ok {
			out.Thread = &tc
		}
	}
	return out
}
