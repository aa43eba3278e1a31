package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
)

// ReportRequest represents the report message request.
type ReportRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ReportResponse represents the report message response.
type ReportResponse struct {
	ReportID int64 `json:"report_id"`
	Count    int64 `json:"count"`
}

// DeleteMessage soft-deletes a message. Only the sender or a
// moderator may delete.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.chat.SoftDelete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReportMessage files a moderation report against a message.
func (h *Handler) ReportMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ReportRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	messageID := chi.URLParam(r, "id")
	report, err := h.moderation.Report(r.Context(), user, messageID, req.Reason)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	count, err := h.moderation.ReportCount(r.Context(), messageID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusCreated, ReportResponse{ReportID: report.ID, Count: count})
}

// MarkMessageRead records a read receipt for an addressed message.
func (h *Handler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.receipts.MarkRead(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
