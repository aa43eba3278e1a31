package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/blob"
)

// UploadRequest represents the attachment upload request. Data is
// base64 so uploads ride the same JSON surface as everything else.
type UploadRequest struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// UploadResponse represents the attachment upload response.
type UploadResponse struct {
	URL string `json:"url"`
}

// Upload stores an image attachment and returns its public URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "data must be base64")
		return
	}
	if len(data) == 0 {
		h.Error(w, http.StatusBadRequest, "empty upload")
		return
	}

	url, err := h.blobs.Put(req.ContentType, data)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrTooLarge):
			h.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
		case errors.Is(err, blob.ErrBadType):
			h.Error(w, http.StatusUnsupportedMediaType, "unsupported content type")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to store upload")
		}
		return
	}

	h.JSON(w, http.StatusCreated, UploadResponse{URL: url})
}

// ServeBlob serves a stored attachment by name.
func (h *Handler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	path, err := h.blobs.Open("/blobs/" + chi.URLParam(r, "name"))
	if err != nil {
		h.Error(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeFile(w, r, path)
}
