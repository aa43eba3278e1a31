package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/dav22-wa/uni-mood-share/internal/metrics"
)

// sessionTTL is how long a bearer token stays valid without re-registering.
const sessionTTL = 30 * 24 * time.Hour

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
}

// Register creates a user and issues a bearer session token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.DisplayName)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "display_name is required")
		return
	}
	if req.AvatarURL != "" {
		if _, err := url.ParseRequestURI(req.AvatarURL); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid avatar_url")
			return
		}
	}

	user, err := h.db.CreateUser(r.Context(), name, req.AvatarURL)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := newToken()
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	if err := h.redis.PutSession(r.Context(), token, user.ID, sessionTTL); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store session")
		return
	}

	metrics.UsersRegistered.Inc()
	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:          user.ID.String(),
		DisplayName: user.DisplayName,
		Token:       token,
	})
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
