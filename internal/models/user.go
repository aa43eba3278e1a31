package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered chat participant.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	IsModerator bool      `json:"is_moderator,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
