package models

import (
	"time"

	"github.com/google/uuid"
)

// ReadReceipt records that a recipient has observed a message.
// At most one receipt exists per (message, reader); writes are upserts.
type ReadReceipt struct {
	MessageID string    `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
