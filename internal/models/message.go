package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry in a room's append-only log.
// IDs are ULIDs, so they sort in creation order; Seq is the storage
// insertion sequence used as an ordering tie-break when timestamps
// collide. ReplyTo always names a strictly earlier message in the
// same room (enforced at append time, not re-validated afterwards).
type Message struct {
	ID            string     `json:"id"`
	RoomID        uuid.UUID  `json:"room_id"`
	SenderID      uuid.UUID  `json:"from"`
	ReceiverID    *uuid.UUID `json:"to,omitempty"` // set for direct rooms only
	Body          string     `json:"body"`
	AttachmentURL string     `json:"attachment_url,omitempty"`
	ReplyTo       string     `json:"reply_to,omitempty"`
	Seq           int64      `json:"seq"`
	CreatedAt     time.Time  `json:"created_at"`
	Deleted       bool       `json:"-"`
}
