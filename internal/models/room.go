package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomKind classifies how a room's key is interpreted.
type RoomKind string

const (
	RoomMood    RoomKind = "mood"    // key is a mood name
	RoomGeneral RoomKind = "general" // key is the literal "general"
	RoomDirect  RoomKind = "direct"  // key is the canonical pair of user ids
)

// Room is a logical container for an ordered message log.
// At most one room exists per (kind, key); rooms are created lazily
// and never destroyed.
type Room struct {
	ID           uuid.UUID `json:"id"`
	Kind         RoomKind  `json:"kind"`
	Key          string    `json:"key"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int64     `json:"message_count"`
}
