package models

import (
	"time"

	"github.com/google/uuid"
)

// Report is an append-only moderation record against a message.
// Duplicate reports from the same reporter are kept: report volume is
// the signal reviewers look at.
type Report struct {
	ID         int64     `json:"id"`
	MessageID  string    `json:"message_id"`
	ReporterID uuid.UUID `json:"reporter_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
