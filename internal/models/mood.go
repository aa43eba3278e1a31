package models

import (
	"time"

	"github.com/google/uuid"
)

// Mood is a self-reported emotional state recorded at check-in.
type Mood string

const (
	MoodHappy    Mood = "happy"
	MoodStressed Mood = "stressed"
	MoodLonely   Mood = "lonely"
	MoodExcited  Mood = "excited"
	MoodTired    Mood = "tired"
)

// ValidMood reports whether m is one of the recognized moods.
func ValidMood(m Mood) bool {
	switch m {
	case MoodHappy, MoodStressed, MoodLonely, MoodExcited, MoodTired:
		return true
	}
	return false
}

// ActiveUser is one row of the "who checked in" roster: a user's
// latest mood within the active window.
type ActiveUser struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Mood        Mood      `json:"mood"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
