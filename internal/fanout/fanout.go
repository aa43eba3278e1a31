// Package fanout delivers payload-free change hints to subscribers.
// A hint tells a client that something on a topic changed; the client
// refetches state over the regular HTTP surface. Hints carry no message
// bodies, so dropping one under load costs a refetch, never data.
package fanout

import (
	"context"

	"github.com/google/uuid"
)

// Kind classifies what changed on a topic.
type Kind string

const (
	KindMessage  Kind = "message"  // new or deleted message in a room
	KindReceipt  Kind = "receipt"  // read receipt recorded
	KindPresence Kind = "presence" // channel membership changed
)

// Hint is the unit of fan-out. Subscribers treat it as a signal to
// refetch, not as data.
type Hint struct {
	Topic string `json:"topic"`
	Kind  Kind   `json:"kind"`
}

// Notifier publishes hints and hands out per-topic subscriptions.
type Notifier interface {
	// Publish delivers a hint to current subscribers of hint.Topic.
	// It never blocks on slow consumers.
	Publish(ctx context.Context, hint Hint) error
	// Subscribe registers interest in a topic. The caller must Close
	// the subscription when done.
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	// Close tears down the notifier and all open subscriptions.
	Close() error
}

// Subscription is a live feed of hints for one topic.
type Subscription struct {
	ch   chan Hint
	stop func()
}

// Hints returns the receive channel. It is closed when the
// subscription or its notifier shuts down.
func (s *Subscription) Hints() <-chan Hint {
	return s.ch
}

// Close cancels the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.stop()
}

// RoomTopic names the hint topic for a room.
func RoomTopic(roomID uuid.UUID) string {
	return "room:" + roomID.String()
}

// PresenceTopic names the hint topic for a presence channel.
func PresenceTopic(channel string) string {
	return "presence:" + channel
}
