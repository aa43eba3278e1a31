// Package presence tracks which users are live on which channels.
// Membership is ephemeral: a member who stops heartbeating is swept
// out after the TTL, so a crashed client never lingers.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dav22-wa/uni-mood-share/internal/fanout"
	"github.com/dav22-wa/uni-mood-share/internal/metrics"
	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// DefaultTTL is how long a member stays present without a heartbeat.
const DefaultTTL = 45 * time.Second

// Member is one user's live entry on a channel.
type Member struct {
	UserID      uuid.UUID   `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Mood        models.Mood `json:"mood,omitempty"`
	JoinedAt    time.Time   `json:"joined_at"`

	lastSeen time.Time
}

type channel struct {
	mu      sync.Mutex
	members map[uuid.UUID]*Member
}

// Tracker keeps per-channel membership sets and announces changes as
// payload-free sync hints. Consumers fetch the full snapshot on every
// hint, so a missed hint self-heals on the next one.
type Tracker struct {
	ttl      time.Duration
	notifier fanout.Notifier

	mu       sync.RWMutex
	channels map[string]*channel

	stop chan struct{}
	done chan struct{}
}

// NewTracker creates a tracker and starts its expiry sweeper.
// A ttl of zero selects DefaultTTL.
func NewTracker(notifier fanout.Notifier, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Tracker{
		ttl:      ttl,
		notifier: notifier,
		channels: make(map[string]*channel),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.sweep()
	return t
}

// Join adds or refreshes the user's entry on the channel.
func (t *Tracker) Join(ctx context.Context, name string, member Member) {
	ch := t.channel(name, true)
	now := time.Now()

	ch.mu.Lock()
	existing, ok := ch.members[member.UserID]
	if ok {
		existing.DisplayName = member.DisplayName
		existing.Mood = member.Mood
		existing.lastSeen = now
	} else {
		member.JoinedAt = now
		member.lastSeen = now
		ch.members[member.UserID] = &member
	}
	size := len(ch.members)
	ch.mu.Unlock()

	metrics.PresenceMembers.WithLabelValues(name).Set(float64(size))
	if !ok {
		t.announce(ctx, name)
	}
}

// Heartbeat refreshes the member's TTL. Unknown members are re-joined
// with what the heartbeat carries, so a swept client recovers silently.
func (t *Tracker) Heartbeat(ctx context.Context, name string, member Member) {
	t.Join(ctx, name, member)
}

// Leave removes the user from the channel.
func (t *Tracker) Leave(ctx context.Context, name string, userID uuid.UUID) {
	ch := t.channel(name, false)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	_, ok := ch.members[userID]
	delete(ch.members, userID)
	size := len(ch.members)
	ch.mu.Unlock()

	if ok {
		metrics.PresenceMembers.WithLabelValues(name).Set(float64(size))
		t.announce(ctx, name)
	}
}

// Snapshot returns the channel's current members sorted by join time.
func (t *Tracker) Snapshot(name string) []Member {
	ch := t.channel(name, false)
	if ch == nil {
		return []Member{}
	}

	ch.mu.Lock()
	out := make([]Member, 0, len(ch.members))
	for _, m := range ch.members {
		out = append(out, *m)
	}
	ch.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Online reports whether the user is live on any channel. A member
// the sweeper has not collected yet but whose TTL already ran out
// counts as offline.
func (t *Tracker) Online(userID uuid.UUID) bool {
	cutoff := time.Now().Add(-t.ttl)

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.channels {
		ch.mu.Lock()
		m, ok := ch.members[userID]
		live := ok && m.lastSeen.After(cutoff)
		ch.mu.Unlock()
		if live {
			return true
		}
	}
	return false
}

// Close stops the sweeper. Membership state is discarded.
func (t *Tracker) Close() {
	close(t.stop)
	<-t.done
}

func (t *Tracker) channel(name string, create bool) *channel {
	t.mu.RLock()
	ch := t.channels[name]
	t.mu.RUnlock()
	if ch != nil || !create {
		return ch
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ch = t.channels[name]; ch == nil {
		ch = &channel{members: make(map[uuid.UUID]*Member)}
		t.channels[name] = ch
	}
	return ch
}

func (t *Tracker) announce(ctx context.Context, name string) {
	hint := fanout.Hint{Topic: fanout.PresenceTopic(name), Kind: fanout.KindPresence}
	if err := t.notifier.Publish(ctx, hint); err != nil {
		log.Warn().Err(err).Str("channel", name).Msg("Presence hint publish failed")
		return
	}
	metrics.FanoutHintsPublished.Inc()
}

func (t *Tracker) sweep() {
	defer close(t.done)
	ticker := time.NewTicker(t.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.expireStale()
		}
	}
}

func (t *Tracker) expireStale() {
	cutoff := time.Now().Add(-t.ttl)

	t.mu.RLock()
	names := make([]string, 0, len(t.channels))
	for name := range t.channels {
		names = append(names, name)
	}
	t.mu.RUnlock()

	for _, name := range names {
		ch := t.channel(name, false)
		if ch == nil {
			continue
		}

		ch.mu.Lock()
		expired := 0
		for id, m := range ch.members {
			if m.lastSeen.Before(cutoff) {
				delete(ch.members, id)
				expired++
			}
		}
		size := len(ch.members)
		ch.mu.Unlock()

		if expired > 0 {
			log.Debug().Str("channel", name).Int("expired", expired).Msg("Swept stale presence")
			metrics.PresenceMembers.WithLabelValues(name).Set(float64(size))
			t.announce(context.Background(), name)
		}
	}
}
