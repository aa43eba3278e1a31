package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/fanout"
	"github.com/dav22-wa/uni-mood-share/internal/models"
)

func newTestTracker(t *testing.T, ttl time.Duration) (*Tracker, *fanout.Hub) {
	t.Helper()
	hub := fanout.NewHub()
	tracker := NewTracker(hub, ttl)
	t.Cleanup(func() {
		tracker.Close()
		hub.Close()
	})
	return tracker, hub
}

func TestJoinAndSnapshot(t *testing.T) {
	tracker, _ := newTestTracker(t, time.Minute)
	ctx := context.Background()

	alice := Member{UserID: uuid.New(), DisplayName: "alice", Mood: models.MoodHappy}
	bob := Member{UserID: uuid.New(), DisplayName: "bob"}

	tracker.Join(ctx, "lounge", alice)
	tracker.Join(ctx, "lounge", bob)
	tracker.Join(ctx, "other", alice)

	snap := tracker.Snapshot("lounge")
	if len(snap) != 2 {
		t.Fatalf("expected 2 members, got %d", len(snap))
	}
	if len(tracker.Snapshot("other")) != 1 {
		t.Error("channels should be independent")
	}
	if len(tracker.Snapshot("empty")) != 0 {
		t.Error("unknown channel should be empty, not nil-panic")
	}
}

func TestRepeatJoinDoesNotDuplicate(t *testing.T) {
	tracker, _ := newTestTracker(t, time.Minute)
	ctx := context.Background()

	m := Member{UserID: uuid.New(), DisplayName: "alice", Mood: models.MoodTired}
	tracker.Join(ctx, "lounge", m)
	m.Mood = models.MoodExcited
	tracker.Join(ctx, "lounge", m)

	snap := tracker.Snapshot("lounge")
	if len(snap) != 1 {
		t.Fatalf("expected 1 member after re-join, got %d", len(snap))
	}
	if snap[0].Mood != models.MoodExcited {
		t.Errorf("re-join should refresh mood, got %q", snap[0].Mood)
	}
}

func TestLeaveRemovesMember(t *testing.T) {
	tracker, _ := newTestTracker(t, time.Minute)
	ctx := context.Background()

	m := Member{UserID: uuid.New(), DisplayName: "alice"}
	tracker.Join(ctx, "lounge", m)
	tracker.Leave(ctx, "lounge", m.UserID)

	if len(tracker.Snapshot("lounge")) != 0 {
		t.Error("member should be gone after leave")
	}
	// Leaving twice, or leaving an unknown channel, is a no-op.
	tracker.Leave(ctx, "lounge", m.UserID)
	tracker.Leave(ctx, "nowhere", m.UserID)
}

func TestSnapshotConverges(t *testing.T) {
	tracker, _ := newTestTracker(t, time.Minute)
	ctx := context.Background()

	u1 := Member{UserID: uuid.New(), DisplayName: "u1"}
	u2 := Member{UserID: uuid.New(), DisplayName: "u2"}

	tracker.Join(ctx, "lounge", u1)
	tracker.Join(ctx, "lounge", u2)
	tracker.Leave(ctx, "lounge", u1.UserID)

	snap := tracker.Snapshot("lounge")
	if len(snap) != 1 || snap[0].UserID != u2.UserID {
		t.Errorf("expected snapshot {u2}, got %+v", snap)
	}
}

func TestStaleMembersAreSwept(t *testing.T) {
	tracker, _ := newTestTracker(t, 60*time.Millisecond)
	ctx := context.Background()

	stale := Member{UserID: uuid.New(), DisplayName: "stale"}
	live := Member{UserID: uuid.New(), DisplayName: "live"}
	tracker.Join(ctx, "lounge", stale)
	tracker.Join(ctx, "lounge", live)

	deadline := time.After(2 * time.Second)
	for {
		// Keep the live member fresh while the stale one times out.
		tracker.Heartbeat(ctx, "lounge", live)
		snap := tracker.Snapshot("lounge")
		if len(snap) == 1 && snap[0].UserID == live.UserID {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("stale member never swept, snapshot has %d members", len(snap))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMembershipChangePublishesHint(t *testing.T) {
	tracker, hub := newTestTracker(t, time.Minute)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, fanout.PresenceTopic("lounge"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	m := Member{UserID: uuid.New(), DisplayName: "alice"}
	tracker.Join(ctx, "lounge", m)

	select {
	case hint := <-sub.Hints():
		if hint.Kind != fanout.KindPresence {
			t.Errorf("expected presence hint, got %q", hint.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("join published no hint")
	}

	// A heartbeat for an already-present member is not a change.
	tracker.Heartbeat(ctx, "lounge", m)
	select {
	case <-sub.Hints():
		t.Error("heartbeat should not publish a hint")
	case <-time.After(50 * time.Millisecond):
	}

	tracker.Leave(ctx, "lounge", m.UserID)
	select {
	case <-sub.Hints():
	case <-time.After(time.Second):
		t.Fatal("leave published no hint")
	}
}

func TestOnlineSpansChannels(t *testing.T) {
	tracker, _ := newTestTracker(t, time.Minute)
	ctx := context.Background()

	alice := Member{UserID: uuid.New(), DisplayName: "alice"}
	tracker.Join(ctx, "lounge", alice)

	if !tracker.Online(alice.UserID) {
		t.Error("joined member should be online")
	}
	if tracker.Online(uuid.New()) {
		t.Error("unknown user should be offline")
	}

	tracker.Leave(ctx, "lounge", alice.UserID)
	if tracker.Online(alice.UserID) {
		t.Error("left member should be offline")
	}
}

func TestOnlineExpiresWithTTL(t *testing.T) {
	tracker, _ := newTestTracker(t, 30*time.Millisecond)
	ctx := context.Background()

	m := Member{UserID: uuid.New(), DisplayName: "alice"}
	tracker.Join(ctx, "lounge", m)
	time.Sleep(60 * time.Millisecond)

	// The sweeper may not have collected the entry yet, but a member
	// past the TTL already reads as offline.
	if tracker.Online(m.UserID) {
		t.Error("stale member should be offline")
	}
}
