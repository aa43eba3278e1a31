package rooms

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/models"
	"github.com/dav22-wa/uni-mood-share/internal/store"
)

// fakeStore serves Resolve tests without a database. It can simulate
// losing the insert race by returning ErrDuplicate once.
type fakeStore struct {
	rooms       map[string]*models.Room
	failInserts int
	insertCalls int
	lookupCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]*models.Room)}
}

func (f *fakeStore) GetRoomByKey(_ context.Context, kind models.RoomKind, key string) (*models.Room, error) {
	f.lookupCalls++
	return f.rooms[string(kind)+"/"+key], nil
}

func (f *fakeStore) InsertRoom(_ context.Context, kind models.RoomKind, key string) (*models.Room, error) {
	f.insertCalls++
	if f.failInserts > 0 {
		f.failInserts--
		// Simulate a concurrent winner: the row appears, our insert fails.
		f.rooms[string(kind)+"/"+key] = &models.Room{ID: uuid.New(), Kind: kind, Key: key}
		return nil, store.ErrDuplicate
	}
	room := &models.Room{ID: uuid.New(), Kind: kind, Key: key}
	f.rooms[string(kind)+"/"+key] = room
	return room, nil
}

func TestResolveCreatesOnce(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(fs)

	first, err := r.Resolve(context.Background(), models.RoomMood, "happy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), models.RoomMood, "happy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same room, got %s and %s", first.ID, second.ID)
	}
	if fs.insertCalls != 1 {
		t.Errorf("expected 1 insert, got %d", fs.insertCalls)
	}
}

func TestResolveLosesInsertRace(t *testing.T) {
	fs := newFakeStore()
	fs.failInserts = 1
	r := NewResolver(fs)

	room, err := r.Resolve(context.Background(), models.RoomGeneral, "general")
	if err != nil {
		t.Fatalf("Resolve after lost race: %v", err)
	}
	if room == nil {
		t.Fatal("expected the winner's room, got nil")
	}
	if fs.lookupCalls != 2 {
		t.Errorf("expected re-lookup after duplicate, got %d lookups", fs.lookupCalls)
	}
}

func TestResolveRejectsBadKeys(t *testing.T) {
	r := NewResolver(newFakeStore())

	cases := []struct {
		kind models.RoomKind
		key  string
	}{
		{models.RoomMood, "furious"},
		{models.RoomGeneral, "lobby"},
		{models.RoomDirect, "not-a-uuid:also-not"},
		{models.RoomKind("cluster"), "x"},
	}
	for _, tc := range cases {
		if _, err := r.Resolve(context.Background(), tc.kind, tc.key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%s/%s: expected ErrInvalidKey, got %v", tc.kind, tc.key, err)
		}
	}
}

func TestDirectKeyCanonical(t *testing.T) {
	a := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	b := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")

	if DirectKey(a, b) != DirectKey(b, a) {
		t.Error("direct key should not depend on argument order")
	}
	if err := ValidateKey(models.RoomDirect, DirectKey(a, b)); err != nil {
		t.Errorf("canonical key should validate: %v", err)
	}
	if err := ValidateKey(models.RoomDirect, b.String()+":"+a.String()); err == nil {
		t.Error("reversed key should fail validation")
	}
	if err := ValidateKey(models.RoomDirect, DirectKey(a, a)); err == nil {
		t.Error("self-conversation should fail validation")
	}
}

func TestParticipantOf(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()
	room := &models.Room{Kind: models.RoomDirect, Key: DirectKey(a, b)}

	if !ParticipantOf(room, a) || !ParticipantOf(room, b) {
		t.Error("both participants should be admitted")
	}
	if ParticipantOf(room, c) {
		t.Error("outsider should be rejected")
	}
	if !ParticipantOf(&models.Room{Kind: models.RoomMood, Key: "happy"}, c) {
		t.Error("mood rooms admit everyone")
	}
}
