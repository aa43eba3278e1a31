// Package rooms resolves logical room keys to durable room records.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dav22-wa/uni-mood-share/internal/models"
	"github.com/dav22-wa/uni-mood-share/internal/store"
)

// ErrInvalidKey is returned when a room key fails validation for its kind.
var ErrInvalidKey = errors.New("rooms: invalid room key")

// Store is the subset of the data store the resolver needs.
type Store interface {
	GetRoomByKey(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error)
	InsertRoom(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error)
}

// Resolver maps (kind, key) pairs to rooms, creating them on first use.
type Resolver struct {
	store Store
}

// NewResolver creates a room resolver backed by the given store.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the room for (kind, key), creating it if absent.
// Two concurrent callers racing on the same key both get the same room:
// the loser of the insert race re-reads the winner's row.
func (r *Resolver) Resolve(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error) {
	if err := ValidateKey(kind, key); err != nil {
		return nil, err
	}

	room, err := r.store.GetRoomByKey(ctx, kind, key)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}

	room, err = r.store.InsertRoom(ctx, kind, key)
	if err == nil {
		log.Debug().Str("kind", string(kind)).Str("key", key).Msg("Room created")
		return room, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, err
	}

	// Lost the insert race. The winner's row must exist now.
	room, err = r.store.GetRoomByKey(ctx, kind, key)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("rooms: duplicate insert but no row for %s/%s", kind, key)
	}
	return room, nil
}

// DirectKey builds the canonical key for a direct conversation between
// two users. The same pair always yields the same key regardless of
// argument order.
func DirectKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if as > bs {
		as, bs = bs, as
	}
	return as + ":" + bs
}

// ValidateKey checks that key is well formed for the given room kind.
func ValidateKey(kind models.RoomKind, key string) error {
	switch kind {
	case models.RoomMood:
		if !models.ValidMood(models.Mood(key)) {
			return fmt.Errorf("%w: unknown mood %q", ErrInvalidKey, key)
		}
	case models.RoomGeneral:
		if key != "general" {
			return fmt.Errorf("%w: general room key must be %q", ErrInvalidKey, "general")
		}
	case models.RoomDirect:
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("%w: direct key needs two participants", ErrInvalidKey)
		}
		a, err := uuid.Parse(parts[0])
		if err != nil {
			return fmt.Errorf("%w: %q is not a user id", ErrInvalidKey, parts[0])
		}
		b, err := uuid.Parse(parts[1])
		if err != nil {
			return fmt.Errorf("%w: %q is not a user id", ErrInvalidKey, parts[1])
		}
		if a == b {
			return fmt.Errorf("%w: direct room needs two distinct users", ErrInvalidKey)
		}
		if key != DirectKey(a, b) {
			return fmt.Errorf("%w: direct key not in canonical order", ErrInvalidKey)
		}
	default:
		return fmt.Errorf("%w: unknown room kind %q", ErrInvalidKey, kind)
	}
	return nil
}

// ParticipantOf reports whether userID is one of the two users in a
// direct room key. Non-direct rooms admit everyone.
func ParticipantOf(room *models.Room, userID uuid.UUID) bool {
	if room.Kind != models.RoomDirect {
		return true
	}
	parts := strings.SplitN(room.Key, ":", 2)
	if len(parts) != 2 {
		return false
	}
	return parts[0] == userID.String() || parts[1] == userID.String()
}
