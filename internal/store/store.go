package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// ErrDuplicate is returned by conditional inserts that hit a unique
// constraint. The room resolver relies on it to recover from
// concurrent creation; callers above that layer never see it.
var ErrDuplicate = errors.New("store: duplicate key")

// UserStore manages registered users.
type UserStore interface {
	CreateUser(ctx context.Context, displayName, avatarURL string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// MoodStore manages mood check-ins and the derived rosters.
type MoodStore interface {
	RecordMood(ctx context.Context, userID uuid.UUID, mood models.Mood) error
	LatestMood(ctx context.Context, userID uuid.UUID, since time.Time) (models.Mood, bool, error)
	ActiveUsers(ctx context.Context, since time.Time) ([]models.ActiveUser, error)
}

// ContactStore manages each user's saved contact roster.
type ContactStore interface {
	// AddContact returns ErrDuplicate when the contact is already saved.
	AddContact(ctx context.Context, userID, contactID uuid.UUID) error
	RemoveContact(ctx context.Context, userID, contactID uuid.UUID) error
	ListContacts(ctx context.Context, userID uuid.UUID) ([]models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
}

// RoomStore manages room rows. InsertRoom returns ErrDuplicate when a
// concurrent insert lost the (kind, key) unique constraint race.
type RoomStore interface {
	GetRoomByKey(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error)
	InsertRoom(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListActiveRooms(ctx context.Context, limit int) ([]models.Room, error)
	TouchRoom(ctx context.Context, id uuid.UUID) error
}

// MessageStore is the append-only per-room message log.
type MessageStore interface {
	// InsertMessage stores msg and fills in its Seq.
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// ListMessages returns non-deleted messages strictly after the
	// message whose Seq is afterSeq, ordered by (created_at, seq)
	// ascending. The cursor compares (created_at, seq) tuples so
	// commit order disagreeing with timestamp order never skips rows.
	ListMessages(ctx context.Context, roomID uuid.UUID, afterSeq int64, limit int) ([]models.Message, error)
	MarkDeleted(ctx context.Context, id string) error
}

// ReceiptStore manages per-(message, reader) read state.
type ReceiptStore interface {
	UpsertReceipt(ctx context.Context, messageID string, userID uuid.UUID) error
	HasReceipt(ctx context.Context, messageID string) (bool, error)
	// ListUnread returns ids of non-deleted messages in the room that
	// are addressed to receiverID and carry no receipt from them yet.
	ListUnread(ctx context.Context, roomID, receiverID uuid.UUID) ([]string, error)
}

// ReportStore is the append-only moderation report log.
type ReportStore interface {
	InsertReport(ctx context.Context, report *models.Report) error
	CountReports(ctx context.Context, messageID string) (int64, error)
}

// DataStore defines the interface for durable storage.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	UserStore
	MoodStore
	ContactStore
	RoomStore
	MessageStore
	ReceiptStore
	ReportStore

	Close()
	Ping(ctx context.Context) error
}
