package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// pgUniqueViolation is the Postgres error code for unique constraint hits.
const pgUniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		display_name TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		is_moderator BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS mood_checkins (
		id BIGSERIAL PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		mood TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		message_count BIGINT NOT NULL DEFAULT 0,
		UNIQUE (kind, key)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		room_id UUID NOT NULL,
		sender_id UUID NOT NULL,
		receiver_id UUID,
		body TEXT NOT NULL DEFAULT '',
		attachment_url TEXT NOT NULL DEFAULT '',
		reply_to TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS read_receipts (
		message_id TEXT NOT NULL,
		user_id UUID NOT NULL,
		read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (message_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS reports (
		id BIGSERIAL PRIMARY KEY,
		message_id TEXT NOT NULL,
		reporter_id UUID NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS contacts (
		user_id UUID NOT NULL,
		contact_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, contact_id)
	);

	CREATE INDEX IF NOT EXISTS idx_mood_checkins_user ON mood_checkins(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_room_order ON messages(room_id, created_at, seq);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_seq ON messages(seq);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(room_id, receiver_id) WHERE NOT deleted;
	CREATE INDEX IF NOT EXISTS idx_reports_message ON reports(message_id);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_active ON rooms(last_active_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, displayName, avatarURL string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, display_name, avatar_url)
		VALUES ($1, $2, $3)
		RETURNING id, display_name, avatar_url, is_moderator, created_at
	`, uuid.New(), displayName, avatarURL).Scan(
		&user.ID,
		&user.DisplayName,
		&user.AvatarURL,
		&user.IsModerator,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, avatar_url, is_moderator, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.DisplayName,
		&user.AvatarURL,
		&user.IsModerator,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// RecordMood appends a mood check-in for the user.
func (s *PostgresStore) RecordMood(ctx context.Context, userID uuid.UUID, mood models.Mood) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mood_checkins (user_id, mood) VALUES ($1, $2)
	`, userID, string(mood))
	return err
}

// LatestMood returns the user's most recent check-in at or after since.
func (s *PostgresStore) LatestMood(ctx context.Context, userID uuid.UUID, since time.Time) (models.Mood, bool, error) {
	var mood string
	err := s.pool.QueryRow(ctx, `
		SELECT mood FROM mood_checkins
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID, since).Scan(&mood)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return models.Mood(mood), true, nil
}

// ActiveUsers returns each user's latest check-in at or after since.
func (s *PostgresStore) ActiveUsers(ctx context.Context, since time.Time) ([]models.ActiveUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (m.user_id) m.user_id, u.display_name, m.mood, m.created_at
		FROM mood_checkins m
		JOIN users u ON u.id = m.user_id
		WHERE m.created_at >= $1
		ORDER BY m.user_id, m.created_at DESC, m.id DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ActiveUser
	for rows.Next() {
		var au models.ActiveUser
		var mood string
		if err := rows.Scan(&au.UserID, &au.DisplayName, &mood, &au.CheckedInAt); err != nil {
			return nil, err
		}
		au.Mood = models.Mood(mood)
		out = append(out, au)
	}
	return out, rows.Err()
}

// GetRoomByKey retrieves a room by its (kind, key) pair.
// AddContact saves contactID on userID's roster, returning
// ErrDuplicate when it is already there.
func (s *PostgresStore) AddContact(ctx context.Context, userID, contactID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contacts (user_id, contact_id) VALUES ($1, $2)
	`, userID, contactID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

// RemoveContact drops contactID from userID's roster. Removing an
// absent contact is a no-op.
func (s *PostgresStore) RemoveContact(ctx context.Context, userID, contactID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM contacts WHERE user_id = $1 AND contact_id = $2
	`, userID, contactID)
	return err
}

// ListContacts returns userID's saved contacts sorted by name.
func (s *PostgresStore) ListContacts(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.display_name, u.avatar_url, u.is_moderator, u.created_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = $1
		ORDER BY u.display_name ASC, u.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// SearchUsers finds users whose display name contains the query,
// case-insensitively.
func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, avatar_url, is_moderator, created_at
		FROM users
		WHERE display_name ILIKE '%' || $1 || '%'
		ORDER BY display_name ASC, id ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows pgx.Rows) ([]models.User, error) {
	var out []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.AvatarURL, &user.IsModerator, &user.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRoomByKey(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, key, created_at, last_active_at, message_count
		FROM rooms WHERE kind = $1 AND key = $2
	`, string(kind), key).Scan(
		&room.ID,
		&room.Kind,
		&room.Key,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// InsertRoom creates a room row, returning ErrDuplicate if another
// writer created the same (kind, key) first.
func (s *PostgresStore) InsertRoom(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, kind, key)
		VALUES ($1, $2, $3)
		RETURNING id, kind, key, created_at, last_active_at, message_count
	`, uuid.New(), string(kind), key).Scan(
		&room.ID,
		&room.Kind,
		&room.Key,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, key, created_at, last_active_at, message_count
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.Kind,
		&room.Key,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListActiveRooms retrieves non-direct rooms ordered by recent activity.
func (s *PostgresStore) ListActiveRooms(ctx context.Context, limit int) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, key, created_at, last_active_at, message_count
		FROM rooms
		WHERE kind <> $1
		ORDER BY last_active_at DESC
		LIMIT $2
	`, string(models.RoomDirect), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		err := rows.Scan(
			&room.ID,
			&room.Kind,
			&room.Key,
			&room.CreatedAt,
			&room.LastActiveAt,
			&room.MessageCount,
		)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// TouchRoom increments the message count and updates activity.
func (s *PostgresStore) TouchRoom(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rooms
		SET message_count = message_count + 1, last_active_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// InsertMessage stores a message and fills in its insertion sequence.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, room_id, sender_id, receiver_id, body, attachment_url, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING seq
	`, msg.ID, msg.RoomID, msg.SenderID, msg.ReceiverID, msg.Body,
		msg.AttachmentURL, msg.ReplyTo, msg.CreatedAt).Scan(&msg.Seq)
}

// GetMessage retrieves a message by ID, deleted ones included so the
// caller can distinguish "gone" from "never existed".
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg := &models.Message{}
	var replyTo *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, seq, room_id, sender_id, receiver_id, body, attachment_url, reply_to, created_at, deleted
		FROM messages WHERE id = $1
	`, id).Scan(
		&msg.ID,
		&msg.Seq,
		&msg.RoomID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Body,
		&msg.AttachmentURL,
		&replyTo,
		&msg.CreatedAt,
		&msg.Deleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if replyTo != nil {
		msg.ReplyTo = *replyTo
	}
	return msg, nil
}

// ListMessages returns non-deleted messages after the cursor in total
// order. The cursor compares (created_at, seq) tuples, matching the
// sort key: timestamps are assigned before commit, so a message with a
// lower seq can carry a later timestamp and must not be skipped.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID uuid.UUID, afterSeq int64, limit int) ([]models.Message, error) {
	query := `
		SELECT id, seq, room_id, sender_id, receiver_id, body, attachment_url, reply_to, created_at, deleted
		FROM messages
		WHERE room_id = $1 AND NOT deleted`
	args := []any{roomID}

	if afterSeq > 0 {
		var after time.Time
		err := s.pool.QueryRow(ctx,
			`SELECT created_at FROM messages WHERE seq = $1`, afterSeq).Scan(&after)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			query += ` AND seq > $2`
			args = append(args, afterSeq)
		case err != nil:
			return nil, err
		default:
			query += ` AND (created_at, seq) > ($2, $3)`
			args = append(args, after, afterSeq)
		}
	}

	query += fmt.Sprintf(`
		ORDER BY created_at ASC, seq ASC
		LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var msg models.Message
		var replyTo *string
		err := rows.Scan(
			&msg.ID,
			&msg.Seq,
			&msg.RoomID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Body,
			&msg.AttachmentURL,
			&replyTo,
			&msg.CreatedAt,
			&msg.Deleted,
		)
		if err != nil {
			return nil, err
		}
		if replyTo != nil {
			msg.ReplyTo = *replyTo
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MarkDeleted soft-deletes a message. The row survives so dangling
// reply references can still be told apart from unknown ids.
func (s *PostgresStore) MarkDeleted(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted = TRUE WHERE id = $1
	`, id)
	return err
}

// UpsertReceipt records a read receipt; re-reading is a no-op.
func (s *PostgresStore) UpsertReceipt(ctx context.Context, messageID string, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO read_receipts (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, userID)
	return err
}

// HasReceipt reports whether at least one receipt exists for the message.
func (s *PostgresStore) HasReceipt(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM read_receipts WHERE message_id = $1)
	`, messageID).Scan(&exists)
	return exists, err
}

// ListUnread returns ids of messages addressed to receiverID without a receipt.
func (s *PostgresStore) ListUnread(ctx context.Context, roomID, receiverID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id FROM messages m
		WHERE m.room_id = $1 AND m.receiver_id = $2 AND NOT m.deleted
		AND NOT EXISTS (
			SELECT 1 FROM read_receipts r
			WHERE r.message_id = m.id AND r.user_id = $2
		)
		ORDER BY m.seq ASC
	`, roomID, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertReport appends a moderation report and fills in its ID.
func (s *PostgresStore) InsertReport(ctx context.Context, report *models.Report) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO reports (message_id, reporter_id, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, report.MessageID, report.ReporterID, report.Reason).Scan(&report.ID, &report.CreatedAt)
}

// CountReports returns the number of reports filed against a message.
func (s *PostgresStore) CountReports(ctx context.Context, messageID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM reports WHERE message_id = $1
	`, messageID).Scan(&count)
	return count, err
}
