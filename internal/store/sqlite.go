package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs single-node
// deployments and tests; PostgresStore is the production store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/moodshare.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/moodshare.db"
	}

	if !strings.HasPrefix(dbPath, ":memory:") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Every pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		is_moderator INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mood_checkins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		mood TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_active_at DATETIME NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE (kind, key)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT,
		body TEXT NOT NULL DEFAULT '',
		attachment_url TEXT NOT NULL DEFAULT '',
		reply_to TEXT,
		created_at DATETIME NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS read_receipts (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		read_at DATETIME NOT NULL,
		PRIMARY KEY (message_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		reporter_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contacts (
		user_id TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, contact_id)
	);

	CREATE INDEX IF NOT EXISTS idx_mood_checkins_user ON mood_checkins(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_room_order ON messages(room_id, created_at, seq);
	CREATE INDEX IF NOT EXISTS idx_reports_message ON reports(message_id);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_active ON rooms(last_active_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a SQLite unique constraint hit.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, displayName, avatarURL string) (*models.User, error) {
	user := &models.User{
		ID:          uuid.New(),
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, avatar_url, is_moderator, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, user.ID.String(), user.DisplayName, user.AvatarURL, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var idStr string
	var isModerator int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, avatar_url, is_moderator, created_at
		FROM users WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&user.DisplayName,
		&user.AvatarURL,
		&isModerator,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	user.IsModerator = isModerator == 1
	return user, nil
}

// RecordMood appends a mood check-in for the user.
func (s *SQLiteStore) RecordMood(ctx context.Context, userID uuid.UUID, mood models.Mood) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mood_checkins (user_id, mood, created_at) VALUES (?, ?, ?)
	`, userID.String(), string(mood), time.Now().UTC())
	return err
}

// LatestMood returns the user's most recent check-in at or after since.
func (s *SQLiteStore) LatestMood(ctx context.Context, userID uuid.UUID, since time.Time) (models.Mood, bool, error) {
	var mood string
	err := s.db.QueryRowContext(ctx, `
		SELECT mood FROM mood_checkins
		WHERE user_id = ? AND created_at >= ?
		ORDER BY id DESC
		LIMIT 1
	`, userID.String(), since).Scan(&mood)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return models.Mood(mood), true, nil
}

// ActiveUsers returns each user's latest check-in at or after since.
func (s *SQLiteStore) ActiveUsers(ctx context.Context, since time.Time) ([]models.ActiveUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, u.display_name, m.mood, m.created_at
		FROM mood_checkins m
		JOIN users u ON u.id = m.user_id
		WHERE m.id IN (
			SELECT MAX(id) FROM mood_checkins WHERE created_at >= ? GROUP BY user_id
		)
		ORDER BY m.created_at DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ActiveUser
	for rows.Next() {
		var au models.ActiveUser
		var idStr, mood string
		if err := rows.Scan(&idStr, &au.DisplayName, &mood, &au.CheckedInAt); err != nil {
			return nil, err
		}
		au.UserID = uuid.MustParse(idStr)
		au.Mood = models.Mood(mood)
		out = append(out, au)
	}
	return out, rows.Err()
}

// AddContact saves contactID on userID's roster, returning
// ErrDuplicate when it is already there.
func (s *SQLiteStore) AddContact(ctx context.Context, userID, contactID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (user_id, contact_id, created_at) VALUES (?, ?, ?)
	`, userID.String(), contactID.String(), time.Now().UTC())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// RemoveContact drops contactID from userID's roster. Removing an
// absent contact is a no-op.
func (s *SQLiteStore) RemoveContact(ctx context.Context, userID, contactID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM contacts WHERE user_id = ? AND contact_id = ?
	`, userID.String(), contactID.String())
	return err
}

// ListContacts returns userID's saved contacts sorted by name.
func (s *SQLiteStore) ListContacts(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.avatar_url, u.is_moderator, u.created_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = ?
		ORDER BY u.display_name ASC, u.id ASC
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteUsers(rows)
}

// SearchUsers finds users whose display name contains the query,
// case-insensitively for ASCII.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, avatar_url, is_moderator, created_at
		FROM users
		WHERE display_name LIKE '%' || ? || '%'
		ORDER BY display_name ASC, id ASC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteUsers(rows)
}

func scanSQLiteUsers(rows *sql.Rows) ([]models.User, error) {
	var out []models.User
	for rows.Next() {
		var user models.User
		var idStr string
		var isModerator int
		if err := rows.Scan(&idStr, &user.DisplayName, &user.AvatarURL, &isModerator, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.ID = uuid.MustParse(idStr)
		user.IsModerator = isModerator != 0
		out = append(out, user)
	}
	return out, rows.Err()
}

// GetRoomByKey retrieves a room by its (kind, key) pair.
func (s *SQLiteStore) GetRoomByKey(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT id, kind, key, created_at, last_active_at, message_count
		FROM rooms WHERE kind = ? AND key = ?
	`, string(kind), key))
}

// InsertRoom creates a room row, returning ErrDuplicate if another
// writer created the same (kind, key) first.
func (s *SQLiteStore) InsertRoom(ctx context.Context, kind models.RoomKind, key string) (*models.Room, error) {
	room := &models.Room{
		ID:           uuid.New(),
		Kind:         kind,
		Key:          key,
		CreatedAt:    time.Now().UTC(),
		LastActiveAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, kind, key, created_at, last_active_at, message_count)
		VALUES (?, ?, ?, ?, ?, 0)
	`, room.ID.String(), string(kind), key, room.CreatedAt, room.LastActiveAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT id, kind, key, created_at, last_active_at, message_count
		FROM rooms WHERE id = ?
	`, id.String()))
}

func (s *SQLiteStore) scanRoom(row *sql.Row) (*models.Room, error) {
	room := &models.Room{}
	var idStr, kind string
	err := row.Scan(
		&idStr,
		&kind,
		&room.Key,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	room.ID = uuid.MustParse(idStr)
	room.Kind = models.RoomKind(kind)
	return room, nil
}

// ListActiveRooms retrieves non-direct rooms ordered by recent activity.
func (s *SQLiteStore) ListActiveRooms(ctx context.Context, limit int) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, key, created_at, last_active_at, message_count
		FROM rooms
		WHERE kind <> ?
		ORDER BY last_active_at DESC
		LIMIT ?
	`, string(models.RoomDirect), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var idStr, kind string
		err := rows.Scan(
			&idStr,
			&kind,
			&room.Key,
			&room.CreatedAt,
			&room.LastActiveAt,
			&room.MessageCount,
		)
		if err != nil {
			return nil, err
		}
		room.ID = uuid.MustParse(idStr)
		room.Kind = models.RoomKind(kind)
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// TouchRoom increments the message count and updates activity.
func (s *SQLiteStore) TouchRoom(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET message_count = message_count + 1, last_active_at = ?
		WHERE id = ?
	`, time.Now().UTC(), id.String())
	return err
}

// InsertMessage stores a message and fills in its insertion sequence.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	var receiver *string
	if msg.ReceiverID != nil {
		v := msg.ReceiverID.String()
		receiver = &v
	}
	var replyTo *string
	if msg.ReplyTo != "" {
		replyTo = &msg.ReplyTo
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, receiver_id, body, attachment_url, reply_to, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, msg.ID, msg.RoomID.String(), msg.SenderID.String(), receiver,
		msg.Body, msg.AttachmentURL, replyTo, msg.CreatedAt)
	if err != nil {
		return err
	}
	msg.Seq, err = res.LastInsertId()
	return err
}

// GetMessage retrieves a message by ID, deleted ones included.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, room_id, sender_id, receiver_id, body, attachment_url, reply_to, created_at, deleted
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanSQLiteMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages returns non-deleted messages after the cursor in total
// order. The cursor compares (created_at, seq) tuples, matching the
// sort key: timestamps are assigned before commit, so a message with a
// lower seq can carry a later timestamp and must not be skipped.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID uuid.UUID, afterSeq int64, limit int) ([]models.Message, error) {
	query := `
		SELECT id, seq, room_id, sender_id, receiver_id, body, attachment_url, reply_to, created_at, deleted
		FROM messages
		WHERE room_id = ? AND deleted = 0`
	args := []any{roomID.String()}

	if afterSeq > 0 {
		var after time.Time
		err := s.db.QueryRowContext(ctx,
			`SELECT created_at FROM messages WHERE seq = ?`, afterSeq).Scan(&after)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			query += ` AND seq > ?`
			args = append(args, afterSeq)
		case err != nil:
			return nil, err
		default:
			query += ` AND (created_at > ? OR (created_at = ? AND seq > ?))`
			args = append(args, after, after, afterSeq)
		}
	}

	query += `
		ORDER BY created_at ASC, seq ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func scanSQLiteMessage(scan func(dest ...any) error) (*models.Message, error) {
	msg := &models.Message{}
	var roomStr, senderStr string
	var receiver, replyTo *string
	var deleted int
	err := scan(
		&msg.ID,
		&msg.Seq,
		&roomStr,
		&senderStr,
		&receiver,
		&msg.Body,
		&msg.AttachmentURL,
		&replyTo,
		&msg.CreatedAt,
		&deleted,
	)
	if err != nil {
		return nil, err
	}
	msg.RoomID = uuid.MustParse(roomStr)
	msg.SenderID = uuid.MustParse(senderStr)
	if receiver != nil {
		id := uuid.MustParse(*receiver)
		msg.ReceiverID = &id
	}
	if replyTo != nil {
		msg.ReplyTo = *replyTo
	}
	msg.Deleted = deleted == 1
	return msg, nil
}

// MarkDeleted soft-deletes a message.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted = 1 WHERE id = ?
	`, id)
	return err
}

// UpsertReceipt records a read receipt; re-reading is a no-op.
func (s *SQLiteStore) UpsertReceipt(ctx context.Context, messageID string, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO read_receipts (message_id, user_id, read_at)
		VALUES (?, ?, ?)
	`, messageID, userID.String(), time.Now().UTC())
	return err
}

// HasReceipt reports whether at least one receipt exists for the message.
func (s *SQLiteStore) HasReceipt(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM read_receipts WHERE message_id = ?
	`, messageID).Scan(&count)
	return count > 0, err
}

// ListUnread returns ids of messages addressed to receiverID without a receipt.
func (s *SQLiteStore) ListUnread(ctx context.Context, roomID, receiverID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id FROM messages m
		WHERE m.room_id = ? AND m.receiver_id = ? AND m.deleted = 0
		AND NOT EXISTS (
			SELECT 1 FROM read_receipts r
			WHERE r.message_id = m.id AND r.user_id = ?
		)
		ORDER BY m.seq ASC
	`, roomID.String(), receiverID.String(), receiverID.String())
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
func (s *SQLiteStore) InsertReport(ctx context.Context, report *models.Report) error {
	report.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (message_id, reporter_id, reason, created_at)
		VALUES (?, ?, ?, ?)
	`, report.MessageID, report.ReporterID.String(), report.Reason, report.CreatedAt)
	if err != nil {
		return err
	}
	report.ID, err = res.LastInsertId()
	return err
}

// CountReports returns the number of reports filed against a message.
func (s *SQLiteStore) CountReports(ctx context.Context, messageID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reports WHERE message_id = ?
	`, messageID).Scan(&count)
	return count, err
}
