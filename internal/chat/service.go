// Package chat implements durable room messaging: posting, listing,
// soft deletion, read receipts and moderation reports.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dav22-wa/uni-mood-share/internal/fanout"
	"github.com/dav22-wa/uni-mood-share/internal/metrics"
	"github.com/dav22-wa/uni-mood-share/internal/models"
	"github.com/dav22-wa/uni-mood-share/internal/rooms"
)

// DefaultListLimit caps a message page when the caller asks for none.
const DefaultListLimit = 50

// MaxListLimit is the hard page ceiling.
const MaxListLimit = 200

// MaxBodyLen bounds a message body in runes.
const MaxBodyLen = 4000

// Store is the subset of the data store the chat service needs.
type Store interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, roomID uuid.UUID, afterSeq int64, limit int) ([]models.Message, error)
	MarkDeleted(ctx context.Context, id string) error
	TouchRoom(ctx context.Context, id uuid.UUID) error
}

// Service coordinates message storage with fan-out notification.
type Service struct {
	store    Store
	notifier fanout.Notifier
}

// NewService creates a chat service.
func NewService(s Store, n fanout.Notifier) *Service {
	return &Service{store: s, notifier: n}
}

// AppendInput carries one message to post.
type AppendInput struct {
	Body          string
	AttachmentURL string
	ReplyTo       string
	ReceiverID    *uuid.UUID
}

// Append validates, stores and announces a new message in the room.
// Storage is the commit point: a message that made it to the store is
// posted even if the announcement afterwards fails.
func (s *Service) Append(ctx context.Context, sender *models.User, room *models.Room, in AppendInput) (*models.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" && in.AttachmentURL == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(body)) > MaxBodyLen {
		return nil, ErrBodyTooLong
	}
	if !rooms.ParticipantOf(room, sender.ID) {
		return nil, ErrForbidden
	}

	if in.ReplyTo != "" {
		target, err := s.store.GetMessage(ctx, in.ReplyTo)
		if err != nil {
			return nil, err
		}
		// A vanished target is fine; the thread context just falls
		// back. A target in another room is a client bug.
		if target != nil && target.RoomID != room.ID {
			return nil, ErrBadReply
		}
	}

	msg := &models.Message{
		ID:            ulid.Make().String(),
		RoomID:        room.ID,
		SenderID:      sender.ID,
		ReceiverID:    in.ReceiverID,
		Body:          body,
		AttachmentURL: in.AttachmentURL,
		ReplyTo:       in.ReplyTo,
		CreatedAt:     time.Now().UTC(),
	}

	err := withRetry(ctx, func() error {
		return s.store.InsertMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchRoom(ctx, room.ID); err != nil {
		log.Warn().Err(err).Str("room_id", room.ID.String()).Msg("Room activity update failed")
	}

	metrics.MessagesPosted.WithLabelValues(string(room.Kind)).Inc()
	s.announce(ctx, room.ID, fanout.KindMessage)
	return msg, nil
}

// List returns a page of the room's visible messages after the cursor.
func (s *Service) List(ctx context.Context, caller *models.User, room *models.Room, afterSeq int64, limit int) ([]models.Message, error) {
	if !rooms.ParticipantOf(room, caller.ID) {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var msgs []models.Message
	err := withRetry(ctx, func() error {
		var err error
		msgs, err = s.store.ListMessages(ctx, room.ID, afterSeq, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// SoftDelete hides a message from listings. Only the sender or a
// moderator may delete; the row is kept for moderation review.
func (s *Service) SoftDelete(ctx context.Context, caller *models.User, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.Deleted {
		return ErrNotFound
	}
	if msg.SenderID != caller.ID && !caller.IsModerator {
		return ErrForbidden
	}

	if err := s.store.MarkDeleted(ctx, messageID); err != nil {
		return err
	}
	metrics.MessagesDeleted.Inc()
	s.announce(ctx, msg.RoomID, fanout.KindMessage)
	return nil
}

// GetVisible returns a message the caller is allowed to see.
func (s *Service) GetVisible(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.Deleted {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (s *Service) announce(ctx context.Context, roomID uuid.UUID, kind fanout.Kind) {
	hint := fanout.Hint{Topic: fanout.RoomTopic(roomID), Kind: kind}
	if err := s.notifier.Publish(ctx, hint); err != nil {
		log.Warn().Err(err).Str("room_id", roomID.String()).Msg("Room hint publish failed")
		return
	}
	metrics.FanoutHintsPublished.Inc()
}
