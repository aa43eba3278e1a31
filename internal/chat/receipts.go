package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dav22-wa/uni-mood-share/internal/fanout"
	"github.com/dav22-wa/uni-mood-share/internal/metrics"
	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// ReceiptStore is the subset of the data store the receipt service needs.
type ReceiptStore interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	UpsertReceipt(ctx context.Context, messageID string, userID uuid.UUID) error
	HasReceipt(ctx context.Context, messageID string) (bool, error)
	ListUnread(ctx context.Context, roomID, receiverID uuid.UUID) ([]string, error)
}

// Receipts records when addressed messages have been read.
type Receipts struct {
	store    ReceiptStore
	notifier fanout.Notifier
}

// NewReceipts creates a receipt service.
func NewReceipts(s ReceiptStore, n fanout.Notifier) *Receipts {
	return &Receipts{store: s, notifier: n}
}

// MarkRead records that the caller has read the message. Only the
// addressed receiver may mark a message; re-marking is a no-op.
func (r *Receipts) MarkRead(ctx context.Context, caller *models.User, messageID string) error {
	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.Deleted {
		return ErrNotFound
	}
	if msg.ReceiverID == nil || *msg.ReceiverID != caller.ID {
		return ErrForbidden
	}

	if err := r.store.UpsertReceipt(ctx, messageID, caller.ID); err != nil {
		return err
	}
	metrics.ReceiptsMarked.Inc()
	r.announce(ctx, msg.RoomID)
	return nil
}

// IsRead reports whether any receipt exists for the message.
func (r *Receipts) IsRead(ctx context.Context, messageID string) (bool, error) {
	return r.store.HasReceipt(ctx, messageID)
}

// MarkConversationRead marks every unread message addressed to the
// caller in the room. Each message is marked independently: one
// failure does not stop the rest, and the first error is reported
// after the sweep.
func (r *Receipts) MarkConversationRead(ctx context.Context, caller *models.User, room *models.Room) (int, error) {
	ids, err := r.store.ListUnread(ctx, room.ID, caller.ID)
	if err != nil {
		return 0, err
	}

	marked := 0
	var firstErr error
	for _, id := range ids {
		if err := r.store.UpsertReceipt(ctx, id, caller.ID); err != nil {
			log.Warn().Err(err).Str("message_id", id).Msg("Receipt upsert failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("marking %s: %w", id, err)
			}
			continue
		}
		marked++
	}
	if marked > 0 {
		metrics.ReceiptsMarked.Add(float64(marked))
		r.announce(ctx, room.ID)
	}
	return marked, firstErr
}

func (r *Receipts) announce(ctx context.Context, roomID uuid.UUID) {
	hint := fanout.Hint{Topic: fanout.RoomTopic(roomID), Kind: fanout.KindReceipt}
	if err := r.notifier.Publish(ctx, hint); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("room_id", roomID.String()).Msg("Receipt hint publish failed")
		}
		return
	}
	metrics.FanoutHintsPublished.Inc()
}
