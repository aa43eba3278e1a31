package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// PreviewLen is the rune cap for thread context previews.
const PreviewLen = 80

// ThreadContext is what a reply shows about the message it answers.
type ThreadContext struct {
	SenderID uuid.UUID `json:"sender_id"`
	Preview  string    `json:"preview"`
}

// ThreadIndex resolves the reply targets of a message page. Targets
// inside the page resolve from an id index without touching the
// store; only targets that fell off the window need a lookup. Replies
// whose target is gone or deleted get no entry and render without
// context.
func (s *Service) ThreadIndex(ctx context.Context, msgs []models.Message) (map[string]ThreadContext, error) {
	window := make(map[string]*models.Message, len(msgs))
	for i := range msgs {
		window[msgs[i].ID] = &msgs[i]
	}

	index := make(map[string]ThreadContext)
	for _, msg := range msgs {
		if msg.ReplyTo == "" {
			continue
		}
		if _, done := index[msg.ReplyTo]; done {
			continue
		}
		target := window[msg.ReplyTo]
		if target == nil {
			var err error
			target, err = s.store.GetMessage(ctx, msg.ReplyTo)
			if err != nil {
				return nil, err
			}
		}
		if target == nil || target.Deleted {
			continue
		}
		index[msg.ReplyTo] = ThreadContext{
			SenderID: target.SenderID,
			Preview:  truncate(target.Body, PreviewLen),
		}
	}
	return index, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
