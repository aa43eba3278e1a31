package chat

import (
	"context"

	"github.com/dav22-wa/uni-mood-share/internal/metrics"
	"github.com/dav22-wa/uni-mood-share/internal/models"
)

// DefaultReportReason is used when a report carries no reason.
const DefaultReportReason = "Inappropriate content"

// ModerationStore is the subset of the data store moderation needs.
type ModerationStore interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	InsertReport(ctx context.Context, report *models.Report) error
	CountReports(ctx context.Context, messageID string) (int64, error)
}

// Moderation files reports against messages. Reports are append-only:
// repeat reports from the same user accumulate rather than dedupe, and
// reports survive the deletion of the message they flag.
type Moderation struct {
	store ModerationStore
}

// NewModeration creates a moderation service.
func NewModeration(s ModerationStore) *Moderation {
	return &Moderation{store: s}
}

// Report flags a message. Users cannot report their own messages.
func (m *Moderation) Report(ctx context.Context, reporter *models.User, messageID, reason string) (*models.Report, error) {
	msg, err := m.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	if msg.SenderID == reporter.ID {
		return nil, ErrSelfReport
	}
	if reason == "" {
		reason = DefaultReportReason
	}

	report := &models.Report{
		MessageID:  messageID,
		ReporterID: reporter.ID,
		Reason:     reason,
	}
	if err := m.store.InsertReport(ctx, report); err != nil {
		return nil, err
	}
	metrics.ReportsFiled.Inc()
	return report, nil
}

// ReportCount returns how many reports a message has accumulated.
func (m *Moderation) ReportCount(ctx context.Context, messageID string) (int64, error) {
	return m.store.CountReports(ctx, messageID)
}
