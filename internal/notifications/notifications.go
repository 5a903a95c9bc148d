// Package notifications composes outbound emails and hands them to a
// delivery channel. Dispatch happens after the owning transaction commits;
// callers log dispatch errors and carry on.
package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/pkg/queue"
)

// Attachment is a file sent with a message. Inline attachments are referenced
// from the body as cid:<Filename>.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	Inline      bool
}

// Message is one email to one recipient.
type Message struct {
	Type         string
	EnrollmentID string
	To           string
	Subject      string
	HTML         string
	Attachments  []Attachment
	// CCAdmin copies the configured admin address.
	CCAdmin bool
}

// Dispatcher delivers messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// LogStore records dispatched messages.
type LogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Enqueuer pushes email jobs for the worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueDispatcher writes a pending email log row and enqueues the job for
// the worker's SMTP sender.
type QueueDispatcher struct {
	logs         LogStore
	queue        Enqueuer
	adminAddress string
	logger       *zap.Logger
}

// NewQueueDispatcher creates a dispatcher. adminAddress may be empty.
func NewQueueDispatcher(logs LogStore, q Enqueuer, adminAddress string, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{logs: logs, queue: q, adminAddress: adminAddress, logger: logger}
}

// Dispatch records and enqueues msg.
func (d *QueueDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("dispatch %s: empty recipient", msg.Type)
	}
	el := &models.EmailLog{
		EnrollmentID:   msg.EnrollmentID,
		EmailType:      msg.Type,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		Status:         models.EmailLogStatusPending,
	}
	if err := d.logs.Create(ctx, el); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	payload := queue.EmailPayload{
		LogID:          el.ID,
		EmailType:      msg.Type,
		EnrollmentID:   msg.EnrollmentID,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		BodyHTML:       msg.HTML,
	}
	if msg.CCAdmin && d.adminAddress != "" {
		payload.CC = []string{d.adminAddress}
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, queue.EmailAttachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
			Inline:      a.Inline,
		})
	}
	if err := d.queue.EnqueueEmail(ctx, payload); err != nil {
		if mErr := d.logs.MarkFailed(ctx, el.ID, "enqueue: "+err.Error()); mErr != nil {
			d.logger.Warn("mark email log failed", zap.Error(mErr), zap.String("log_id", el.ID.String()))
		}
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}
