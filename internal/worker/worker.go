package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/educatory/backend/internal/notifications"
	"github.com/educatory/backend/pkg/queue"
)

// JobQueue is the queue surface the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// DeliveryLog records the outcome of a job against its email log row.
type DeliveryLog interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor sends queued email jobs and records delivery.
type EmailProcessor struct {
	queue   JobQueue
	mailer  notifications.Mailer
	logs    DeliveryLog
	logger  *zap.Logger
	backoff time.Duration
	poll    time.Duration
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(q JobQueue, mailer notifications.Mailer, logs DeliveryLog, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:   q,
		mailer:  mailer,
		logs:    logs,
		logger:  logger,
		backoff: queue.RetryBackoff,
		poll:    5 * time.Second,
	}
}

// Process sends one job. The email log is marked sent on success and failed
// on every error, so the admin listing shows the latest attempt.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.Email()
	if err != nil {
		return err
	}
	if err := p.mailer.Send(ctx, payload); err != nil {
		if mErr := p.logs.MarkFailed(ctx, payload.LogID, err.Error()); mErr != nil {
			p.logger.Warn("mark email failed", zap.Error(mErr), zap.String("log_id", payload.LogID.String()))
		}
		return err
	}
	if err := p.logs.MarkSent(ctx, payload.LogID, time.Now().UTC()); err != nil {
		p.logger.Warn("mark email sent", zap.Error(err), zap.String("log_id", payload.LogID.String()))
	}
	p.logger.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("enrollment_id", payload.EnrollmentID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.poll)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if _, reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx, p.backoff)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
