package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list key for outbound email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for jobs that exhausted their retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const JobTypeEmail JobType = "email"

// EmailAttachment is a file carried with an email job. Inline attachments are
// referenced from the HTML body as cid:<Filename>.
type EmailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
	Inline      bool   `json:"inline,omitempty"`
}

// EmailPayload is the payload for email jobs. LogID points at the email_logs
// row the worker updates after delivery.
type EmailPayload struct {
	LogID          uuid.UUID         `json:"log_id"`
	EmailType      string            `json:"email_type"`
	EnrollmentID   string            `json:"enrollment_id,omitempty"`
	RecipientEmail string            `json:"recipient_email"`
	CC             []string          `json:"cc,omitempty"`
	Subject        string            `json:"subject"`
	BodyHTML       string            `json:"body_html"`
	Attachments    []EmailAttachment `json:"attachments,omitempty"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Email decodes the job payload.
func (j *Job) Email() (EmailPayload, error) {
	var p EmailPayload
	if j.Type != JobTypeEmail {
		return p, fmt.Errorf("job %s is %q, not email", j.ID, j.Type)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("decode email payload: %w", err)
	}
	return p, nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueEmail enqueues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeEmail,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueEmails, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued email job",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("log_id", payload.LogID.String()))
	return nil
}

// Dequeue blocks up to timeout for an email job. It returns a nil job when
// the wait times out or the entry cannot be decoded.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueEmails).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
// It reports whether the job went to the DLQ.
func (q *Queue) Retry(ctx context.Context, job *Job) (bool, error) {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return false, err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	if err := q.client.RPush(ctx, QueueEmails, raw).Err(); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}
