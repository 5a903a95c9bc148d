package emaillogs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/educatory/backend/internal/models"
)

// DefaultListLimit caps admin listings when no limit is given.
const DefaultListLimit = 100

// Filter narrows an email log listing. Empty fields match everything.
type Filter struct {
	RecipientEmail string
	EnrollmentID   string
	Status         string
	Limit          int
}

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending log row and fills ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (enrollment_id, email_type, recipient_email, subject, status)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5)
		RETURNING id, created_at`
	if el.Status == "" {
		el.Status = models.EmailLogStatusPending
	}
	return r.pool.QueryRow(ctx, q, el.EnrollmentID, el.EmailType, el.RecipientEmail, el.Subject, el.Status).
		Scan(&el.ID, &el.CreatedAt)
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE email_logs SET status = $2, sent_at = $3, error_message = NULL WHERE id = $1`,
		id, models.EmailLogStatusSent, at)
	return err
}

// MarkFailed records the last delivery error.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE email_logs SET status = $2, error_message = $3 WHERE id = $1`,
		id, models.EmailLogStatusFailed, reason)
	return err
}

// List returns email logs matching f, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]*models.EmailLog, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("recipient_email", f.RecipientEmail)
	add("enrollment_id", f.EnrollmentID)
	add("status", f.Status)

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = DefaultListLimit
	}
	q := `SELECT id, COALESCE(enrollment_id, ''), email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.EnrollmentID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
