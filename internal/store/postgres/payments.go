package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/educatory/backend/internal/models"
)

const paymentColumns = `id, enrollment_id, gateway_order_id, COALESCE(gateway_payment_id, ''), amount, currency, status, created_at, updated_at`

// InsertPayment records a gateway order.
func (q *queries) InsertPayment(ctx context.Context, p *models.Payment) error {
	const query = `INSERT INTO payments (enrollment_id, gateway_order_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`
	err := q.db.QueryRow(ctx, query, p.EnrollmentID, p.GatewayOrderID, p.Amount, p.Currency, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", mapErr(err))
	}
	return nil
}

func (q *queries) getPayment(ctx context.Context, query string, arg any) (*models.Payment, error) {
	var p models.Payment
	err := q.db.QueryRow(ctx, query, arg).Scan(&p.ID, &p.EnrollmentID, &p.GatewayOrderID, &p.GatewayPaymentID,
		&p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentForUpdate locks the payment row for the rest of the transaction.
func (q *queries) GetPaymentForUpdate(ctx context.Context, orderID string) (*models.Payment, error) {
	return q.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_order_id = $1 FOR UPDATE`, orderID)
}

// CompletePayment marks a payment completed unless it already is.
func (q *queries) CompletePayment(ctx context.Context, orderID, paymentID string, at time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE payments SET status = 'completed', gateway_payment_id = $2, updated_at = $3
		WHERE gateway_order_id = $1 AND status <> 'completed'`, orderID, paymentID, at)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetPaymentByEnrollment returns the newest payment of an enrollment.
func (q *queries) GetPaymentByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error) {
	return q.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE enrollment_id = $1 ORDER BY created_at DESC LIMIT 1`, enrollmentID)
}
