package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus values. A completed payment never changes status again.
const (
	PaymentStatusCreated   = "created"
	PaymentStatusAttempted = "attempted"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// DefaultCurrency for gateway orders.
const DefaultCurrency = "INR"

// Payment is a gateway order and its reconciliation state.
type Payment struct {
	ID               int64           `json:"-"`
	EnrollmentID     string          `json:"enrollment_id"`
	GatewayOrderID   string          `json:"order_id"`
	GatewayPaymentID string          `json:"payment_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
