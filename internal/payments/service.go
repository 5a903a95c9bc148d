// Package payments creates gateway orders and reconciles gateway callbacks
// with referrals, coupons and the enrollment state machine.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/referrals"
	"github.com/educatory/backend/internal/store"
)

// ReferralApplier records a referral inside a payment transaction.
type ReferralApplier interface {
	Apply(ctx context.Context, q store.Querier, code, enrollmentID string) (*referrals.Applied, error)
}

// CouponRedeemer consumes verified coupons inside a payment transaction and
// announces them afterwards.
type CouponRedeemer interface {
	MarkUsed(ctx context.Context, q store.Querier, codes []string, paymentID, enrollmentID string) ([]models.Coupon, error)
	NotifyUsage(ctx context.Context, used []models.Coupon, paymentID string)
}

// Credentials are the gateway API keys. The secret signs checkout callbacks.
type Credentials struct {
	KeyID     string
	KeySecret string
}

// CreateOrderRequest asks for a gateway order for a pending enrollment.
type CreateOrderRequest struct {
	EnrollmentID string
	Amount       decimal.Decimal
	Currency     string
	Receipt      string
	Notes        map[string]string
}

// OrderResult is what the checkout page needs.
type OrderResult struct {
	OrderID      string          `json:"order_id"`
	EnrollmentID string          `json:"enrollment_id"`
	Amount       decimal.Decimal `json:"amount"`
	// AmountSubunits is the amount the gateway charges, in paise.
	AmountSubunits int64  `json:"amount_subunits"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id,omitempty"`
}

// VerifyRequest is the gateway checkout callback plus the discounts the
// customer applied.
type VerifyRequest struct {
	OrderID      string
	PaymentID    string
	Signature    string
	Coupons      []string
	ReferralCode string
}

// VerifyResult describes a reconciled payment.
type VerifyResult struct {
	EnrollmentID string              `json:"enrollment_id"`
	OrderID      string              `json:"order_id"`
	PaymentID    string              `json:"payment_id"`
	Status       string              `json:"status"`
	Referrer     *referrals.Referrer `json:"referrer,omitempty"`
	CouponsUsed  []string            `json:"coupons_used,omitempty"`
}

// Service reconciles payments.
type Service struct {
	store     store.Store
	gateway   Gateway
	referrals ReferralApplier
	coupons   CouponRedeemer
	creds     Credentials
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a payment service.
func NewService(st store.Store, gateway Gateway, refs ReferralApplier, cpns CouponRedeemer, creds Credentials, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, gateway: gateway, referrals: refs, coupons: cpns, creds: creds, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ErrSecretMissing is returned by VerifyPayment when no key secret is configured.
var ErrSecretMissing = errors.New("payment key secret is not configured")

// Sign returns the hex HMAC-SHA256 of orderID|paymentID under secret, the
// signature the gateway attaches to a checkout callback.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a checkout callback signature in constant time.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// CreateOrder opens a gateway order for a pending enrollment and records it.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	if req.EnrollmentID == "" {
		return nil, domain.Validation("enrollment id is required")
	}
	if Subunits(req.Amount) <= 0 {
		return nil, domain.Validation("amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = models.DefaultCurrency
	}
	if req.Receipt == "" {
		req.Receipt = req.EnrollmentID
	}
	e, err := s.store.GetEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	if e == nil {
		return nil, domain.NotFound("enrollment not found")
	}
	if e.Status != models.EnrollmentStatusPending {
		return nil, domain.Conflict("enrollment is already paid")
	}

	notes := map[string]string{"enrollment_id": e.EnrollmentID, "course_id": e.CourseID}
	for k, v := range req.Notes {
		notes[k] = v
	}
	order, err := s.gateway.CreateOrder(ctx, OrderRequest{Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Notes: notes})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}
	p := &models.Payment{
		EnrollmentID:   e.EnrollmentID,
		GatewayOrderID: order.ID,
		Amount:         req.Amount,
		Currency:       order.Currency,
		Status:         models.PaymentStatusCreated,
	}
	if err := s.store.InsertPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	s.logger.Info("payment order created",
		zap.String("enrollment_id", e.EnrollmentID),
		zap.String("order_id", order.ID),
		zap.String("amount", req.Amount.String()))
	return &OrderResult{
		OrderID:        order.ID,
		EnrollmentID:   e.EnrollmentID,
		Amount:         req.Amount,
		AmountSubunits: order.Amount,
		Currency:       order.Currency,
		KeyID:          s.creds.KeyID,
	}, nil
}

// VerifyPayment checks the callback signature, then in one transaction
// applies the referral, redeems the coupons, completes the payment and moves
// the enrollment to payment_completed. Any failure leaves nothing changed.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, domain.Validation("order id, payment id and signature are required")
	}
	if s.creds.KeySecret == "" {
		return nil, ErrSecretMissing
	}
	if !VerifySignature(s.creds.KeySecret, req.OrderID, req.PaymentID, req.Signature) {
		s.logger.Warn("payment signature mismatch", zap.String("order_id", req.OrderID), zap.String("payment_id", req.PaymentID))
		return nil, domain.InvalidSignature()
	}
	now := s.now().UTC()

	var (
		res  *VerifyResult
		used []models.Coupon
	)
	err := s.store.InTx(ctx, func(q store.Querier) error {
		p, err := q.GetPaymentForUpdate(ctx, req.OrderID)
		if err != nil {
			return fmt.Errorf("get payment: %w", err)
		}
		if p == nil {
			return domain.NotFound("payment order not found")
		}
		if p.Status == models.PaymentStatusCompleted {
			return domain.Conflict("payment already verified")
		}
		e, err := q.GetEnrollmentForUpdate(ctx, p.EnrollmentID)
		if err != nil {
			return fmt.Errorf("get enrollment: %w", err)
		}
		if e == nil {
			return domain.NotFound("enrollment not found")
		}
		if e.Status != models.EnrollmentStatusPending {
			return domain.Conflict("enrollment is already paid")
		}
		res = &VerifyResult{EnrollmentID: e.EnrollmentID, OrderID: req.OrderID, PaymentID: req.PaymentID}

		code := strings.TrimSpace(req.ReferralCode)
		if code == "" {
			code = e.ReferralCode
		}
		switch {
		case code == "":
		case e.ExistingStudent:
			s.logger.Warn("referral code ignored for existing student",
				zap.String("enrollment_id", e.EnrollmentID), zap.String("referral_code", code))
		default:
			applied, err := s.referrals.Apply(ctx, q, code, e.EnrollmentID)
			if err != nil {
				return err
			}
			res.Referrer = applied.Referrer
		}

		used, err = s.coupons.MarkUsed(ctx, q, req.Coupons, req.PaymentID, e.EnrollmentID)
		if err != nil {
			return err
		}
		for _, c := range used {
			res.CouponsUsed = append(res.CouponsUsed, c.CouponCode)
		}

		ok, err := q.CompletePayment(ctx, req.OrderID, req.PaymentID, now)
		if err != nil {
			return fmt.Errorf("complete payment: %w", err)
		}
		if !ok {
			return domain.Conflict("payment already verified")
		}
		ok, err = q.TransitionEnrollment(ctx, e.EnrollmentID, models.EnrollmentStatusPending, models.EnrollmentStatusPaymentCompleted)
		if err != nil {
			return fmt.Errorf("advance enrollment: %w", err)
		}
		if !ok {
			return domain.Conflict("enrollment is already paid")
		}
		res.Status = models.PaymentStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment verified",
		zap.String("enrollment_id", res.EnrollmentID),
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", req.PaymentID),
		zap.Int("coupons", len(used)))
	if len(used) > 0 {
		s.coupons.NotifyUsage(ctx, used, req.PaymentID)
	}
	return res, nil
}
