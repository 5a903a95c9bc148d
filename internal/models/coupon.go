package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingCouponStatus for the OTP-verified coupon staging rows.
const (
	PendingCouponPending  = "pending"
	PendingCouponVerified = "verified"
	PendingCouponExpired  = "expired"
	PendingCouponFailed   = "failed"
)

// Coupon is a one-time fixed-amount discount minted as a referral reward.
type Coupon struct {
	ID                  int64           `json:"-"`
	CouponCode          string          `json:"coupon_code"`
	ReferralCode        string          `json:"referral_code"`
	Amount              decimal.Decimal `json:"amount"`
	IsUsed              bool            `json:"is_used"`
	// SourcePaymentID is the payment that earned the reward; TransactionID
	// is the payment the coupon was redeemed against.
	SourcePaymentID     string          `json:"source_payment_id,omitempty"`
	TransactionID       string          `json:"transaction_id,omitempty"`
	OTP                 string          `json:"-"`
	OTPExpiresAt        *time.Time      `json:"-"`
	OTPAttempts         int             `json:"-"`
	ValidationOTP       string          `json:"-"`
	ValidationExpiresAt *time.Time      `json:"-"`
	UsedAt              *time.Time      `json:"used_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`

	// Owner of the source referral, filled by joined lookups.
	OwnerName  string `json:"-"`
	OwnerEmail string `json:"-"`
}

// PendingCoupon stages an OTP-verified coupon against an enrollment until payment.
type PendingCoupon struct {
	ID               int64      `json:"-"`
	CouponCode       string     `json:"coupon_code"`
	EnrollmentID     string     `json:"enrollment_id"`
	VerificationTime time.Time  `json:"verification_time"`
	Status           string     `json:"status"`
	PaymentID        string     `json:"payment_id,omitempty"`
	Attempts         int        `json:"attempts"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CouponAdjustment records the amount forfeited when a coupon is clamped to the price floor.
type CouponAdjustment struct {
	CouponCode     string          `json:"coupon_code"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	AdjustedAmount decimal.Decimal `json:"adjusted_amount"`
	CourseAmount   decimal.Decimal `json:"course_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}
