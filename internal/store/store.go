// Package store defines the transactional persistence contract used by the
// enrollment, referral, coupon and payment services.
//
// Every multi-entity operation runs through Store.InTx. Lookups return
// (nil, nil) when no row matches; unique-key failures surface as
// domain.ErrConstraintViolation.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/educatory/backend/internal/models"
)

// Store is a Querier that can also open transactions.
type Store interface {
	Querier
	// InTx runs fn in one transaction. The transaction commits when fn returns
	// nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// Querier holds the storage primitives. Implementations are bound either to a
// pool (auto-commit) or to an open transaction.
type Querier interface {
	// NextSequence increments the named counter and returns the new value.
	// The counter row stays locked until the enclosing transaction ends.
	NextSequence(ctx context.Context, name string) (int64, error)

	EnrollmentQueries
	ReferralQueries
	CouponQueries
	PaymentQueries
}

// IdentityMatch selects enrollments sharing any dedup key.
type IdentityMatch struct {
	Email      string
	Phone      string
	NationalID string
}

// EnrollmentQueries covers enrollments and invoices.
type EnrollmentQueries interface {
	// LockCourse serializes enrollment creation for a course until the
	// transaction ends.
	LockCourse(ctx context.Context, courseID string) error
	// FindEnrollmentsInCourse returns enrollments in the course matching any key, oldest first.
	FindEnrollmentsInCourse(ctx context.Context, m IdentityMatch, courseID string) ([]models.Enrollment, error)
	// HasCompletedEnrollmentElsewhere reports a completed enrollment matching any key in another course.
	HasCompletedEnrollmentElsewhere(ctx context.Context, m IdentityMatch, courseID string) (bool, error)
	InsertEnrollment(ctx context.Context, e *models.Enrollment) error
	// UpdateEnrollmentBasics overwrites contact and course fields of a pending enrollment.
	UpdateEnrollmentBasics(ctx context.Context, e *models.Enrollment) error
	GetEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error)
	// GetEnrollmentForUpdate locks the enrollment row.
	GetEnrollmentForUpdate(ctx context.Context, enrollmentID string) (*models.Enrollment, error)
	// FindEnrollment looks up by enrollment ID or email within a course.
	FindEnrollment(ctx context.Context, idOrEmail, courseID string) (*models.Enrollment, error)
	// TransitionEnrollment moves status from -> to and reports whether the row was in from.
	TransitionEnrollment(ctx context.Context, enrollmentID, from, to string) (bool, error)
	// CompleteEnrollment attaches details and moves payment_completed -> completed.
	CompleteEnrollment(ctx context.Context, enrollmentID string, details models.EnrollmentDetails) (bool, error)
	InsertInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, enrollmentID string) (*models.Invoice, error)
}

// ReferralQueries covers student referrals, teacher partners and their uses.
type ReferralQueries interface {
	// ReferralCodeExists checks both student and teacher codes.
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	InsertReferral(ctx context.Context, r *models.Referral) error
	// GetActiveReferral returns an active student referral joined with its owner.
	GetActiveReferral(ctx context.Context, code string) (*models.Referral, error)
	GetReferralByEnrollment(ctx context.Context, enrollmentID string) (*models.Referral, error)
	IncrementReferralUsage(ctx context.Context, code string) error
	// InsertReferralUse reports false when a use for (code, enrollment) already exists.
	InsertReferralUse(ctx context.Context, u *models.ReferralUse) (bool, error)
	GetApprovedReferralUse(ctx context.Context, referredEnrollmentID string) (*models.ReferralUse, error)
	ListReferralUses(ctx context.Context, status string) ([]models.ReferralUse, error)
	// ReviewReferralUse moves a pending use to status and returns it, or nil
	// when the use does not exist or is no longer pending.
	ReviewReferralUse(ctx context.Context, id int64, status, reason string) (*models.ReferralUse, error)

	InsertTeacher(ctx context.Context, t *models.TeacherReferral) error
	GetActiveTeacher(ctx context.Context, code string) (*models.TeacherReferral, error)
	// InsertTeacherReferralUse reports false when a use for (code, enrollment) already exists.
	InsertTeacherReferralUse(ctx context.Context, u *models.TeacherReferralUse) (bool, error)
	// ConfirmTeacherReferralUse stamps confirmed_at on the enrollment's unconfirmed use, if any.
	ConfirmTeacherReferralUse(ctx context.Context, enrollmentID string, at time.Time) (*models.TeacherReferralUse, error)
	ListTeacherStudents(ctx context.Context, code string) ([]models.ReferredStudent, error)
	// MarkCommissionPaid moves a confirmed pending commission to paid.
	MarkCommissionPaid(ctx context.Context, id int64, at time.Time) (bool, error)
}

// CouponQueries covers coupons, their OTP state and pending-coupon staging rows.
type CouponQueries interface {
	InsertCoupon(ctx context.Context, c *models.Coupon) error
	// GetCoupon returns the coupon joined with its referral owner.
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	// GetCouponForUpdate is GetCoupon with the coupon row locked.
	GetCouponForUpdate(ctx context.Context, code string) (*models.Coupon, error)
	GetCoupons(ctx context.Context, codes []string) ([]models.Coupon, error)
	// ClampCouponAmount lowers the amount to at most max, never raising it,
	// and returns the amount now stored.
	ClampCouponAmount(ctx context.Context, code string, max decimal.Decimal) (decimal.Decimal, error)
	InsertCouponAdjustment(ctx context.Context, a *models.CouponAdjustment) error
	// SetCouponOTP stores a fresh OTP and resets failed attempts.
	SetCouponOTP(ctx context.Context, code, otp string, expiresAt time.Time) error
	// RecordFailedOTP increments failed attempts and clears the OTP once limit is reached.
	RecordFailedOTP(ctx context.Context, code string, limit int) error
	SetCouponValidation(ctx context.Context, code, otp string, expiresAt time.Time) error
	// ValidatedCouponCodes returns the unused codes carrying an unexpired coupon-level validation.
	ValidatedCouponCodes(ctx context.Context, codes []string, now time.Time) ([]string, error)
	// MarkCouponsUsed flips is_used on the unused codes and returns the number changed.
	MarkCouponsUsed(ctx context.Context, codes []string, paymentID string, at time.Time) (int64, error)
	// ClearExpiredCouponOTPs nulls OTP and validation fields that expired before now.
	ClearExpiredCouponOTPs(ctx context.Context, now time.Time) (int64, error)

	// UpsertPendingCoupon creates or refreshes the pending row, bumping attempts.
	UpsertPendingCoupon(ctx context.Context, code, enrollmentID string, at time.Time) error
	// PendingCouponCodes returns codes with a pending row for the enrollment verified after since.
	PendingCouponCodes(ctx context.Context, codes []string, enrollmentID string, since time.Time) ([]string, error)
	MarkPendingCouponsVerified(ctx context.Context, codes []string, enrollmentID, paymentID string, at time.Time) error
	InsertVerifiedPendingCoupon(ctx context.Context, code, enrollmentID, paymentID string, at time.Time) error
	// ExpirePendingCoupons marks pending rows verified before cutoff as expired.
	ExpirePendingCoupons(ctx context.Context, cutoff time.Time) (int64, error)
}

// PaymentQueries covers gateway orders.
type PaymentQueries interface {
	InsertPayment(ctx context.Context, p *models.Payment) error
	// GetPaymentForUpdate locks the payment row by gateway order ID.
	GetPaymentForUpdate(ctx context.Context, orderID string) (*models.Payment, error)
	// CompletePayment marks a non-completed payment completed and reports whether it changed.
	CompletePayment(ctx context.Context, orderID, paymentID string, at time.Time) (bool, error)
	GetPaymentByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error)
}
