package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralStatus for student and teacher referral codes.
const (
	ReferralStatusActive   = "active"
	ReferralStatusInactive = "inactive"
)

// ReferralUseStatus for validation of a student referral redemption.
const (
	ReferralUsePending  = "pending"
	ReferralUseApproved = "approved"
	ReferralUseRejected = "rejected"
)

// CommissionStatus for teacher commission payout.
const (
	CommissionPending = "pending"
	CommissionPaid    = "paid"
)

// ReferrerType distinguishes the two referral ledgers.
const (
	ReferrerStudent = "student"
	ReferrerTeacher = "teacher"
)

// Referral is the code a completed student hands out.
type Referral struct {
	ID           int64     `json:"-"`
	EnrollmentID string    `json:"enrollment_id"`
	ReferralCode string    `json:"referral_code"`
	TimesUsed    int       `json:"times_used"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`

	// Owner fields are filled by lookups that join the owning enrollment.
	OwnerName  string `json:"owner_name,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
}

// ReferralUse records one redemption of a student referral code.
type ReferralUse struct {
	ID                   int64     `json:"id"`
	ReferralCode         string    `json:"referral_code"`
	ReferredEnrollmentID string    `json:"referred_enrollment_id"`
	ValidationStatus     string    `json:"validation_status"`
	RejectionReason      string    `json:"rejection_reason,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// TeacherReferral is a partner teacher or institution with a commission rate.
type TeacherReferral struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	Email                 string          `json:"email"`
	Phone                 string          `json:"phone"`
	Type                  string          `json:"type"`
	InstitutionName       string          `json:"institution_name,omitempty"`
	ReferralCode          string          `json:"referral_code"`
	CommissionPerReferral decimal.Decimal `json:"commission_per_referral"`
	Status                string          `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TeacherReferralUse pins the commission owed for one referred enrollment.
// ConfirmedAt is set once the referred enrollment completes.
type TeacherReferralUse struct {
	ID               int64           `json:"id"`
	ReferralCode     string          `json:"referral_code"`
	EnrollmentID     string          `json:"enrollment_id"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	PaidStatus       string          `json:"paid_status"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ReferredStudent is a row of a teacher's referral report.
type ReferredStudent struct {
	EnrollmentID     string          `json:"enrollment_id"`
	StudentName      string          `json:"student_name"`
	CourseName       string          `json:"course_name"`
	Status           string          `json:"status"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	PaidStatus       string          `json:"paid_status"`
	ReferralDate     time.Time       `json:"referral_date"`
}
