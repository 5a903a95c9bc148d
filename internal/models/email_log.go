package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType identifies the notification template.
const (
	EmailTypeRegistrationInitiated = "registration_initiated"
	EmailTypeDetailsUpdated        = "details_updated"
	EmailTypeRegistrationCompleted = "registration_completed"
	EmailTypeReferralProgram       = "referral_program"
	EmailTypeCouponEarned          = "coupon_earned"
	EmailTypeCouponOTP             = "coupon_otp"
	EmailTypeCouponUsed            = "coupon_used"
	EmailTypeTeacherWelcome        = "teacher_welcome"
	EmailTypeTeacherReferral       = "teacher_referral"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records every dispatched notification and its delivery outcome.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	EnrollmentID   string     `json:"enrollment_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
