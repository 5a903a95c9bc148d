package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus values. Transitions only move forward:
// pending -> payment_completed -> completed.
const (
	EnrollmentStatusPending          = "pending"
	EnrollmentStatusPaymentCompleted = "payment_completed"
	EnrollmentStatusCompleted        = "completed"
)

// Dedup field names reported in enrollment conflicts.
const (
	MatchEmail      = "email"
	MatchPhone      = "mobile"
	MatchNationalID = "national_id"
)

// Enrollment is a person's enrollment in one course.
type Enrollment struct {
	ID              int64             `json:"-"`
	EnrollmentID    string            `json:"enrollment_id"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	NationalID      string            `json:"national_id"`
	Address         string            `json:"address"`
	City            string            `json:"city"`
	District        string            `json:"district"`
	State           string            `json:"state"`
	PinCode         string            `json:"pin_code"`
	CourseID        string            `json:"course_id"`
	CourseName      string            `json:"course_name"`
	CourseFee       decimal.Decimal   `json:"course_fee"`
	ReferralCode    string            `json:"referral_code,omitempty"`
	ExistingStudent bool              `json:"existing_student"`
	Status          string            `json:"status"`
	Details         EnrollmentDetails `json:"details"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// FullName joins first and last name.
func (e *Enrollment) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// SameBasics reports whether the contact fields of o equal those of e.
func (e *Enrollment) SameBasics(o *Enrollment) bool {
	return e.FirstName == o.FirstName && e.LastName == o.LastName &&
		e.Email == o.Email && e.Phone == o.Phone && e.NationalID == o.NationalID &&
		e.Address == o.Address && e.City == o.City && e.District == o.District &&
		e.State == o.State && e.PinCode == o.PinCode &&
		e.CourseName == o.CourseName && e.CourseFee.Equal(o.CourseFee) &&
		e.ReferralCode == o.ReferralCode
}

// MatchedFields lists the dedup keys of e equal to the given values.
func (e *Enrollment) MatchedFields(email, phone, nationalID string) []string {
	var fields []string
	if email != "" && e.Email == email {
		fields = append(fields, MatchEmail)
	}
	if phone != "" && e.Phone == phone {
		fields = append(fields, MatchPhone)
	}
	if nationalID != "" && e.NationalID == nationalID {
		fields = append(fields, MatchNationalID)
	}
	return fields
}

// EnrollmentDetails is attached when the enrollment completes. Stored as JSONB.
type EnrollmentDetails struct {
	SchoolName       string `json:"school_name,omitempty"`
	SchoolCity       string `json:"school_city,omitempty"`
	SchoolDistrict   string `json:"school_district,omitempty"`
	SchoolState      string `json:"school_state,omitempty"`
	SchoolPinCode    string `json:"school_pin_code,omitempty"`
	FatherName       string `json:"father_name,omitempty"`
	FatherOccupation string `json:"father_occupation,omitempty"`
	FatherPhone      string `json:"father_phone,omitempty"`
	FatherEmail      string `json:"father_email,omitempty"`
	MotherName       string `json:"mother_name,omitempty"`
	MotherOccupation string `json:"mother_occupation,omitempty"`
	MotherPhone      string `json:"mother_phone,omitempty"`
	MotherEmail      string `json:"mother_email,omitempty"`
	ReferenceSource  string `json:"reference_source,omitempty"`
	PhotoURL         string `json:"photo_url,omitempty"`
	IDDocumentURL    string `json:"id_document_url,omitempty"`
}

// Invoice is the gap-free sequential invoice allocated on completion.
type Invoice struct {
	ID              int64     `json:"-"`
	EnrollmentID    string    `json:"enrollment_id"`
	InvoiceNumber   int64     `json:"invoice_number"`
	FormattedNumber string    `json:"formatted_number"`
	CreatedAt       time.Time `json:"created_at"`
}
