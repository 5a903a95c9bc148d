// Package domain holds the error taxonomy shared by the enrollment, referral,
// coupon and payment services.
package domain

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies a domain error.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInvalidOTP          Kind = "invalid_otp"
	KindVerificationMissing Kind = "verification_missing"
	KindInvalidSignature    Kind = "invalid_signature"
	KindConstraintViolation Kind = "constraint_violation"
	KindValidation          Kind = "validation"
)

// Error is a typed failure returned by services. Fields lists the matched
// dedup keys for conflicts or the offending coupon codes for verification errors.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	// Constraint names the violated storage constraint for KindConstraintViolation.
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Constraint != "" {
		msg += " on " + e.Constraint
	}
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// FieldList exposes Fields to the HTTP layer.
func (e *Error) FieldList() []string { return e.Fields }

// PublicMessage is the client-facing message, without the wrapped cause.
func (e *Error) PublicMessage() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind when the target carries no message,
// so errors.Is(err, ErrNotFound) works for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// StatusCode maps the kind onto an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindConstraintViolation:
		return http.StatusConflict
	case KindVerificationMissing:
		return http.StatusUnprocessableEntity
	case KindInvalidOTP, KindInvalidSignature, KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrInvalidOTP          = &Error{Kind: KindInvalidOTP}
	ErrVerificationMissing = &Error{Kind: KindVerificationMissing}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
	ErrConstraintViolation = &Error{Kind: KindConstraintViolation}
	ErrValidation          = &Error{Kind: KindValidation}
)

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string, fields ...string) *Error {
	return &Error{Kind: KindConflict, Message: msg, Fields: fields}
}

func InvalidOTP(msg string) *Error { return &Error{Kind: KindInvalidOTP, Message: msg} }

func VerificationMissing(codes ...string) *Error {
	return &Error{Kind: KindVerificationMissing, Message: "coupon verification missing or expired", Fields: codes}
}

func InvalidSignature() *Error {
	return &Error{Kind: KindInvalidSignature, Message: "invalid payment signature"}
}

// ConstraintViolation wraps a storage uniqueness failure on the named constraint.
func ConstraintViolation(constraint string, err error) *Error {
	return &Error{Kind: KindConstraintViolation, Message: "duplicate value", Constraint: constraint, Err: err}
}

// ViolatedConstraint returns the constraint behind a ConstraintViolation in
// err's chain, or "" when there is none.
func ViolatedConstraint(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind == KindConstraintViolation {
		return de.Constraint
	}
	return ""
}

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }
