// Package ids generates the human-facing identifiers: enrollment IDs, referral
// and teacher codes, coupon codes, OTPs and invoice labels.
package ids

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/educatory/backend/internal/domain"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// ReferralCodeLength is the length of a student referral code.
	ReferralCodeLength = 6
	// MaxAttempts bounds rejection sampling and conflict retries.
	MaxAttempts = 10
)

// ErrExhausted is returned when no unused code was found within MaxAttempts.
var ErrExhausted = errors.New("no unused code found")

// RandomString draws n characters uniformly from charset.
func RandomString(n int, charset string) (string, error) {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random: %w", err)
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b), nil
}

// ReferralCode returns 6 uppercase alphanumerics.
func ReferralCode() (string, error) {
	return RandomString(ReferralCodeLength, alphanumeric)
}

// TeacherCode returns "T" followed by 5 digits.
func TeacherCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	return fmt.Sprintf("T%05d", n.Int64()), nil
}

// CouponCode returns "EDU" + the last 6 digits of now in unix millis + 4 random alphanumerics.
func CouponCode(now time.Time) (string, error) {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	suffix, err := RandomString(4, alphanumeric)
	if err != nil {
		return "", err
	}
	return "EDU" + ms + suffix, nil
}

// OTP returns a 6-digit one-time password in 100000..999999.
func OTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}

// EnrollmentID formats YYYYMMDD + prefix + a zero-padded daily sequence.
func EnrollmentID(day time.Time, prefix string, seq int64) string {
	return fmt.Sprintf("%s%s%03d", day.Format("20060102"), prefix, seq)
}

// EnrollmentSequence names the per-day counter used by EnrollmentID.
func EnrollmentSequence(day time.Time) string {
	return "enrollment:" + day.Format("20060102")
}

// InvoiceSequence names the global invoice counter.
const InvoiceSequence = "invoice"

// InvoiceLabel formats an invoice number, e.g. EDU-2026-00001.
func InvoiceLabel(prefix string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, n)
}

// Unique draws codes from gen until exists reports the code is free.
func Unique(ctx context.Context, gen func() (string, error), exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		code, err := gen()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// Retry re-runs fn while it fails with a constraint violation, up to attempts times.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, domain.ErrConstraintViolation) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
