package ids

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/domain"
)

func TestFormats(t *testing.T) {
	tests := []struct {
		name    string
		gen     func() (string, error)
		pattern string
	}{
		{"referral code", ReferralCode, `^[A-Z0-9]{6}$`},
		{"teacher code", TeacherCode, `^T[0-9]{5}$`},
		{"otp", OTP, `^[1-9][0-9]{5}$`},
		{"coupon code", func() (string, error) { return CouponCode(time.Now()) }, `^EDU[0-9]{6}[A-Z0-9]{4}$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := regexp.MustCompile(tt.pattern)
			for i := 0; i < 200; i++ {
				code, err := tt.gen()
				require.NoError(t, err)
				assert.Regexp(t, re, code)
			}
		})
	}
}

func TestEnrollmentID(t *testing.T) {
	day := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "20260307ED001", EnrollmentID(day, "ED", 1))
	assert.Equal(t, "20260307ED042", EnrollmentID(day, "ED", 42))
	assert.Equal(t, "enrollment:20260307", EnrollmentSequence(day))
}

func TestInvoiceLabel(t *testing.T) {
	assert.Equal(t, "EDU-2026-00001", InvoiceLabel("EDU", 2026, 1))
	assert.Equal(t, "EDU-2026-12345", InvoiceLabel("EDU", 2026, 12345))
}

func TestUnique_SkipsTakenCodes(t *testing.T) {
	codes := []string{"AAAAAA", "BBBBBB", "CCCCCC"}
	i := 0
	gen := func() (string, error) {
		c := codes[i]
		i++
		return c, nil
	}
	taken := map[string]bool{"AAAAAA": true, "BBBBBB": true}
	exists := func(_ context.Context, c string) (bool, error) { return taken[c], nil }

	code, err := Unique(context.Background(), gen, exists)
	require.NoError(t, err)
	assert.Equal(t, "CCCCCC", code)
}

func TestUnique_Exhausted(t *testing.T) {
	gen := func() (string, error) { return "AAAAAA", nil }
	exists := func(context.Context, string) (bool, error) { return true, nil }

	_, err := Unique(context.Background(), gen, exists)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestRetry(t *testing.T) {
	t.Run("retries constraint violations", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 5, func() error {
			calls++
			if calls < 3 {
				return domain.ConstraintViolation("coupons_coupon_code_key", nil)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on other errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := Retry(context.Background(), 5, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 2, func() error {
			calls++
			return domain.ConstraintViolation("x", nil)
		})
		assert.ErrorIs(t, err, domain.ErrConstraintViolation)
		assert.Equal(t, 2, calls)
	})
}
