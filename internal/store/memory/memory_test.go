package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/store"
)

func seedEnrollment(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.InsertEnrollment(context.Background(), &models.Enrollment{
		EnrollmentID: id, FirstName: "Asha", Email: id + "@example.com", Phone: id, NationalID: id,
		CourseID: "course-1", CourseName: "Robotics", CourseFee: decimal.NewFromInt(500),
		Status: models.EnrollmentStatusPending,
	}))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q store.Querier) error {
		_, err := q.NextSequence(ctx, "invoice")
		require.NoError(t, err)
		require.NoError(t, q.InsertEnrollment(ctx, &models.Enrollment{EnrollmentID: "E1", Status: models.EnrollmentStatusPending}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := s.GetEnrollment(ctx, "E1")
	require.NoError(t, err)
	assert.Nil(t, e)

	n, err := s.NextSequence(ctx, "invoice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "rolled back increment must not leave a gap")
}

func TestNextSequence_GapFreeUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 40; i++ {
		seedEnrollment(t, s, "E"+string(rune('A'+i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "E" + string(rune('A'+i))
			_ = s.InTx(ctx, func(q store.Querier) error {
				n, err := q.NextSequence(ctx, "invoice")
				if err != nil {
					return err
				}
				if i%4 == 0 {
					return errors.New("abort")
				}
				return q.InsertInvoice(ctx, &models.Invoice{EnrollmentID: id, InvoiceNumber: n, FormattedNumber: id})
			})
		}(i)
	}
	wg.Wait()

	var numbers []int
	for i := 0; i < 40; i++ {
		inv, err := s.GetInvoice(ctx, "E"+string(rune('A'+i)))
		require.NoError(t, err)
		if inv != nil {
			numbers = append(numbers, int(inv.InvoiceNumber))
		}
	}
	sort.Ints(numbers)
	require.Len(t, numbers, 30)
	for i, n := range numbers {
		assert.Equal(t, i+1, n)
	}
}

func TestMarkCouponsUsed_OnlyUnused(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEnrollment(t, s, "E1")
	require.NoError(t, s.InsertReferral(ctx, &models.Referral{EnrollmentID: "E1", ReferralCode: "ABC123", Status: models.ReferralStatusActive}))
	require.NoError(t, s.InsertCoupon(ctx, &models.Coupon{CouponCode: "C1", ReferralCode: "ABC123", Amount: decimal.NewFromInt(50)}))

	n, err := s.MarkCouponsUsed(ctx, []string{"C1"}, "pay_1", s.now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.MarkCouponsUsed(ctx, []string{"C1"}, "pay_2", s.now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	c, err := s.GetCoupon(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", c.TransactionID)
	assert.Equal(t, "E1@example.com", c.OwnerEmail)
}

func TestInsertCoupon_DuplicateIsConstraintViolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEnrollment(t, s, "E1")
	require.NoError(t, s.InsertReferral(ctx, &models.Referral{EnrollmentID: "E1", ReferralCode: "ABC123", Status: models.ReferralStatusActive}))
	require.NoError(t, s.InsertCoupon(ctx, &models.Coupon{CouponCode: "C1", ReferralCode: "ABC123", Amount: decimal.NewFromInt(50)}))

	err := s.InsertCoupon(ctx, &models.Coupon{CouponCode: "C1", ReferralCode: "ABC123", Amount: decimal.NewFromInt(50)})
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
}

func TestInsertCoupon_KeepsOnlyInsertedColumns(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEnrollment(t, s, "E1")
	require.NoError(t, s.InsertReferral(ctx, &models.Referral{EnrollmentID: "E1", ReferralCode: "ABC123", Status: models.ReferralStatusActive}))
	require.NoError(t, s.InsertCoupon(ctx, &models.Coupon{
		CouponCode:      "C1",
		ReferralCode:    "ABC123",
		Amount:          decimal.NewFromInt(50),
		SourcePaymentID: "pay_src",
		TransactionID:   "pay_other",
		IsUsed:          true,
		OTP:             "123456",
	}))

	c, err := s.GetCoupon(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "pay_src", c.SourcePaymentID)
	assert.Empty(t, c.TransactionID)
	assert.False(t, c.IsUsed)
	assert.Empty(t, c.OTP)
}

func TestClampCouponAmount_ReturnsStoredAmount(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedEnrollment(t, s, "E1")
	require.NoError(t, s.InsertReferral(ctx, &models.Referral{EnrollmentID: "E1", ReferralCode: "ABC123", Status: models.ReferralStatusActive}))
	require.NoError(t, s.InsertCoupon(ctx, &models.Coupon{CouponCode: "C1", ReferralCode: "ABC123", Amount: decimal.NewFromInt(500)}))

	got, err := s.ClampCouponAmount(ctx, "C1", decimal.NewFromInt(300))
	require.NoError(t, err)
	assert.Equal(t, "300", got.String())

	got, err = s.ClampCouponAmount(ctx, "C1", decimal.NewFromInt(449))
	require.NoError(t, err)
	assert.Equal(t, "300", got.String(), "a larger cap never raises the amount")

	_, err = s.ClampCouponAmount(ctx, "MISSING", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
