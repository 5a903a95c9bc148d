package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/educatory/backend/internal/coupons"
	"github.com/educatory/backend/internal/enrollments"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/notifications"
	"github.com/educatory/backend/internal/notifications/notificationstest"
	"github.com/educatory/backend/internal/referrals"
	"github.com/educatory/backend/internal/store"
	"github.com/educatory/backend/internal/store/postgres"
	"github.com/educatory/backend/pkg/database"
)

const workers = 8

// newStore migrates a throwaway schema on DATABASE_URL and drops it when the
// test ends.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	logger := zap.NewNop()
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := database.NewPostgresPool(ctx, dsn, database.PoolConfig{MaxConns: 2}, logger)
	require.NoError(t, err)
	t.Cleanup(admin.Close)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	pool, err := database.NewPostgresPool(ctx, withSearchPath(t, dsn, schema),
		database.PoolConfig{MaxConns: workers + 2}, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, logger))
	return postgres.New(pool)
}

func withSearchPath(t *testing.T, dsn, schema string) string {
	t.Helper()
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

func seedEnrollment(t *testing.T, s *postgres.Store, id string) {
	t.Helper()
	require.NoError(t, s.InsertEnrollment(context.Background(), &models.Enrollment{
		EnrollmentID: id, FirstName: "Asha", Email: id + "@example.com", Phone: id, NationalID: id,
		CourseID: "course-1", CourseName: "Robotics", CourseFee: decimal.NewFromInt(5000),
		Status: models.EnrollmentStatusCompleted,
	}))
}

func seedCoupon(t *testing.T, s *postgres.Store, code string, amount int64) {
	t.Helper()
	ctx := context.Background()
	owner := "ENR-" + code
	seedEnrollment(t, s, owner)
	require.NoError(t, s.InsertReferral(ctx, &models.Referral{
		EnrollmentID: owner, ReferralCode: "REF-" + code, Status: models.ReferralStatusActive,
	}))
	require.NoError(t, s.InsertCoupon(ctx, &models.Coupon{
		CouponCode: code, ReferralCode: "REF-" + code, Amount: decimal.NewFromInt(amount),
		SourcePaymentID: "pay_src_" + code,
	}))
}

func TestNextSequence_ParallelIsGapFree(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []int64
		wg  sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(q store.Querier) error {
				v, err := q.NextSequence(ctx, "invoice")
				if err != nil {
					return err
				}
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, workers)
	for i, v := range got {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestNextSequence_RollbackReleasesNumber(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q store.Querier) error {
		v, err := q.NextSequence(ctx, "invoice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var next int64
	require.NoError(t, s.InTx(ctx, func(q store.Querier) error {
		next, err = q.NextSequence(ctx, "invoice")
		return err
	}))
	assert.Equal(t, int64(1), next)
}

func TestClampCouponAmount_ConcurrentNeverRaises(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedCoupon(t, s, "CPN1", 900)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		max := decimal.NewFromInt(int64(300 + 100*i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			var stored decimal.Decimal
			err := s.InTx(ctx, func(q store.Querier) error {
				var err error
				stored, err = q.ClampCouponAmount(ctx, "CPN1", max)
				return err
			})
			if assert.NoError(t, err) {
				assert.True(t, stored.LessThanOrEqual(max), "stored %s above cap %s", stored, max)
			}
		}()
	}
	wg.Wait()

	c, err := s.GetCoupon(ctx, "CPN1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(300)), "amount %s", c.Amount)
}

func TestValidate_ConcurrentQuotesNeverExceedStoredAmount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedCoupon(t, s, "CPN2", 900)
	composer := notifications.NewComposer("https://enroll.example.com", decimal.NewFromInt(10))
	svc := coupons.NewService(s, &notificationstest.Recorder{}, composer, nil, coupons.Policy{
		OTPTTL: 10 * time.Minute, ValidationTTL: 30 * time.Minute, RewardPercent: decimal.NewFromInt(10),
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		fee := decimal.NewFromInt(int64(400 + 100*i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := svc.Validate(ctx, "CPN2", fee)
			if assert.NoError(t, err) {
				assert.True(t, v.DiscountAmount.LessThan(fee), "discount %s not below fee %s", v.DiscountAmount, fee)
			}
		}()
	}
	wg.Wait()

	c, err := s.GetCoupon(ctx, "CPN2")
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(399)), "amount %s", c.Amount)
}

func TestMarkCouponsUsed_ConcurrentSingleWinner(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedCoupon(t, s, "CPN3", 500)

	var (
		mu      sync.Mutex
		winners []string
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		paymentID := fmt.Sprintf("pay_%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(q store.Querier) error {
				n, err := q.MarkCouponsUsed(ctx, []string{"CPN3"}, paymentID, time.Now())
				if err != nil {
					return err
				}
				if n == 1 {
					mu.Lock()
					winners = append(winners, paymentID)
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	c, err := s.GetCoupon(ctx, "CPN3")
	require.NoError(t, err)
	assert.True(t, c.IsUsed)
	assert.Equal(t, winners[0], c.TransactionID)
	assert.Equal(t, "pay_src_CPN3", c.SourcePaymentID)
}

func TestInsertCoupon_TransactionIDStaysEmptyUntilRedeemed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedCoupon(t, s, "CPN4", 250)

	c, err := s.GetCoupon(ctx, "CPN4")
	require.NoError(t, err)
	assert.Equal(t, "pay_src_CPN4", c.SourcePaymentID)
	assert.Empty(t, c.TransactionID)
	assert.False(t, c.IsUsed)
}

func TestReviewReferralUse_OnlyPendingMoves(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedEnrollment(t, s, "ENR-OWNER")
	seedEnrollment(t, s, "ENR-NEW")
	require.NoError(t, s.InsertReferral(ctx, &models.Referral{
		EnrollmentID: "ENR-OWNER", ReferralCode: "REF1", Status: models.ReferralStatusActive,
	}))
	u := &models.ReferralUse{
		ReferralCode: "REF1", ReferredEnrollmentID: "ENR-NEW", ValidationStatus: models.ReferralUsePending,
	}
	ok, err := s.InsertReferralUse(ctx, u)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.ReviewReferralUse(ctx, u.ID, models.ReferralUseApproved, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ReferralUseApproved, got.ValidationStatus)

	again, err := s.ReviewReferralUse(ctx, u.ID, models.ReferralUseRejected, "late")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestCreate_ConcurrentSameIdentityCreatesOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rec := &notificationstest.Recorder{}
	percent := decimal.NewFromInt(10)
	composer := notifications.NewComposer("https://enroll.example.com", percent)
	cpns := coupons.NewService(s, rec, composer, nil, coupons.Policy{
		OTPTTL: 10 * time.Minute, ValidationTTL: 30 * time.Minute, RewardPercent: percent,
	}, nil)
	refs := referrals.NewService(s, rec, composer, nil, referrals.Policy{
		AutoApprove: true, DefaultCommission: decimal.NewFromInt(500), RewardPercent: percent,
	}, nil, referrals.WithRewards(cpns))
	svc := enrollments.NewService(s, refs, cpns, rec, composer, nil,
		enrollments.Config{IDPrefix: "ED", InvoicePrefix: "EDU"}, nil)

	req := enrollments.CreateRequest{
		FirstName: "Ravi", LastName: "Kumar", Email: "ravi@example.com", Phone: "9876543210",
		NationalID: "ID-9876543210", City: "Pune", CourseID: "course-7", CourseName: "Robotics",
		CourseFee: decimal.NewFromInt(5000),
	}

	var (
		mu       sync.Mutex
		outcomes []string
		ids      = map[string]bool{}
		wg       sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Create(ctx, req)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes = append(outcomes, res.Outcome)
			ids[res.Enrollment.EnrollmentID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	created := 0
	for _, o := range outcomes {
		if o == enrollments.OutcomeCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	found, err := s.FindEnrollmentsInCourse(ctx, store.IdentityMatch{
		Email: req.Email, Phone: req.Phone, NationalID: req.NationalID,
	}, req.CourseID)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
