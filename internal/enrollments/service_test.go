package enrollments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/coupons"
	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/notifications"
	"github.com/educatory/backend/internal/notifications/notificationstest"
	"github.com/educatory/backend/internal/referrals"
	"github.com/educatory/backend/internal/store"
	"github.com/educatory/backend/internal/store/memory"
)

var ctx = context.Background()

var day = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc  *Service
	refs *referrals.Service
	st   *memory.Store
	rec  *notificationstest.Recorder
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithApproval(t, true)
}

func newFixtureWithApproval(t *testing.T, autoApprove bool) *fixture {
	t.Helper()
	now := func() time.Time { return day }
	st := memory.New(memory.WithClock(now))
	rec := &notificationstest.Recorder{}
	percent := decimal.NewFromInt(10)
	composer := notifications.NewComposer("https://enroll.example.com", percent)
	cpns := coupons.NewService(st, rec, composer, nil, coupons.Policy{
		OTPTTL:        10 * time.Minute,
		ValidationTTL: 30 * time.Minute,
		RewardPercent: percent,
	}, nil, coupons.WithClock(now))
	refs := referrals.NewService(st, rec, composer, nil, referrals.Policy{
		AutoApprove:       autoApprove,
		DefaultCommission: decimal.RequireFromString("500.00"),
		RewardPercent:     percent,
	}, nil, referrals.WithClock(now), referrals.WithRewards(cpns))
	svc := NewService(st, refs, cpns, rec, composer, nil, Config{IDPrefix: "ED", InvoicePrefix: "EDU"}, nil, WithClock(now))
	return &fixture{svc: svc, refs: refs, st: st, rec: rec}
}

func request(email, phone, course string) CreateRequest {
	return CreateRequest{
		FirstName:  "Ravi",
		LastName:   "Kumar",
		Email:      email,
		Phone:      phone,
		NationalID: "ID-" + phone,
		City:       "Pune",
		CourseID:   course,
		CourseName: "Course " + course,
		CourseFee:  decimal.NewFromInt(5000),
	}
}

// pay stands in for payment verification: applies the recorded referral
// and advances the enrollment to payment_completed.
func (f *fixture) pay(t *testing.T, enrollmentID, paymentID string) {
	t.Helper()
	require.NoError(t, f.st.InTx(ctx, func(q store.Querier) error {
		e, err := q.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if e.ReferralCode != "" {
			if _, err := f.refs.Apply(ctx, q, e.ReferralCode, enrollmentID); err != nil {
				return err
			}
		}
		orderID := "order_" + paymentID
		if err := q.InsertPayment(ctx, &models.Payment{EnrollmentID: enrollmentID, GatewayOrderID: orderID, Amount: e.CourseFee, Currency: models.DefaultCurrency, Status: models.PaymentStatusCreated}); err != nil {
			return err
		}
		if _, err := q.CompletePayment(ctx, orderID, paymentID, day); err != nil {
			return err
		}
		_, err = q.TransitionEnrollment(ctx, enrollmentID, models.EnrollmentStatusPending, models.EnrollmentStatusPaymentCompleted)
		return err
	}))
}

func (f *fixture) completed(t *testing.T, req CreateRequest, paymentID string) *CompleteResult {
	t.Helper()
	res, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	f.pay(t, res.Enrollment.EnrollmentID, paymentID)
	done, err := f.svc.Complete(ctx, res.Enrollment.EnrollmentID, models.EnrollmentDetails{SchoolName: "City High"})
	require.NoError(t, err)
	return done
}

func TestCreate_AssignsDailySequence(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(ctx, request("A@Example.com ", "9000000001", "C1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, first.Outcome)
	assert.Equal(t, "20260310ED001", first.Enrollment.EnrollmentID)
	assert.Equal(t, "a@example.com", first.Enrollment.Email)
	assert.Equal(t, models.EnrollmentStatusPending, first.Enrollment.Status)

	second, err := f.svc.Create(ctx, request("b@example.com", "9000000002", "C1"))
	require.NoError(t, err)
	assert.Equal(t, "20260310ED002", second.Enrollment.EnrollmentID)

	assert.Len(t, f.rec.OfType(models.EmailTypeRegistrationInitiated), 2)
}

func TestCreate_PendingResubmission(t *testing.T) {
	f := newFixture(t)
	req := request("a@example.com", "9000000001", "C1")
	first, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	again, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, again.Outcome)
	assert.Equal(t, first.Enrollment.EnrollmentID, again.Enrollment.EnrollmentID)
	assert.Len(t, f.rec.OfType(models.EmailTypeRegistrationInitiated), 1, "identical resubmission sends nothing")

	req.City = "Nagpur"
	req.Phone = "9000000009"
	updated, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, updated.Outcome)
	assert.Equal(t, first.Enrollment.EnrollmentID, updated.Enrollment.EnrollmentID)

	stored, err := f.svc.Get(ctx, first.Enrollment.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, "Nagpur", stored.City)
	assert.Equal(t, "9000000009", stored.Phone)
	assert.Len(t, f.rec.OfType(models.EmailTypeDetailsUpdated), 1)
}

func TestCreate_ConflictOncePaid(t *testing.T) {
	f := newFixture(t)
	req := request("a@example.com", "9000000001", "C1")
	first, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	f.pay(t, first.Enrollment.EnrollmentID, "pay_1")

	req.NationalID = "OTHER"
	_, err = f.svc.Create(ctx, req)
	require.ErrorIs(t, err, domain.ErrConflict)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.ElementsMatch(t, []string{models.MatchEmail, models.MatchPhone}, de.FieldList())

	other, err := f.svc.Create(ctx, request("a@example.com", "9000000001", "C2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, other.Outcome)
	assert.False(t, other.Enrollment.ExistingStudent)
}

func TestCreate_ReferralCode(t *testing.T) {
	f := newFixture(t)
	owner := f.completed(t, request("owner@example.com", "9000000001", "C1"), "pay_owner")

	_, err := f.svc.Create(ctx, CreateRequest{
		FirstName: "X", Email: "x@example.com", Phone: "9000000005", CourseID: "C1", CourseName: "Course C1",
		CourseFee: decimal.NewFromInt(5000), ReferralCode: "NOPE00",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	req := request("new@example.com", "9000000002", "C1")
	req.ReferralCode = " " + owner.ReferralCode
	res, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, owner.ReferralCode, res.Enrollment.ReferralCode)
}

func TestCreate_ExistingStudentReferralIgnored(t *testing.T) {
	f := newFixture(t)
	referrer := f.completed(t, request("owner@example.com", "9000000001", "C1"), "pay_owner")
	f.completed(t, request("back@example.com", "9000000002", "C1"), "pay_back")

	req := request("back@example.com", "9000000002", "C2")
	req.ReferralCode = referrer.ReferralCode
	res, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Enrollment.ExistingStudent)
	assert.True(t, res.ReferralIgnored)
	assert.Empty(t, res.Enrollment.ReferralCode)
}

func TestCreate_ConcurrentSubmissionsCreateOne(t *testing.T) {
	f := newFixture(t)
	req := request("a@example.com", "9000000001", "C1")

	var wg sync.WaitGroup
	results := make([]*CreateResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Create(ctx, req)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "20260310ED001", results[i].Enrollment.EnrollmentID)
		if results[i].Outcome == OutcomeCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestComplete_StudentReferralRewardsReferrer(t *testing.T) {
	f := newFixture(t)
	owner := f.completed(t, request("owner@example.com", "9000000001", "C1"), "pay_owner")
	assert.Equal(t, "EDU-2026-00001", owner.Invoice.FormattedNumber)
	assert.Len(t, owner.ReferralCode, 6)
	assert.Nil(t, owner.Reward)

	req := request("new@example.com", "9000000002", "C1")
	req.ReferralCode = owner.ReferralCode
	done := f.completed(t, req, "pay_new")

	assert.Equal(t, int64(2), done.Invoice.InvoiceNumber)
	assert.Equal(t, "EDU-2026-00002", done.Invoice.FormattedNumber)
	assert.Equal(t, models.EnrollmentStatusCompleted, done.Enrollment.Status)
	assert.Equal(t, "City High", done.Enrollment.Details.SchoolName)
	assert.NotEqual(t, owner.ReferralCode, done.ReferralCode)

	require.NotNil(t, done.Reward)
	assert.Equal(t, "500", done.Reward.Amount.String())
	assert.Equal(t, owner.ReferralCode, done.Reward.ReferralCode)
	assert.Equal(t, "pay_new", done.Reward.SourcePaymentID)
	assert.Empty(t, done.Reward.TransactionID)

	completedMsgs := f.rec.OfType(models.EmailTypeRegistrationCompleted)
	require.Len(t, completedMsgs, 2)
	assert.True(t, completedMsgs[1].CCAdmin)
	assert.Len(t, f.rec.OfType(models.EmailTypeReferralProgram), 2)
	earned := f.rec.OfType(models.EmailTypeCouponEarned)
	require.Len(t, earned, 1)
	assert.Equal(t, "owner@example.com", earned[0].To)
}

func TestApprove_AfterCompletionMintsReward(t *testing.T) {
	f := newFixtureWithApproval(t, false)
	owner := f.completed(t, request("owner@example.com", "9000000001", "C1"), "pay_owner")

	req := request("new@example.com", "9000000002", "C1")
	req.ReferralCode = owner.ReferralCode
	done := f.completed(t, req, "pay_new")
	assert.Nil(t, done.Reward, "an unreviewed use earns nothing at completion")
	assert.Empty(t, f.rec.OfType(models.EmailTypeCouponEarned))

	pending, err := f.refs.ListUses(ctx, models.ReferralUsePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	reward, err := f.refs.Approve(ctx, pending[0].ID)
	require.NoError(t, err)
	require.NotNil(t, reward)
	assert.Equal(t, "500", reward.Amount.String())
	assert.Equal(t, owner.ReferralCode, reward.ReferralCode)
	assert.Equal(t, "pay_new", reward.SourcePaymentID)

	earned := f.rec.OfType(models.EmailTypeCouponEarned)
	require.Len(t, earned, 1)
	assert.Equal(t, "owner@example.com", earned[0].To)

	_, err = f.refs.Approve(ctx, pending[0].ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, f.rec.OfType(models.EmailTypeCouponEarned), 1, "a second approval mints nothing")
}

func TestApprove_BeforeCompletionDefersReward(t *testing.T) {
	f := newFixtureWithApproval(t, false)
	owner := f.completed(t, request("owner@example.com", "9000000001", "C1"), "pay_owner")

	req := request("new@example.com", "9000000002", "C1")
	req.ReferralCode = owner.ReferralCode
	created, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	f.pay(t, created.Enrollment.EnrollmentID, "pay_new")

	pending, err := f.refs.ListUses(ctx, models.ReferralUsePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	reward, err := f.refs.Approve(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Nil(t, reward)

	done, err := f.svc.Complete(ctx, created.Enrollment.EnrollmentID, models.EnrollmentDetails{})
	require.NoError(t, err)
	require.NotNil(t, done.Reward)
	assert.Len(t, f.rec.OfType(models.EmailTypeCouponEarned), 1)
}

func TestComplete_TeacherCommissionConfirmed(t *testing.T) {
	f := newFixture(t)
	teacher, err := f.refs.RegisterTeacher(ctx, referrals.TeacherRequest{
		Name: "Meena", Email: "meena@example.com", Phone: "9100000000", Type: "teacher",
	})
	require.NoError(t, err)

	req := request("new@example.com", "9000000002", "C1")
	req.ReferralCode = teacher.ReferralCode
	done := f.completed(t, req, "pay_new")

	require.NotNil(t, done.Commission)
	assert.NotNil(t, done.Commission.Use.ConfirmedAt)
	assert.Equal(t, "500", done.Commission.Use.CommissionAmount.String())
	assert.Nil(t, done.Reward)

	msgs := f.rec.OfType(models.EmailTypeTeacherReferral)
	require.Len(t, msgs, 1)
	assert.Equal(t, "meena@example.com", msgs[0].To)
}

func TestComplete_RequiresPayment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Complete(ctx, "20260310ED999", models.EnrollmentDetails{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := f.svc.Create(ctx, request("a@example.com", "9000000001", "C1"))
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, res.Enrollment.EnrollmentID, models.EnrollmentDetails{})
	assert.ErrorIs(t, err, domain.ErrConflict)

	f.pay(t, res.Enrollment.EnrollmentID, "pay_1")
	_, err = f.svc.Complete(ctx, res.Enrollment.EnrollmentID, models.EnrollmentDetails{})
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, res.Enrollment.EnrollmentID, models.EnrollmentDetails{})
	assert.ErrorIs(t, err, domain.ErrConflict)

	inv, err := f.st.GetInvoice(ctx, res.Enrollment.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inv.InvoiceNumber)
}

func TestFetch(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(ctx, request("a@example.com", "9000000001", "C1"))
	require.NoError(t, err)

	byEmail, err := f.svc.Fetch(ctx, "A@example.com", "C1")
	require.NoError(t, err)
	assert.Equal(t, res.Enrollment.EnrollmentID, byEmail.EnrollmentID)

	byID, err := f.svc.Fetch(ctx, res.Enrollment.EnrollmentID, "")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", byID.Email)

	_, err = f.svc.Fetch(ctx, "a@example.com", "C9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
