package referrals

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/notifications"
	"github.com/educatory/backend/internal/notifications/notificationstest"
	"github.com/educatory/backend/internal/store"
	"github.com/educatory/backend/internal/store/memory"
)

var ctx = context.Background()

func newService(t *testing.T, autoApprove bool) (*Service, *memory.Store, *notificationstest.Recorder) {
	t.Helper()
	st := memory.New()
	rec := &notificationstest.Recorder{}
	policy := Policy{
		AutoApprove:       autoApprove,
		DefaultCommission: decimal.RequireFromString("500.00"),
		RewardPercent:     decimal.NewFromInt(10),
	}
	svc := NewService(st, rec, notifications.NewComposer("https://enroll.example.com", policy.RewardPercent), nil, policy, nil)
	return svc, st, rec
}

func seedEnrollment(t *testing.T, st *memory.Store, id, email, phone, course, status string) {
	t.Helper()
	require.NoError(t, st.InsertEnrollment(ctx, &models.Enrollment{
		EnrollmentID: id,
		FirstName:    "Student",
		LastName:     id,
		Email:        email,
		Phone:        phone,
		CourseID:     course,
		CourseName:   "Course " + course,
		CourseFee:    decimal.NewFromInt(500),
		Status:       status,
	}))
}

func seedReferral(t *testing.T, st *memory.Store, code, owner string) {
	t.Helper()
	require.NoError(t, st.InsertReferral(ctx, &models.Referral{EnrollmentID: owner, ReferralCode: code, Status: models.ReferralStatusActive}))
}

func apply(t *testing.T, svc *Service, st *memory.Store, code, enrollmentID string) (*Applied, error) {
	t.Helper()
	var out *Applied
	err := st.InTx(ctx, func(q store.Querier) error {
		var err error
		out, err = svc.Apply(ctx, q, code, enrollmentID)
		return err
	})
	return out, err
}

func TestApply_StudentFirstWriteWins(t *testing.T) {
	svc, st, _ := newService(t, true)
	seedEnrollment(t, st, "20260101ED001", "owner@example.com", "9000000001", "C1", models.EnrollmentStatusCompleted)
	seedEnrollment(t, st, "20260102ED001", "new@example.com", "9000000002", "C1", models.EnrollmentStatusPending)
	seedReferral(t, st, "ABC123", "20260101ED001")

	applied, err := apply(t, svc, st, " abc123 ", "20260102ED001")
	require.NoError(t, err)
	assert.True(t, applied.Recorded)
	assert.Equal(t, models.ReferrerStudent, applied.Referrer.Type)

	applied, err = apply(t, svc, st, "ABC123", "20260102ED001")
	require.NoError(t, err)
	assert.False(t, applied.Recorded)

	ref, err := st.GetActiveReferral(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 1, ref.TimesUsed)

	use, err := st.GetApprovedReferralUse(ctx, "20260102ED001")
	require.NoError(t, err)
	require.NotNil(t, use)
}

func TestApply_PendingWithoutAutoApprove(t *testing.T) {
	svc, st, _ := newService(t, false)
	seedEnrollment(t, st, "20260101ED001", "owner@example.com", "9000000001", "C1", models.EnrollmentStatusCompleted)
	seedEnrollment(t, st, "20260102ED001", "new@example.com", "9000000002", "C1", models.EnrollmentStatusPending)
	seedReferral(t, st, "ABC123", "20260101ED001")

	_, err := apply(t, svc, st, "ABC123", "20260102ED001")
	require.NoError(t, err)

	pending, err := svc.ListUses(ctx, models.ReferralUsePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	reward, err := svc.Approve(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Nil(t, reward)
	_, err = svc.Approve(ctx, pending[0].ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, svc.Reject(ctx, pending[0].ID, "late"), domain.ErrConflict)

	use, err := st.GetApprovedReferralUse(ctx, "20260102ED001")
	require.NoError(t, err)
	assert.NotNil(t, use)
}

func TestApply_SelfReferral(t *testing.T) {
	svc, st, _ := newService(t, true)
	seedEnrollment(t, st, "20260101ED001", "owner@example.com", "9000000001", "C1", models.EnrollmentStatusCompleted)
	seedEnrollment(t, st, "20260102ED001", "owner@example.com", "9000000009", "C2", models.EnrollmentStatusPending)
	seedReferral(t, st, "ABC123", "20260101ED001")

	_, err := apply(t, svc, st, "ABC123", "20260102ED001")
	require.ErrorIs(t, err, domain.ErrConflict)

	ref, err := st.GetActiveReferral(ctx, "ABC123")
	require.NoError(t, err)
	assert.Zero(t, ref.TimesUsed)
}

func TestApply_UnknownCode(t *testing.T) {
	svc, st, _ := newService(t, true)
	seedEnrollment(t, st, "20260102ED001", "new@example.com", "9000000002", "C1", models.EnrollmentStatusPending)
	_, err := apply(t, svc, st, "NOPE00", "20260102ED001")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTeacherFlow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, st, rec := newService(t, true)
	svc.now = func() time.Time { return now }

	teacher, err := svc.RegisterTeacher(ctx, TeacherRequest{Name: "Meena", Email: "Meena@Example.com ", Phone: "9111111111", Type: "teacher"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^T\d{5}$`), teacher.ReferralCode)
	assert.Equal(t, "meena@example.com", teacher.Email)
	assert.Len(t, rec.OfType(models.EmailTypeTeacherWelcome), 1)

	_, err = svc.RegisterTeacher(ctx, TeacherRequest{Name: "Other", Email: "meena@example.com", Phone: "1", Type: "teacher"})
	require.ErrorIs(t, err, domain.ErrConflict)

	seedEnrollment(t, st, "20260301ED001", "kid@example.com", "9000000003", "C1", models.EnrollmentStatusPending)
	applied, err := apply(t, svc, st, teacher.ReferralCode, "20260301ED001")
	require.NoError(t, err)
	assert.Equal(t, models.ReferrerTeacher, applied.Referrer.Type)

	report, err := svc.TeacherStudents(ctx, teacher.ReferralCode)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalReferrals)
	assert.Equal(t, "500", report.Students[0].CommissionAmount.String())
	assert.Equal(t, models.CommissionPending, report.Students[0].PaidStatus)

	var useID int64
	err = st.InTx(ctx, func(q store.Querier) error {
		c, err := svc.ConfirmCommission(ctx, q, "20260301ED001")
		if err != nil {
			return err
		}
		require.NotNil(t, c)
		useID = c.Use.ID
		assert.Equal(t, now, *c.Use.ConfirmedAt)
		assert.Equal(t, teacher.ReferralCode, c.Teacher.ReferralCode)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkCommissionPaid(ctx, useID))
	assert.ErrorIs(t, svc.MarkCommissionPaid(ctx, useID), domain.ErrConflict)
}

func TestMarkCommissionPaid_Unconfirmed(t *testing.T) {
	svc, st, _ := newService(t, true)
	teacher, err := svc.RegisterTeacher(ctx, TeacherRequest{Name: "Meena", Email: "m@example.com", Phone: "9", Type: "teacher"})
	require.NoError(t, err)
	seedEnrollment(t, st, "20260301ED001", "kid@example.com", "9000000003", "C1", models.EnrollmentStatusPending)
	_, err = apply(t, svc, st, teacher.ReferralCode, "20260301ED001")
	require.NoError(t, err)

	// Learn the use ID from a confirmation that is rolled back.
	var useID int64
	err = st.InTx(ctx, func(q store.Querier) error {
		use, err := q.ConfirmTeacherReferralUse(ctx, "20260301ED001", time.Now())
		require.NoError(t, err)
		require.NotNil(t, use)
		useID = use.ID
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.ErrorIs(t, svc.MarkCommissionPaid(ctx, useID), domain.ErrConflict)
}

func TestValidate(t *testing.T) {
	svc, st, _ := newService(t, true)
	seedEnrollment(t, st, "20260101ED001", "owner@example.com", "9000000001", "C1", models.EnrollmentStatusCompleted)
	seedReferral(t, st, "ABC123", "20260101ED001")

	ref, err := svc.Validate(ctx, "ABC123", "fresh@example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Student 20260101ED001", ref.Name)
	assert.Equal(t, "10% of course fee", ref.Discount)

	_, err = svc.Validate(ctx, "ABC123", "", "9000000001", "")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Validate(ctx, "", "", "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReject_RequiresReason(t *testing.T) {
	svc, _, _ := newService(t, false)
	assert.ErrorIs(t, svc.Reject(ctx, 1, " "), domain.ErrValidation)
}
