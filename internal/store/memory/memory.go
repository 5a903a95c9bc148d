// Package memory implements store.Store in process memory. Transactions are
// fully serialized and roll back by restoring a snapshot, which makes it the
// backend for service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// InTx runs fn against the live state and restores the snapshot if fn fails.
// Do not call Store methods from inside fn; use the Querier argument.
func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(&tx{st: s.st, now: s.now}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func call[T any](s *Store, fn func(q *tx) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{st: s.st, now: s.now})
}

func exec(s *Store, fn func(q *tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{st: s.st, now: s.now})
}

var _ store.Store = (*Store)(nil)

func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	return call(s, func(q *tx) (int64, error) { return q.NextSequence(ctx, name) })
}

func (s *Store) LockCourse(ctx context.Context, courseID string) error {
	return nil
}

func (s *Store) FindEnrollmentsInCourse(ctx context.Context, m store.IdentityMatch, courseID string) ([]models.Enrollment, error) {
	return call(s, func(q *tx) ([]models.Enrollment, error) { return q.FindEnrollmentsInCourse(ctx, m, courseID) })
}

func (s *Store) HasCompletedEnrollmentElsewhere(ctx context.Context, m store.IdentityMatch, courseID string) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.HasCompletedEnrollmentElsewhere(ctx, m, courseID) })
}

func (s *Store) InsertEnrollment(ctx context.Context, e *models.Enrollment) error {
	return exec(s, func(q *tx) error { return q.InsertEnrollment(ctx, e) })
}

func (s *Store) UpdateEnrollmentBasics(ctx context.Context, e *models.Enrollment) error {
	return exec(s, func(q *tx) error { return q.UpdateEnrollmentBasics(ctx, e) })
}

func (s *Store) GetEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return call(s, func(q *tx) (*models.Enrollment, error) { return q.GetEnrollment(ctx, enrollmentID) })
}

func (s *Store) GetEnrollmentForUpdate(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return s.GetEnrollment(ctx, enrollmentID)
}

func (s *Store) FindEnrollment(ctx context.Context, idOrEmail, courseID string) (*models.Enrollment, error) {
	return call(s, func(q *tx) (*models.Enrollment, error) { return q.FindEnrollment(ctx, idOrEmail, courseID) })
}

func (s *Store) TransitionEnrollment(ctx context.Context, enrollmentID, from, to string) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.TransitionEnrollment(ctx, enrollmentID, from, to) })
}

func (s *Store) CompleteEnrollment(ctx context.Context, enrollmentID string, details models.EnrollmentDetails) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.CompleteEnrollment(ctx, enrollmentID, details) })
}

func (s *Store) InsertInvoice(ctx context.Context, inv *models.Invoice) error {
	return exec(s, func(q *tx) error { return q.InsertInvoice(ctx, inv) })
}

func (s *Store) GetInvoice(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	return call(s, func(q *tx) (*models.Invoice, error) { return q.GetInvoice(ctx, enrollmentID) })
}

func (s *Store) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.ReferralCodeExists(ctx, code) })
}

func (s *Store) InsertReferral(ctx context.Context, r *models.Referral) error {
	return exec(s, func(q *tx) error { return q.InsertReferral(ctx, r) })
}

func (s *Store) GetActiveReferral(ctx context.Context, code string) (*models.Referral, error) {
	return call(s, func(q *tx) (*models.Referral, error) { return q.GetActiveReferral(ctx, code) })
}

func (s *Store) GetReferralByEnrollment(ctx context.Context, enrollmentID string) (*models.Referral, error) {
	return call(s, func(q *tx) (*models.Referral, error) { return q.GetReferralByEnrollment(ctx, enrollmentID) })
}

func (s *Store) IncrementReferralUsage(ctx context.Context, code string) error {
	return exec(s, func(q *tx) error { return q.IncrementReferralUsage(ctx, code) })
}

func (s *Store) InsertReferralUse(ctx context.Context, u *models.ReferralUse) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.InsertReferralUse(ctx, u) })
}

func (s *Store) GetApprovedReferralUse(ctx context.Context, referredEnrollmentID string) (*models.ReferralUse, error) {
	return call(s, func(q *tx) (*models.ReferralUse, error) { return q.GetApprovedReferralUse(ctx, referredEnrollmentID) })
}

func (s *Store) ListReferralUses(ctx context.Context, status string) ([]models.ReferralUse, error) {
	return call(s, func(q *tx) ([]models.ReferralUse, error) { return q.ListReferralUses(ctx, status) })
}

func (s *Store) ReviewReferralUse(ctx context.Context, id int64, status, reason string) (*models.ReferralUse, error) {
	return call(s, func(q *tx) (*models.ReferralUse, error) { return q.ReviewReferralUse(ctx, id, status, reason) })
}

func (s *Store) InsertTeacher(ctx context.Context, t *models.TeacherReferral) error {
	return exec(s, func(q *tx) error { return q.InsertTeacher(ctx, t) })
}

func (s *Store) GetActiveTeacher(ctx context.Context, code string) (*models.TeacherReferral, error) {
	return call(s, func(q *tx) (*models.TeacherReferral, error) { return q.GetActiveTeacher(ctx, code) })
}

func (s *Store) InsertTeacherReferralUse(ctx context.Context, u *models.TeacherReferralUse) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.InsertTeacherReferralUse(ctx, u) })
}

func (s *Store) ConfirmTeacherReferralUse(ctx context.Context, enrollmentID string, at time.Time) (*models.TeacherReferralUse, error) {
	return call(s, func(q *tx) (*models.TeacherReferralUse, error) { return q.ConfirmTeacherReferralUse(ctx, enrollmentID, at) })
}

func (s *Store) ListTeacherStudents(ctx context.Context, code string) ([]models.ReferredStudent, error) {
	return call(s, func(q *tx) ([]models.ReferredStudent, error) { return q.ListTeacherStudents(ctx, code) })
}

func (s *Store) MarkCommissionPaid(ctx context.Context, id int64, at time.Time) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.MarkCommissionPaid(ctx, id, at) })
}

func (s *Store) InsertCoupon(ctx context.Context, c *models.Coupon) error {
	return exec(s, func(q *tx) error { return q.InsertCoupon(ctx, c) })
}

func (s *Store) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	return call(s, func(q *tx) (*models.Coupon, error) { return q.GetCoupon(ctx, code) })
}

func (s *Store) GetCoupons(ctx context.Context, codes []string) ([]models.Coupon, error) {
	return call(s, func(q *tx) ([]models.Coupon, error) { return q.GetCoupons(ctx, codes) })
}

func (s *Store) GetCouponForUpdate(ctx context.Context, code string) (*models.Coupon, error) {
	return call(s, func(q *tx) (*models.Coupon, error) { return q.GetCouponForUpdate(ctx, code) })
}

func (s *Store) ClampCouponAmount(ctx context.Context, code string, max decimal.Decimal) (decimal.Decimal, error) {
	return call(s, func(q *tx) (decimal.Decimal, error) { return q.ClampCouponAmount(ctx, code, max) })
}

func (s *Store) InsertCouponAdjustment(ctx context.Context, a *models.CouponAdjustment) error {
	return exec(s, func(q *tx) error { return q.InsertCouponAdjustment(ctx, a) })
}

func (s *Store) SetCouponOTP(ctx context.Context, code, otp string, expiresAt time.Time) error {
	return exec(s, func(q *tx) error { return q.SetCouponOTP(ctx, code, otp, expiresAt) })
}

func (s *Store) RecordFailedOTP(ctx context.Context, code string, limit int) error {
	return exec(s, func(q *tx) error { return q.RecordFailedOTP(ctx, code, limit) })
}

func (s *Store) SetCouponValidation(ctx context.Context, code, otp string, expiresAt time.Time) error {
	return exec(s, func(q *tx) error { return q.SetCouponValidation(ctx, code, otp, expiresAt) })
}

func (s *Store) ValidatedCouponCodes(ctx context.Context, codes []string, now time.Time) ([]string, error) {
	return call(s, func(q *tx) ([]string, error) { return q.ValidatedCouponCodes(ctx, codes, now) })
}

func (s *Store) MarkCouponsUsed(ctx context.Context, codes []string, paymentID string, at time.Time) (int64, error) {
	return call(s, func(q *tx) (int64, error) { return q.MarkCouponsUsed(ctx, codes, paymentID, at) })
}

func (s *Store) ClearExpiredCouponOTPs(ctx context.Context, now time.Time) (int64, error) {
	return call(s, func(q *tx) (int64, error) { return q.ClearExpiredCouponOTPs(ctx, now) })
}

func (s *Store) UpsertPendingCoupon(ctx context.Context, code, enrollmentID string, at time.Time) error {
	return exec(s, func(q *tx) error { return q.UpsertPendingCoupon(ctx, code, enrollmentID, at) })
}

func (s *Store) PendingCouponCodes(ctx context.Context, codes []string, enrollmentID string, since time.Time) ([]string, error) {
	return call(s, func(q *tx) ([]string, error) { return q.PendingCouponCodes(ctx, codes, enrollmentID, since) })
}

func (s *Store) MarkPendingCouponsVerified(ctx context.Context, codes []string, enrollmentID, paymentID string, at time.Time) error {
	return exec(s, func(q *tx) error { return q.MarkPendingCouponsVerified(ctx, codes, enrollmentID, paymentID, at) })
}

func (s *Store) InsertVerifiedPendingCoupon(ctx context.Context, code, enrollmentID, paymentID string, at time.Time) error {
	return exec(s, func(q *tx) error { return q.InsertVerifiedPendingCoupon(ctx, code, enrollmentID, paymentID, at) })
}

func (s *Store) ExpirePendingCoupons(ctx context.Context, cutoff time.Time) (int64, error) {
	return call(s, func(q *tx) (int64, error) { return q.ExpirePendingCoupons(ctx, cutoff) })
}

func (s *Store) InsertPayment(ctx context.Context, p *models.Payment) error {
	return exec(s, func(q *tx) error { return q.InsertPayment(ctx, p) })
}

func (s *Store) GetPaymentForUpdate(ctx context.Context, orderID string) (*models.Payment, error) {
	return call(s, func(q *tx) (*models.Payment, error) { return q.GetPaymentForUpdate(ctx, orderID) })
}

func (s *Store) CompletePayment(ctx context.Context, orderID, paymentID string, at time.Time) (bool, error) {
	return call(s, func(q *tx) (bool, error) { return q.CompletePayment(ctx, orderID, paymentID, at) })
}

func (s *Store) GetPaymentByEnrollment(ctx context.Context, enrollmentID string) (*models.Payment, error) {
	return call(s, func(q *tx) (*models.Payment, error) { return q.GetPaymentByEnrollment(ctx, enrollmentID) })
}

// PendingCoupons returns a copy of the staging rows for inspection in tests.
func (s *Store) PendingCoupons() []models.PendingCoupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PendingCoupon(nil), s.st.pending...)
}

// CouponAdjustments returns a copy of the recorded clamps.
func (s *Store) CouponAdjustments() []models.CouponAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CouponAdjustment(nil), s.st.adjustments...)
}
