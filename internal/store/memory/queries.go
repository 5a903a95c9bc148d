package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/store"
)

// tx implements store.Querier directly on a state. Callers hold Store.mu.
type tx struct {
	st  *state
	now func() time.Time
}

var _ store.Querier = (*tx)(nil)

func errForeignKey(table, key string) error {
	return fmt.Errorf("%s: foreign key %q not found", table, key)
}

func (q *tx) NextSequence(_ context.Context, name string) (int64, error) {
	q.st.sequences[name]++
	return q.st.sequences[name], nil
}

// Enrollments

func (q *tx) LockCourse(context.Context, string) error { return nil }

func matches(e models.Enrollment, m store.IdentityMatch) bool {
	return (m.Email != "" && e.Email == m.Email) ||
		(m.Phone != "" && e.Phone == m.Phone) ||
		(m.NationalID != "" && e.NationalID == m.NationalID)
}

func (q *tx) FindEnrollmentsInCourse(_ context.Context, m store.IdentityMatch, courseID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, id := range q.st.enrollmentOrder {
		e := q.st.enrollments[id]
		if e.CourseID == courseID && matches(e, m) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (q *tx) HasCompletedEnrollmentElsewhere(_ context.Context, m store.IdentityMatch, courseID string) (bool, error) {
	for _, e := range q.st.enrollments {
		if e.CourseID != courseID && e.Status == models.EnrollmentStatusCompleted && matches(e, m) {
			return true, nil
		}
	}
	return false, nil
}

func (q *tx) InsertEnrollment(_ context.Context, e *models.Enrollment) error {
	if _, ok := q.st.enrollments[e.EnrollmentID]; ok {
		return domain.ConstraintViolation("enrollments_enrollment_id_key", nil)
	}
	now := q.now()
	e.ID = q.st.id()
	e.CreatedAt, e.UpdatedAt = now, now
	q.st.enrollments[e.EnrollmentID] = *e
	q.st.enrollmentOrder = append(q.st.enrollmentOrder, e.EnrollmentID)
	return nil
}

func (q *tx) UpdateEnrollmentBasics(_ context.Context, e *models.Enrollment) error {
	cur, ok := q.st.enrollments[e.EnrollmentID]
	if !ok || cur.Status != models.EnrollmentStatusPending {
		return fmt.Errorf("update enrollment: no pending enrollment %s", e.EnrollmentID)
	}
	cur.FirstName, cur.LastName, cur.Email, cur.Phone, cur.NationalID = e.FirstName, e.LastName, e.Email, e.Phone, e.NationalID
	cur.Address, cur.City, cur.District, cur.State, cur.PinCode = e.Address, e.City, e.District, e.State, e.PinCode
	cur.CourseName, cur.CourseFee, cur.ReferralCode, cur.ExistingStudent = e.CourseName, e.CourseFee, e.ReferralCode, e.ExistingStudent
	cur.UpdatedAt = q.now()
	q.st.enrollments[e.EnrollmentID] = cur
	e.UpdatedAt = cur.UpdatedAt
	return nil
}

func (q *tx) GetEnrollment(_ context.Context, enrollmentID string) (*models.Enrollment, error) {
	e, ok := q.st.enrollments[enrollmentID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (q *tx) GetEnrollmentForUpdate(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return q.GetEnrollment(ctx, enrollmentID)
}

func (q *tx) FindEnrollment(_ context.Context, idOrEmail, courseID string) (*models.Enrollment, error) {
	for i := len(q.st.enrollmentOrder) - 1; i >= 0; i-- {
		e := q.st.enrollments[q.st.enrollmentOrder[i]]
		if (e.EnrollmentID == idOrEmail || e.Email == idOrEmail) && (courseID == "" || e.CourseID == courseID) {
			return &e, nil
		}
	}
	return nil, nil
}

func (q *tx) TransitionEnrollment(_ context.Context, enrollmentID, from, to string) (bool, error) {
	e, ok := q.st.enrollments[enrollmentID]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	e.UpdatedAt = q.now()
	q.st.enrollments[enrollmentID] = e
	return true, nil
}

func (q *tx) CompleteEnrollment(_ context.Context, enrollmentID string, details models.EnrollmentDetails) (bool, error) {
	e, ok := q.st.enrollments[enrollmentID]
	if !ok || e.Status != models.EnrollmentStatusPaymentCompleted {
		return false, nil
	}
	e.Details = details
	e.Status = models.EnrollmentStatusCompleted
	e.UpdatedAt = q.now()
	q.st.enrollments[enrollmentID] = e
	return true, nil
}

func (q *tx) InsertInvoice(_ context.Context, inv *models.Invoice) error {
	if _, ok := q.st.enrollments[inv.EnrollmentID]; !ok {
		return errForeignKey("invoices", inv.EnrollmentID)
	}
	if _, ok := q.st.invoices[inv.EnrollmentID]; ok {
		return domain.ConstraintViolation("invoices_enrollment_id_key", nil)
	}
	for _, other := range q.st.invoices {
		if other.InvoiceNumber == inv.InvoiceNumber || other.FormattedNumber == inv.FormattedNumber {
			return domain.ConstraintViolation("invoices_invoice_number_key", nil)
		}
	}
	inv.ID = q.st.id()
	inv.CreatedAt = q.now()
	q.st.invoices[inv.EnrollmentID] = *inv
	return nil
}

func (q *tx) GetInvoice(_ context.Context, enrollmentID string) (*models.Invoice, error) {
	inv, ok := q.st.invoices[enrollmentID]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

// Referrals

func (q *tx) ReferralCodeExists(_ context.Context, code string) (bool, error) {
	_, student := q.st.referrals[code]
	_, teacher := q.st.teachers[code]
	return student || teacher, nil
}

func (q *tx) InsertReferral(_ context.Context, r *models.Referral) error {
	if _, ok := q.st.enrollments[r.EnrollmentID]; !ok {
		return errForeignKey("referrals", r.EnrollmentID)
	}
	if _, ok := q.st.referrals[r.ReferralCode]; ok {
		return domain.ConstraintViolation("referrals_referral_code_key", nil)
	}
	r.ID = q.st.id()
	r.CreatedAt = q.now()
	q.st.referrals[r.ReferralCode] = *r
	return nil
}

func (q *tx) withOwner(r models.Referral) *models.Referral {
	if e, ok := q.st.enrollments[r.EnrollmentID]; ok {
		r.OwnerName = e.FullName()
		r.OwnerEmail = e.Email
	}
	return &r
}

func (q *tx) GetActiveReferral(_ context.Context, code string) (*models.Referral, error) {
	r, ok := q.st.referrals[code]
	if !ok || r.Status != models.ReferralStatusActive {
		return nil, nil
	}
	return q.withOwner(r), nil
}

func (q *tx) GetReferralByEnrollment(_ context.Context, enrollmentID string) (*models.Referral, error) {
	var found *models.Referral
	for _, r := range q.st.referrals {
		if r.EnrollmentID == enrollmentID && (found == nil || r.ID > found.ID) {
			found = q.withOwner(r)
		}
	}
	return found, nil
}

func (q *tx) IncrementReferralUsage(_ context.Context, code string) error {
	if r, ok := q.st.referrals[code]; ok {
		r.TimesUsed++
		q.st.referrals[code] = r
	}
	return nil
}

func (q *tx) InsertReferralUse(_ context.Context, u *models.ReferralUse) (bool, error) {
	if _, ok := q.st.referrals[u.ReferralCode]; !ok {
		return false, errForeignKey("referral_uses", u.ReferralCode)
	}
	if _, ok := q.st.enrollments[u.ReferredEnrollmentID]; !ok {
		return false, errForeignKey("referral_uses", u.ReferredEnrollmentID)
	}
	for _, existing := range q.st.referralUses {
		if existing.ReferralCode == u.ReferralCode && existing.ReferredEnrollmentID == u.ReferredEnrollmentID {
			return false, nil
		}
	}
	u.ID = q.st.id()
	u.CreatedAt = q.now()
	q.st.referralUses = append(q.st.referralUses, *u)
	return true, nil
}

func (q *tx) GetApprovedReferralUse(_ context.Context, referredEnrollmentID string) (*models.ReferralUse, error) {
	for _, u := range q.st.referralUses {
		if u.ReferredEnrollmentID == referredEnrollmentID && u.ValidationStatus == models.ReferralUseApproved {
			return &u, nil
		}
	}
	return nil, nil
}

func (q *tx) ListReferralUses(_ context.Context, status string) ([]models.ReferralUse, error) {
	var out []models.ReferralUse
	for i := len(q.st.referralUses) - 1; i >= 0; i-- {
		u := q.st.referralUses[i]
		if status == "" || u.ValidationStatus == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (q *tx) ReviewReferralUse(_ context.Context, id int64, status, reason string) (*models.ReferralUse, error) {
	for i, u := range q.st.referralUses {
		if u.ID == id && u.ValidationStatus == models.ReferralUsePending {
			q.st.referralUses[i].ValidationStatus = status
			q.st.referralUses[i].RejectionReason = reason
			out := q.st.referralUses[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (q *tx) InsertTeacher(_ context.Context, t *models.TeacherReferral) error {
	if _, ok := q.st.teachers[t.ReferralCode]; ok {
		return domain.ConstraintViolation("teacher_referrals_referral_code_key", nil)
	}
	for _, other := range q.st.teachers {
		if other.Email == t.Email {
			return domain.ConstraintViolation("teacher_referrals_email_key", nil)
		}
	}
	now := q.now()
	t.ID = q.st.id()
	t.CreatedAt, t.UpdatedAt = now, now
	q.st.teachers[t.ReferralCode] = *t
	return nil
}

func (q *tx) GetActiveTeacher(_ context.Context, code string) (*models.TeacherReferral, error) {
	t, ok := q.st.teachers[code]
	if !ok || t.Status != models.ReferralStatusActive {
		return nil, nil
	}
	return &t, nil
}

func (q *tx) InsertTeacherReferralUse(_ context.Context, u *models.TeacherReferralUse) (bool, error) {
	if _, ok := q.st.teachers[u.ReferralCode]; !ok {
		return false, errForeignKey("teacher_referral_uses", u.ReferralCode)
	}
	if _, ok := q.st.enrollments[u.EnrollmentID]; !ok {
		return false, errForeignKey("teacher_referral_uses", u.EnrollmentID)
	}
	for _, existing := range q.st.teacherUses {
		if existing.ReferralCode == u.ReferralCode && existing.EnrollmentID == u.EnrollmentID {
			return false, nil
		}
	}
	u.ID = q.st.id()
	u.CreatedAt = q.now()
	q.st.teacherUses = append(q.st.teacherUses, *u)
	return true, nil
}

func (q *tx) ConfirmTeacherReferralUse(_ context.Context, enrollmentID string, at time.Time) (*models.TeacherReferralUse, error) {
	var first *models.TeacherReferralUse
	for i, u := range q.st.teacherUses {
		if u.EnrollmentID != enrollmentID || u.ConfirmedAt != nil {
			continue
		}
		stamp := at
		q.st.teacherUses[i].ConfirmedAt = &stamp
		if first == nil {
			confirmed := q.st.teacherUses[i]
			first = &confirmed
		}
	}
	return first, nil
}

func (q *tx) ListTeacherStudents(_ context.Context, code string) ([]models.ReferredStudent, error) {
	var out []models.ReferredStudent
	for _, u := range q.st.teacherUses {
		if u.ReferralCode != code {
			continue
		}
		e := q.st.enrollments[u.EnrollmentID]
		out = append(out, models.ReferredStudent{
			EnrollmentID:     e.EnrollmentID,
			StudentName:      e.FullName(),
			CourseName:       e.CourseName,
			Status:           e.Status,
			CommissionAmount: u.CommissionAmount,
			PaidStatus:       u.PaidStatus,
			ReferralDate:     u.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReferralDate.After(out[j].ReferralDate) })
	return out, nil
}

func (q *tx) MarkCommissionPaid(_ context.Context, id int64, at time.Time) (bool, error) {
	for i, u := range q.st.teacherUses {
		if u.ID == id && u.PaidStatus == models.CommissionPending && u.ConfirmedAt != nil {
			stamp := at
			q.st.teacherUses[i].PaidStatus = models.CommissionPaid
			q.st.teacherUses[i].PaidAt = &stamp
			return true, nil
		}
	}
	return false, nil
}

// Coupons

func (q *tx) InsertCoupon(_ context.Context, c *models.Coupon) error {
	if _, ok := q.st.referrals[c.ReferralCode]; !ok {
		return errForeignKey("coupons", c.ReferralCode)
	}
	if _, ok := q.st.coupons[c.CouponCode]; ok {
		return domain.ConstraintViolation("coupons_coupon_code_key", nil)
	}
	c.ID = q.st.id()
	c.CreatedAt = q.now()
	// Only the inserted columns are kept; the rest start at their defaults.
	q.st.coupons[c.CouponCode] = models.Coupon{
		ID:              c.ID,
		CouponCode:      c.CouponCode,
		ReferralCode:    c.ReferralCode,
		Amount:          c.Amount,
		SourcePaymentID: c.SourcePaymentID,
		CreatedAt:       c.CreatedAt,
	}
	return nil
}

func (q *tx) couponWithOwner(c models.Coupon) *models.Coupon {
	if r, ok := q.st.referrals[c.ReferralCode]; ok {
		if e, ok := q.st.enrollments[r.EnrollmentID]; ok {
			c.OwnerName = e.FullName()
			c.OwnerEmail = e.Email
		}
	}
	return &c
}

func (q *tx) GetCoupon(_ context.Context, code string) (*models.Coupon, error) {
	c, ok := q.st.coupons[code]
	if !ok {
		return nil, nil
	}
	return q.couponWithOwner(c), nil
}

func (q *tx) GetCoupons(_ context.Context, codes []string) ([]models.Coupon, error) {
	var out []models.Coupon
	for _, c := range q.st.coupons {
		if contains(codes, c.CouponCode) {
			out = append(out, *q.couponWithOwner(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *tx) GetCouponForUpdate(ctx context.Context, code string) (*models.Coupon, error) {
	return q.GetCoupon(ctx, code)
}

func (q *tx) ClampCouponAmount(_ context.Context, code string, max decimal.Decimal) (decimal.Decimal, error) {
	c, ok := q.st.coupons[code]
	if !ok {
		return decimal.Zero, domain.NotFound("coupon not found")
	}
	c.Amount = decimal.Min(c.Amount, max)
	q.st.coupons[code] = c
	return c.Amount, nil
}

func (q *tx) InsertCouponAdjustment(_ context.Context, a *models.CouponAdjustment) error {
	a.CreatedAt = q.now()
	q.st.adjustments = append(q.st.adjustments, *a)
	return nil
}

func (q *tx) SetCouponOTP(_ context.Context, code, otp string, expiresAt time.Time) error {
	if c, ok := q.st.coupons[code]; ok && !c.IsUsed {
		c.OTP = otp
		c.OTPExpiresAt = &expiresAt
		c.OTPAttempts = 0
		q.st.coupons[code] = c
	}
	return nil
}

func (q *tx) RecordFailedOTP(_ context.Context, code string, limit int) error {
	if c, ok := q.st.coupons[code]; ok {
		c.OTPAttempts++
		if c.OTPAttempts >= limit {
			c.OTP = ""
			c.OTPExpiresAt = nil
		}
		q.st.coupons[code] = c
	}
	return nil
}

func (q *tx) SetCouponValidation(_ context.Context, code, otp string, expiresAt time.Time) error {
	if c, ok := q.st.coupons[code]; ok && !c.IsUsed {
		c.ValidationOTP = otp
		c.ValidationExpiresAt = &expiresAt
		q.st.coupons[code] = c
	}
	return nil
}

func (q *tx) ValidatedCouponCodes(_ context.Context, codes []string, now time.Time) ([]string, error) {
	var out []string
	for _, code := range codes {
		c, ok := q.st.coupons[code]
		if ok && !c.IsUsed && c.ValidationOTP != "" && c.ValidationExpiresAt != nil && c.ValidationExpiresAt.After(now) {
			out = append(out, code)
		}
	}
	return out, nil
}

func (q *tx) MarkCouponsUsed(_ context.Context, codes []string, paymentID string, at time.Time) (int64, error) {
	var n int64
	for _, code := range codes {
		c, ok := q.st.coupons[code]
		if !ok || c.IsUsed {
			continue
		}
		stamp := at
		c.IsUsed = true
		c.UsedAt = &stamp
		c.TransactionID = paymentID
		c.OTP, c.OTPExpiresAt = "", nil
		c.ValidationOTP, c.ValidationExpiresAt = "", nil
		q.st.coupons[code] = c
		n++
	}
	return n, nil
}

func (q *tx) ClearExpiredCouponOTPs(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for code, c := range q.st.coupons {
		changed := false
		if c.OTPExpiresAt != nil && c.OTPExpiresAt.Before(now) {
			c.OTP, c.OTPExpiresAt = "", nil
			changed = true
		}
		if c.ValidationExpiresAt != nil && c.ValidationExpiresAt.Before(now) {
			c.ValidationOTP, c.ValidationExpiresAt = "", nil
			changed = true
		}
		if changed {
			q.st.coupons[code] = c
			n++
		}
	}
	return n, nil
}

func (q *tx) findPending(code, enrollmentID string) int {
	for i, p := range q.st.pending {
		if p.CouponCode == code && p.EnrollmentID == enrollmentID {
			return i
		}
	}
	return -1
}

func (q *tx) UpsertPendingCoupon(_ context.Context, code, enrollmentID string, at time.Time) error {
	if _, ok := q.st.coupons[code]; !ok {
		return errForeignKey("pending_coupons", code)
	}
	if _, ok := q.st.enrollments[enrollmentID]; !ok {
		return errForeignKey("pending_coupons", enrollmentID)
	}
	stamp := at
	if i := q.findPending(code, enrollmentID); i >= 0 {
		p := &q.st.pending[i]
		if p.Status == models.PendingCouponVerified {
			return nil
		}
		p.VerificationTime = at
		p.Status = models.PendingCouponPending
		p.Attempts++
		p.LastAttemptAt = &stamp
		p.UpdatedAt = at
		return nil
	}
	q.st.pending = append(q.st.pending, models.PendingCoupon{
		ID:               q.st.id(),
		CouponCode:       code,
		EnrollmentID:     enrollmentID,
		VerificationTime: at,
		Status:           models.PendingCouponPending,
		Attempts:         1,
		LastAttemptAt:    &stamp,
		CreatedAt:        q.now(),
		UpdatedAt:        at,
	})
	return nil
}

func (q *tx) PendingCouponCodes(_ context.Context, codes []string, enrollmentID string, since time.Time) ([]string, error) {
	var out []string
	for _, p := range q.st.pending {
		if p.EnrollmentID == enrollmentID && p.Status == models.PendingCouponPending &&
			p.VerificationTime.After(since) && contains(codes, p.CouponCode) && !contains(out, p.CouponCode) {
			out = append(out, p.CouponCode)
		}
	}
	return out, nil
}

func (q *tx) MarkPendingCouponsVerified(_ context.Context, codes []string, enrollmentID, paymentID string, at time.Time) error {
	for i, p := range q.st.pending {
		if p.EnrollmentID == enrollmentID && p.Status == models.PendingCouponPending && contains(codes, p.CouponCode) {
			q.st.pending[i].Status = models.PendingCouponVerified
			q.st.pending[i].PaymentID = paymentID
			q.st.pending[i].UpdatedAt = at
		}
	}
	return nil
}

func (q *tx) InsertVerifiedPendingCoupon(_ context.Context, code, enrollmentID, paymentID string, at time.Time) error {
	if _, ok := q.st.enrollments[enrollmentID]; !ok {
		return errForeignKey("pending_coupons", enrollmentID)
	}
	if i := q.findPending(code, enrollmentID); i >= 0 {
		q.st.pending[i].Status = models.PendingCouponVerified
		q.st.pending[i].PaymentID = paymentID
		q.st.pending[i].UpdatedAt = at
		return nil
	}
	stamp := at
	q.st.pending = append(q.st.pending, models.PendingCoupon{
		ID:               q.st.id(),
		CouponCode:       code,
		EnrollmentID:     enrollmentID,
		VerificationTime: at,
		Status:           models.PendingCouponVerified,
		PaymentID:        paymentID,
		Attempts:         1,
		LastAttemptAt:    &stamp,
		CreatedAt:        at,
		UpdatedAt:        at,
	})
	return nil
}

func (q *tx) ExpirePendingCoupons(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for i, p := range q.st.pending {
		if p.Status == models.PendingCouponPending && p.VerificationTime.Before(cutoff) {
			q.st.pending[i].Status = models.PendingCouponExpired
			q.st.pending[i].UpdatedAt = q.now()
			n++
		}
	}
	return n, nil
}

// Payments

func (q *tx) InsertPayment(_ context.Context, p *models.Payment) error {
	if _, ok := q.st.enrollments[p.EnrollmentID]; !ok {
		return errForeignKey("payments", p.EnrollmentID)
	}
	if _, ok := q.st.payments[p.GatewayOrderID]; ok {
		return domain.ConstraintViolation("payments_gateway_order_id_key", nil)
	}
	now := q.now()
	p.ID = q.st.id()
	p.CreatedAt, p.UpdatedAt = now, now
	q.st.payments[p.GatewayOrderID] = *p
	return nil
}

func (q *tx) GetPaymentForUpdate(_ context.Context, orderID string) (*models.Payment, error) {
	p, ok := q.st.payments[orderID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (q *tx) CompletePayment(_ context.Context, orderID, paymentID string, at time.Time) (bool, error) {
	p, ok := q.st.payments[orderID]
	if !ok || p.Status == models.PaymentStatusCompleted {
		return false, nil
	}
	for _, other := range q.st.payments {
		if other.GatewayOrderID != orderID && paymentID != "" && other.GatewayPaymentID == paymentID {
			return false, domain.ConstraintViolation("payments_gateway_payment_id_key", nil)
		}
	}
	p.Status = models.PaymentStatusCompleted
	p.GatewayPaymentID = paymentID
	p.UpdatedAt = at
	q.st.payments[orderID] = p
	return true, nil
}

func (q *tx) GetPaymentByEnrollment(_ context.Context, enrollmentID string) (*models.Payment, error) {
	var found *models.Payment
	for _, p := range q.st.payments {
		if p.EnrollmentID == enrollmentID && (found == nil || p.ID > found.ID) {
			p := p
			found = &p
		}
	}
	return found, nil
}
