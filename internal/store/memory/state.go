package memory

import (
	"github.com/educatory/backend/internal/models"
)

// state is the full dataset. Values are stored by value so clone is a plain copy.
type state struct {
	nextID int64

	sequences       map[string]int64
	enrollments     map[string]models.Enrollment
	enrollmentOrder []string
	invoices        map[string]models.Invoice
	referrals       map[string]models.Referral
	referralUses    []models.ReferralUse
	teachers        map[string]models.TeacherReferral
	teacherUses     []models.TeacherReferralUse
	coupons         map[string]models.Coupon
	adjustments     []models.CouponAdjustment
	pending         []models.PendingCoupon
	payments        map[string]models.Payment
}

func newState() *state {
	return &state{
		sequences:   make(map[string]int64),
		enrollments: make(map[string]models.Enrollment),
		invoices:    make(map[string]models.Invoice),
		referrals:   make(map[string]models.Referral),
		teachers:    make(map[string]models.TeacherReferral),
		coupons:     make(map[string]models.Coupon),
		payments:    make(map[string]models.Payment),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) clone() *state {
	return &state{
		nextID:          s.nextID,
		sequences:       copyMap(s.sequences),
		enrollments:     copyMap(s.enrollments),
		enrollmentOrder: append([]string(nil), s.enrollmentOrder...),
		invoices:        copyMap(s.invoices),
		referrals:       copyMap(s.referrals),
		referralUses:    append([]models.ReferralUse(nil), s.referralUses...),
		teachers:        copyMap(s.teachers),
		teacherUses:     append([]models.TeacherReferralUse(nil), s.teacherUses...),
		coupons:         copyMap(s.coupons),
		adjustments:     append([]models.CouponAdjustment(nil), s.adjustments...),
		pending:         append([]models.PendingCoupon(nil), s.pending...),
		payments:        copyMap(s.payments),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
