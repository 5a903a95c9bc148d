// Package coupons keeps the reward coupon ledger: floor-clamped validation,
// OTP verification on two paths, all-or-nothing redemption and the expiry sweep.
package coupons

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/educatory/backend/internal/documents"
	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/ids"
	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/notifications"
	"github.com/educatory/backend/internal/store"
)

// Verification paths reported by VerifyOTP.
const (
	PathPending    = "pending_coupon"
	PathValidation = "coupon_validation"
)

var one = decimal.NewFromInt(1)

// Policy holds coupon timing and reward rules.
type Policy struct {
	OTPTTL         time.Duration
	ValidationTTL  time.Duration
	MaxOTPAttempts int
	RewardPercent  decimal.Decimal
}

// Quote is the result of validating a coupon against a course amount.
type Quote struct {
	CouponCode     string          `json:"coupon_code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	IsAdjusted     bool            `json:"is_adjusted"`
	CouponType     string          `json:"coupon_type"`
	OTPExpiresAt   time.Time       `json:"otp_expires_at"`
}

// VerifyRequest carries an OTP check. AppliedCoupons are the other codes
// already on the order; EnrollmentID is empty before the enrollment exists.
type VerifyRequest struct {
	CouponCode     string
	OTP            string
	AppliedCoupons []string
	CourseAmount   decimal.Decimal
	EnrollmentID   string
}

// Verification is the result of a successful OTP check.
type Verification struct {
	CouponCode     string          `json:"coupon_code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Path           string          `json:"path"`
	ValidUntil     time.Time       `json:"valid_until"`
}

// Service implements the coupon ledger.
type Service struct {
	store    store.Store
	notifier notifications.Dispatcher
	composer *notifications.Composer
	docs     documents.Generator
	policy   Policy
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a coupon service.
func NewService(st store.Store, notifier notifications.Dispatcher, composer *notifications.Composer, docs documents.Generator, policy Policy, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if docs == nil {
		docs = documents.Noop{}
	}
	if policy.MaxOTPAttempts <= 0 {
		policy.MaxOTPAttempts = 5
	}
	s := &Service{store: st, notifier: notifier, composer: composer, docs: docs, policy: policy, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Discount applies the one-unit price floor: the result is
// min(amount, courseAmount-1), never negative. adjusted reports clamping.
func Discount(amount, courseAmount decimal.Decimal) (discount decimal.Decimal, adjusted bool) {
	ceiling := courseAmount.Sub(one)
	if ceiling.IsNegative() {
		ceiling = decimal.Zero
	}
	if amount.GreaterThan(ceiling) {
		return ceiling, true
	}
	return amount, false
}

// Validate quotes an unused coupon against courseAmount, persists any
// clamping and sends a fresh OTP to the coupon owner.
func (s *Service) Validate(ctx context.Context, code string, courseAmount decimal.Decimal) (*Quote, error) {
	code = normalize(code)
	if code == "" {
		return nil, domain.Validation("coupon code is required")
	}
	if !courseAmount.IsPositive() {
		return nil, domain.Validation("course amount must be positive")
	}
	now := s.now().UTC()
	var (
		coupon *models.Coupon
		quote  *Quote
		otp    string
	)
	err := s.store.InTx(ctx, func(q store.Querier) error {
		c, err := q.GetCouponForUpdate(ctx, code)
		if err != nil {
			return fmt.Errorf("get coupon: %w", err)
		}
		if c == nil || c.IsUsed {
			return domain.NotFound("invalid or already used coupon")
		}
		discount, adjusted := Discount(c.Amount, courseAmount)
		if adjusted {
			stored, err := q.ClampCouponAmount(ctx, code, discount)
			if err != nil {
				return fmt.Errorf("clamp coupon: %w", err)
			}
			discount = stored
			if err := q.InsertCouponAdjustment(ctx, &models.CouponAdjustment{
				CouponCode:     code,
				OriginalAmount: c.Amount,
				AdjustedAmount: discount,
				CourseAmount:   courseAmount,
			}); err != nil {
				return fmt.Errorf("record adjustment: %w", err)
			}
		}
		otp, err = ids.OTP()
		if err != nil {
			return err
		}
		expires := now.Add(s.policy.OTPTTL)
		if err := q.SetCouponOTP(ctx, code, otp, expires); err != nil {
			return fmt.Errorf("set otp: %w", err)
		}
		coupon = c
		quote = &Quote{
			CouponCode:     code,
			DiscountAmount: discount,
			FinalAmount:    courseAmount.Sub(discount),
			IsAdjusted:     adjusted,
			CouponType:     models.ReferrerStudent,
			OTPExpiresAt:   expires,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if quote.IsAdjusted {
		s.logger.Info("coupon clamped to price floor", zap.String("coupon_code", code), zap.String("discount", quote.DiscountAmount.String()))
	}

	msg, err := s.composer.CouponOTP(coupon, otp, quote.DiscountAmount, quote.IsAdjusted, s.policy.OTPTTL)
	if err == nil {
		err = s.notifier.Dispatch(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("coupon otp email", zap.Error(err), zap.String("coupon_code", code))
	}
	return quote, nil
}

var errWrongOTP = errors.New("wrong otp")

// VerifyOTP checks the OTP for an unused coupon. With a known enrollment the
// verification is staged as a pending coupon row; otherwise a coupon-level
// validation window opens. Wrong guesses count against the OTP.
func (s *Service) VerifyOTP(ctx context.Context, req VerifyRequest) (*Verification, error) {
	code := normalize(req.CouponCode)
	if code == "" || req.OTP == "" {
		return nil, domain.Validation("coupon code and otp are required")
	}
	if !req.CourseAmount.IsPositive() {
		return nil, domain.Validation("course amount must be positive")
	}
	now := s.now().UTC()
	var out *Verification
	err := s.store.InTx(ctx, func(q store.Querier) error {
		c, err := q.GetCoupon(ctx, code)
		if err != nil {
			return fmt.Errorf("get coupon: %w", err)
		}
		if c == nil || c.IsUsed || c.OTP == "" || c.OTPExpiresAt == nil || !now.Before(*c.OTPExpiresAt) {
			return domain.InvalidOTP("invalid or expired OTP")
		}
		if subtle.ConstantTimeCompare([]byte(c.OTP), []byte(strings.TrimSpace(req.OTP))) != 1 {
			return errWrongOTP
		}

		v := &Verification{CouponCode: code, DiscountAmount: c.Amount}
		staged := false
		if req.EnrollmentID != "" {
			e, err := q.GetEnrollment(ctx, req.EnrollmentID)
			if err != nil {
				return fmt.Errorf("get enrollment: %w", err)
			}
			if e != nil {
				if err := q.UpsertPendingCoupon(ctx, code, e.EnrollmentID, now); err != nil {
					return fmt.Errorf("stage pending coupon: %w", err)
				}
				staged = true
				v.Path = PathPending
			}
		}
		if !staged {
			if err := q.SetCouponValidation(ctx, code, c.OTP, now.Add(s.policy.ValidationTTL)); err != nil {
				return fmt.Errorf("set validation: %w", err)
			}
			v.Path = PathValidation
		}
		v.ValidUntil = now.Add(s.policy.ValidationTTL)

		others := dedupe(req.AppliedCoupons, code)
		total := c.Amount
		if len(others) > 0 {
			applied, err := q.GetCoupons(ctx, others)
			if err != nil {
				return fmt.Errorf("get applied coupons: %w", err)
			}
			for _, a := range applied {
				if !a.IsUsed {
					total = total.Add(a.Amount)
				}
			}
		}
		v.FinalAmount = decimal.Max(one, req.CourseAmount.Sub(total))
		out = v
		return nil
	})
	if errors.Is(err, errWrongOTP) {
		if rErr := s.store.RecordFailedOTP(ctx, code, s.policy.MaxOTPAttempts); rErr != nil {
			s.logger.Warn("record failed otp", zap.Error(rErr), zap.String("coupon_code", code))
		}
		return nil, domain.InvalidOTP("invalid or expired OTP")
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("coupon verified", zap.String("coupon_code", code), zap.String("path", out.Path))
	return out, nil
}

// MarkUsed redeems every code in one batch inside the caller's transaction.
// Each code needs a pending row for enrollmentID verified within the
// validation window, or an open coupon-level validation; otherwise nothing
// is redeemed. It returns the redeemed coupons with their owners.
func (s *Service) MarkUsed(ctx context.Context, q store.Querier, codes []string, paymentID, enrollmentID string) ([]models.Coupon, error) {
	codes = dedupe(codes, "")
	if len(codes) == 0 {
		return nil, nil
	}
	now := s.now().UTC()

	staged, err := q.PendingCouponCodes(ctx, codes, enrollmentID, now.Add(-s.policy.ValidationTTL))
	if err != nil {
		return nil, fmt.Errorf("pending coupons: %w", err)
	}
	rest := without(codes, staged)
	var validated []string
	if len(rest) > 0 {
		validated, err = q.ValidatedCouponCodes(ctx, rest, now)
		if err != nil {
			return nil, fmt.Errorf("validated coupons: %w", err)
		}
	}
	if missing := without(rest, validated); len(missing) > 0 {
		return nil, domain.VerificationMissing(missing...)
	}

	n, err := q.MarkCouponsUsed(ctx, codes, paymentID, now)
	if err != nil {
		return nil, fmt.Errorf("mark coupons used: %w", err)
	}
	if n != int64(len(codes)) {
		return nil, domain.Conflict("coupon already used")
	}
	if len(staged) > 0 {
		if err := q.MarkPendingCouponsVerified(ctx, staged, enrollmentID, paymentID, now); err != nil {
			return nil, fmt.Errorf("verify pending coupons: %w", err)
		}
	}
	for _, code := range validated {
		if err := q.InsertVerifiedPendingCoupon(ctx, code, enrollmentID, paymentID, now); err != nil {
			return nil, fmt.Errorf("backfill pending coupon: %w", err)
		}
	}
	used, err := q.GetCoupons(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("get used coupons: %w", err)
	}
	return used, nil
}

// RewardAmount is RewardPercent of the course fee rounded to whole units.
func (s *Service) RewardAmount(courseFee decimal.Decimal) decimal.Decimal {
	return courseFee.Mul(s.policy.RewardPercent).Div(decimal.NewFromInt(100)).Round(0)
}

// IssueReward mints the referrer's reward coupon inside the caller's transaction.
func (s *Service) IssueReward(ctx context.Context, q store.Querier, referralCode string, courseFee decimal.Decimal, sourcePaymentID string) (*models.Coupon, error) {
	exists := func(ctx context.Context, code string) (bool, error) {
		c, err := q.GetCoupon(ctx, code)
		return c != nil, err
	}
	code, err := ids.Unique(ctx, func() (string, error) { return ids.CouponCode(s.now()) }, exists)
	if err != nil {
		return nil, fmt.Errorf("generate coupon code: %w", err)
	}
	c := &models.Coupon{
		CouponCode:      code,
		ReferralCode:    referralCode,
		Amount:          s.RewardAmount(courseFee),
		SourcePaymentID: sourcePaymentID,
	}
	if err := q.InsertCoupon(ctx, c); err != nil {
		return nil, err
	}
	withOwner, err := q.GetCoupon(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return withOwner, nil
}

// Sweep clears expired OTP and validation fields and expires stale pending
// rows. It is idempotent.
func (s *Service) Sweep(ctx context.Context) (clearedOTPs, expiredPending int64, err error) {
	now := s.now().UTC()
	clearedOTPs, err = s.store.ClearExpiredCouponOTPs(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("clear expired otps: %w", err)
	}
	expiredPending, err = s.store.ExpirePendingCoupons(ctx, now.Add(-s.policy.ValidationTTL))
	if err != nil {
		return clearedOTPs, 0, fmt.Errorf("expire pending coupons: %w", err)
	}
	return clearedOTPs, expiredPending, nil
}

// NotifyUsage emails each coupon owner that their coupon was redeemed.
func (s *Service) NotifyUsage(ctx context.Context, used []models.Coupon, paymentID string) {
	for i := range used {
		c := &used[i]
		msg, err := s.composer.CouponUsed(c, paymentID)
		if err == nil {
			err = s.notifier.Dispatch(ctx, msg)
		}
		if err != nil {
			s.logger.Warn("coupon used email", zap.Error(err), zap.String("coupon_code", c.CouponCode))
		}
	}
}

// NotifyReward emails the referrer their new coupon with its rendered image.
func (s *Service) NotifyReward(ctx context.Context, c *models.Coupon) {
	var image []byte
	doc, err := s.docs.Render(ctx, documents.KindCoupon, documents.CouponRecord(c, s.now()))
	switch {
	case err == nil:
		image = doc.Content
	case !errors.Is(err, documents.ErrDisabled):
		s.logger.Warn("render coupon image", zap.Error(err), zap.String("coupon_code", c.CouponCode))
	}
	msg, err := s.composer.CouponEarned(c, image)
	if err == nil {
		err = s.notifier.Dispatch(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("coupon earned email", zap.Error(err), zap.String("coupon_code", c.CouponCode))
	}
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// dedupe normalizes codes and drops blanks, duplicates and skip.
func dedupe(codes []string, skip string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = normalize(c)
		if c == "" || c == skip || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func without(codes, drop []string) []string {
	if len(drop) == 0 {
		return codes
	}
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var out []string
	for _, c := range codes {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}
