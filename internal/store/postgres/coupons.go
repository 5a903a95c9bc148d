package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/models"
)

const couponSelect = `SELECT c.id, c.coupon_code, c.referral_code, c.amount, c.is_used,
		COALESCE(c.source_payment_id, ''), COALESCE(c.transaction_id, ''),
		COALESCE(c.otp, ''), c.otp_expires_at, c.otp_attempts, COALESCE(c.validation_otp, ''), c.validation_expires_at,
		c.used_at, c.created_at, COALESCE(TRIM(e.first_name || ' ' || e.last_name), ''), COALESCE(e.email, '')
	FROM coupons c
	LEFT JOIN referrals r ON r.referral_code = c.referral_code
	LEFT JOIN enrollments e ON e.enrollment_id = r.enrollment_id`

func scanCoupon(row pgx.Row) (*models.Coupon, error) {
	var c models.Coupon
	err := row.Scan(&c.ID, &c.CouponCode, &c.ReferralCode, &c.Amount, &c.IsUsed, &c.SourcePaymentID, &c.TransactionID,
		&c.OTP, &c.OTPExpiresAt, &c.OTPAttempts, &c.ValidationOTP, &c.ValidationExpiresAt,
		&c.UsedAt, &c.CreatedAt, &c.OwnerName, &c.OwnerEmail)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertCoupon stores a minted coupon. A duplicate code yields a constraint violation.
func (q *queries) InsertCoupon(ctx context.Context, c *models.Coupon) error {
	const query = `INSERT INTO coupons (coupon_code, referral_code, amount, source_payment_id)
		VALUES ($1, $2, $3, NULLIF($4, '')) RETURNING id, created_at`
	err := q.db.QueryRow(ctx, query, c.CouponCode, c.ReferralCode, c.Amount, c.SourcePaymentID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert coupon: %w", mapErr(err))
	}
	return nil
}

// GetCoupon returns a coupon with its owner.
func (q *queries) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, couponSelect+` WHERE c.coupon_code = $1`, code))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCouponForUpdate locks the coupon row until the transaction ends.
func (q *queries) GetCouponForUpdate(ctx context.Context, code string) (*models.Coupon, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, couponSelect+` WHERE c.coupon_code = $1 FOR UPDATE OF c`, code))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCoupons returns the coupons among codes that exist.
func (q *queries) GetCoupons(ctx context.Context, codes []string) ([]models.Coupon, error) {
	rows, err := q.db.Query(ctx, couponSelect+` WHERE c.coupon_code = ANY($1) ORDER BY c.id`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// ClampCouponAmount lowers amount to max and returns the stored amount;
// concurrent clamps converge on the smallest.
func (q *queries) ClampCouponAmount(ctx context.Context, code string, max decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := q.db.QueryRow(ctx, `UPDATE coupons SET amount = LEAST(amount, $2) WHERE coupon_code = $1 RETURNING amount`,
		code, max).Scan(&amount)
	if noRows(err) {
		return decimal.Zero, domain.NotFound("coupon not found")
	}
	return amount, err
}

// InsertCouponAdjustment records a clamp.
func (q *queries) InsertCouponAdjustment(ctx context.Context, a *models.CouponAdjustment) error {
	const query = `INSERT INTO coupon_adjustments (coupon_code, original_amount, adjusted_amount, course_amount)
		VALUES ($1, $2, $3, $4) RETURNING created_at`
	return q.db.QueryRow(ctx, query, a.CouponCode, a.OriginalAmount, a.AdjustedAmount, a.CourseAmount).Scan(&a.CreatedAt)
}

// SetCouponOTP stores a new OTP on an unused coupon.
func (q *queries) SetCouponOTP(ctx context.Context, code, otp string, expiresAt time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE coupons SET otp = $2, otp_expires_at = $3, otp_attempts = 0
		WHERE coupon_code = $1 AND is_used = FALSE`, code, otp, expiresAt)
	return err
}

// RecordFailedOTP counts a wrong OTP and burns the OTP at limit.
func (q *queries) RecordFailedOTP(ctx context.Context, code string, limit int) error {
	_, err := q.db.Exec(ctx, `UPDATE coupons SET
			otp_attempts = otp_attempts + 1,
			otp = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp END,
			otp_expires_at = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_expires_at END
		WHERE coupon_code = $1`, code, limit)
	return err
}

// SetCouponValidation opens the coupon-level validation window.
func (q *queries) SetCouponValidation(ctx context.Context, code, otp string, expiresAt time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE coupons SET validation_otp = $2, validation_expires_at = $3
		WHERE coupon_code = $1 AND is_used = FALSE`, code, otp, expiresAt)
	return err
}

// ValidatedCouponCodes locks and returns unused coupons with an open validation window.
func (q *queries) ValidatedCouponCodes(ctx context.Context, codes []string, now time.Time) ([]string, error) {
	const query = `SELECT coupon_code FROM coupons
		WHERE coupon_code = ANY($1) AND is_used = FALSE
		  AND validation_otp IS NOT NULL AND validation_expires_at > $2
		FOR UPDATE`
	return q.codes(ctx, query, codes, now)
}

// MarkCouponsUsed redeems the unused coupons among codes.
func (q *queries) MarkCouponsUsed(ctx context.Context, codes []string, paymentID string, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE coupons SET is_used = TRUE, used_at = $3, transaction_id = $2,
			otp = NULL, otp_expires_at = NULL, validation_otp = NULL, validation_expires_at = NULL
		WHERE coupon_code = ANY($1) AND is_used = FALSE`, codes, paymentID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClearExpiredCouponOTPs nulls OTP and validation state past its expiry.
func (q *queries) ClearExpiredCouponOTPs(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE coupons SET
			otp = CASE WHEN otp_expires_at < $1 THEN NULL ELSE otp END,
			otp_expires_at = CASE WHEN otp_expires_at < $1 THEN NULL ELSE otp_expires_at END,
			validation_otp = CASE WHEN validation_expires_at < $1 THEN NULL ELSE validation_otp END,
			validation_expires_at = CASE WHEN validation_expires_at < $1 THEN NULL ELSE validation_expires_at END
		WHERE otp_expires_at < $1 OR validation_expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertPendingCoupon stages a verified OTP; verified rows are left untouched.
func (q *queries) UpsertPendingCoupon(ctx context.Context, code, enrollmentID string, at time.Time) error {
	_, err := q.db.Exec(ctx, `INSERT INTO pending_coupons
			(coupon_code, enrollment_id, verification_time, status, attempts, last_attempt_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 1, $3, $3)
		ON CONFLICT (coupon_code, enrollment_id) DO UPDATE SET
			verification_time = EXCLUDED.verification_time,
			status = 'pending',
			attempts = pending_coupons.attempts + 1,
			last_attempt_at = EXCLUDED.last_attempt_at,
			updated_at = EXCLUDED.updated_at
		WHERE pending_coupons.status <> 'verified'`, code, enrollmentID, at)
	return mapErr(err)
}

// PendingCouponCodes returns codes staged for the enrollment after since.
func (q *queries) PendingCouponCodes(ctx context.Context, codes []string, enrollmentID string, since time.Time) ([]string, error) {
	const query = `SELECT DISTINCT coupon_code FROM pending_coupons
		WHERE coupon_code = ANY($1) AND enrollment_id = $2 AND status = 'pending' AND verification_time > $3`
	return q.codes(ctx, query, codes, enrollmentID, since)
}

// MarkPendingCouponsVerified links staged rows to the payment.
func (q *queries) MarkPendingCouponsVerified(ctx context.Context, codes []string, enrollmentID, paymentID string, at time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE pending_coupons SET status = 'verified', payment_id = $3, updated_at = $4
		WHERE coupon_code = ANY($1) AND enrollment_id = $2 AND status = 'pending'`, codes, enrollmentID, paymentID, at)
	return err
}

// InsertVerifiedPendingCoupon back-fills the audit row for a coupon redeemed through the coupon-level window.
func (q *queries) InsertVerifiedPendingCoupon(ctx context.Context, code, enrollmentID, paymentID string, at time.Time) error {
	_, err := q.db.Exec(ctx, `INSERT INTO pending_coupons
			(coupon_code, enrollment_id, verification_time, status, payment_id, attempts, last_attempt_at, updated_at)
		VALUES ($1, $2, $4, 'verified', $3, 1, $4, $4)
		ON CONFLICT (coupon_code, enrollment_id) DO UPDATE SET
			status = 'verified', payment_id = EXCLUDED.payment_id, updated_at = EXCLUDED.updated_at`,
		code, enrollmentID, paymentID, at)
	return mapErr(err)
}

// ExpirePendingCoupons expires staged rows older than cutoff.
func (q *queries) ExpirePendingCoupons(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE pending_coupons SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND verification_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *queries) codes(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
