package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/educatory/backend/internal/models"
)

// ReferralCodeExists checks student and teacher codes together since they share one namespace.
func (q *queries) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM referrals WHERE referral_code = $1)
		OR EXISTS (SELECT 1 FROM teacher_referrals WHERE referral_code = $1)`
	var ok bool
	err := q.db.QueryRow(ctx, query, code).Scan(&ok)
	return ok, err
}

// InsertReferral stores a newly issued student referral code.
func (q *queries) InsertReferral(ctx context.Context, r *models.Referral) error {
	const query = `INSERT INTO referrals (enrollment_id, referral_code, times_used, status)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	if err := q.db.QueryRow(ctx, query, r.EnrollmentID, r.ReferralCode, r.TimesUsed, r.Status).Scan(&r.ID, &r.CreatedAt); err != nil {
		return fmt.Errorf("insert referral: %w", mapErr(err))
	}
	return nil
}

const referralSelect = `SELECT r.id, r.enrollment_id, r.referral_code, r.times_used, r.status, r.created_at,
		TRIM(e.first_name || ' ' || e.last_name), e.email
	FROM referrals r JOIN enrollments e ON e.enrollment_id = r.enrollment_id`

func (q *queries) getReferral(ctx context.Context, query string, arg any) (*models.Referral, error) {
	var r models.Referral
	err := q.db.QueryRow(ctx, query, arg).Scan(&r.ID, &r.EnrollmentID, &r.ReferralCode, &r.TimesUsed, &r.Status, &r.CreatedAt,
		&r.OwnerName, &r.OwnerEmail)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetActiveReferral returns an active student referral with its owner.
func (q *queries) GetActiveReferral(ctx context.Context, code string) (*models.Referral, error) {
	return q.getReferral(ctx, referralSelect+` WHERE r.referral_code = $1 AND r.status = 'active'`, code)
}

// GetReferralByEnrollment returns the referral code owned by an enrollment.
func (q *queries) GetReferralByEnrollment(ctx context.Context, enrollmentID string) (*models.Referral, error) {
	return q.getReferral(ctx, referralSelect+` WHERE r.enrollment_id = $1 ORDER BY r.created_at DESC LIMIT 1`, enrollmentID)
}

// IncrementReferralUsage bumps times_used.
func (q *queries) IncrementReferralUsage(ctx context.Context, code string) error {
	_, err := q.db.Exec(ctx, `UPDATE referrals SET times_used = times_used + 1 WHERE referral_code = $1`, code)
	return err
}

// InsertReferralUse records a redemption; the first write for a (code, enrollment) pair wins.
func (q *queries) InsertReferralUse(ctx context.Context, u *models.ReferralUse) (bool, error) {
	const query = `INSERT INTO referral_uses (referral_code, referred_enrollment_id, validation_status)
		VALUES ($1, $2, $3)
		ON CONFLICT (referral_code, referred_enrollment_id) DO NOTHING
		RETURNING id, created_at`
	err := q.db.QueryRow(ctx, query, u.ReferralCode, u.ReferredEnrollmentID, u.ValidationStatus).Scan(&u.ID, &u.CreatedAt)
	if noRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert referral use: %w", mapErr(err))
	}
	return true, nil
}

const referralUseColumns = `id, referral_code, referred_enrollment_id, validation_status, COALESCE(rejection_reason, ''), created_at`

// GetApprovedReferralUse returns the approved redemption for a referred enrollment.
func (q *queries) GetApprovedReferralUse(ctx context.Context, referredEnrollmentID string) (*models.ReferralUse, error) {
	query := `SELECT ` + referralUseColumns + ` FROM referral_uses
		WHERE referred_enrollment_id = $1 AND validation_status = 'approved'
		ORDER BY created_at, id LIMIT 1`
	var u models.ReferralUse
	err := q.db.QueryRow(ctx, query, referredEnrollmentID).Scan(&u.ID, &u.ReferralCode, &u.ReferredEnrollmentID,
		&u.ValidationStatus, &u.RejectionReason, &u.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListReferralUses returns uses with the given status (all when empty), newest first.
func (q *queries) ListReferralUses(ctx context.Context, status string) ([]models.ReferralUse, error) {
	query := `SELECT ` + referralUseColumns + ` FROM referral_uses
		WHERE $1 = '' OR validation_status = $1 ORDER BY created_at DESC, id DESC`
	rows, err := q.db.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ReferralUse
	for rows.Next() {
		var u models.ReferralUse
		if err := rows.Scan(&u.ID, &u.ReferralCode, &u.ReferredEnrollmentID, &u.ValidationStatus, &u.RejectionReason, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// ReviewReferralUse approves or rejects a pending use.
func (q *queries) ReviewReferralUse(ctx context.Context, id int64, status, reason string) (*models.ReferralUse, error) {
	query := `UPDATE referral_uses SET validation_status = $2, rejection_reason = NULLIF($3, '')
		WHERE id = $1 AND validation_status = 'pending'
		RETURNING ` + referralUseColumns
	var u models.ReferralUse
	err := q.db.QueryRow(ctx, query, id, status, reason).Scan(&u.ID, &u.ReferralCode, &u.ReferredEnrollmentID,
		&u.ValidationStatus, &u.RejectionReason, &u.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertTeacher registers a teacher partner.
func (q *queries) InsertTeacher(ctx context.Context, t *models.TeacherReferral) error {
	const query = `INSERT INTO teacher_referrals (name, email, phone, type, institution_name, referral_code, commission_per_referral, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := q.db.QueryRow(ctx, query, t.Name, t.Email, t.Phone, t.Type, t.InstitutionName, t.ReferralCode,
		t.CommissionPerReferral, t.Status).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert teacher: %w", mapErr(err))
	}
	return nil
}

// GetActiveTeacher returns an active teacher partner by code.
func (q *queries) GetActiveTeacher(ctx context.Context, code string) (*models.TeacherReferral, error) {
	const query = `SELECT id, name, email, phone, type, COALESCE(institution_name, ''), referral_code,
			commission_per_referral, status, created_at, updated_at
		FROM teacher_referrals WHERE referral_code = $1 AND status = 'active'`
	var t models.TeacherReferral
	err := q.db.QueryRow(ctx, query, code).Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Type, &t.InstitutionName,
		&t.ReferralCode, &t.CommissionPerReferral, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTeacherReferralUse pins the teacher's current commission for an enrollment.
func (q *queries) InsertTeacherReferralUse(ctx context.Context, u *models.TeacherReferralUse) (bool, error) {
	const query = `INSERT INTO teacher_referral_uses (referral_code, enrollment_id, commission_amount, paid_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (referral_code, enrollment_id) DO NOTHING
		RETURNING id, created_at`
	err := q.db.QueryRow(ctx, query, u.ReferralCode, u.EnrollmentID, u.CommissionAmount, u.PaidStatus).Scan(&u.ID, &u.CreatedAt)
	if noRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert teacher referral use: %w", mapErr(err))
	}
	return true, nil
}

// ConfirmTeacherReferralUse marks the enrollment's commission as earned.
func (q *queries) ConfirmTeacherReferralUse(ctx context.Context, enrollmentID string, at time.Time) (*models.TeacherReferralUse, error) {
	const query = `UPDATE teacher_referral_uses SET confirmed_at = $2
		WHERE enrollment_id = $1 AND confirmed_at IS NULL
		RETURNING id, referral_code, enrollment_id, commission_amount, paid_status, confirmed_at, paid_at, created_at`
	var u models.TeacherReferralUse
	err := q.db.QueryRow(ctx, query, enrollmentID, at).Scan(&u.ID, &u.ReferralCode, &u.EnrollmentID, &u.CommissionAmount,
		&u.PaidStatus, &u.ConfirmedAt, &u.PaidAt, &u.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListTeacherStudents returns the enrollments referred by a teacher code, newest first.
func (q *queries) ListTeacherStudents(ctx context.Context, code string) ([]models.ReferredStudent, error) {
	const query = `SELECT e.enrollment_id, TRIM(e.first_name || ' ' || e.last_name), e.course_name, e.status,
			u.commission_amount, u.paid_status, u.created_at
		FROM teacher_referral_uses u JOIN enrollments e ON e.enrollment_id = u.enrollment_id
		WHERE u.referral_code = $1
		ORDER BY u.created_at DESC`
	rows, err := q.db.Query(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ReferredStudent
	for rows.Next() {
		var s models.ReferredStudent
		if err := rows.Scan(&s.EnrollmentID, &s.StudentName, &s.CourseName, &s.Status,
			&s.CommissionAmount, &s.PaidStatus, &s.ReferralDate); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// MarkCommissionPaid settles a confirmed commission.
func (q *queries) MarkCommissionPaid(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE teacher_referral_uses SET paid_status = 'paid', paid_at = $2
		WHERE id = $1 AND paid_status = 'pending' AND confirmed_at IS NOT NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
