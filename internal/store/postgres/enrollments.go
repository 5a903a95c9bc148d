package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/internal/store"
)

const enrollmentColumns = `id, enrollment_id, first_name, last_name, email, phone, national_id,
	address, city, district, state, pin_code, course_id, course_name, course_fee,
	COALESCE(referral_code, ''), existing_student, status, details, created_at, updated_at`

func scanEnrollment(row pgx.Row) (*models.Enrollment, error) {
	var e models.Enrollment
	err := row.Scan(&e.ID, &e.EnrollmentID, &e.FirstName, &e.LastName, &e.Email, &e.Phone, &e.NationalID,
		&e.Address, &e.City, &e.District, &e.State, &e.PinCode, &e.CourseID, &e.CourseName, &e.CourseFee,
		&e.ReferralCode, &e.ExistingStudent, &e.Status, &e.Details, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *queries) getEnrollment(ctx context.Context, query string, args ...any) (*models.Enrollment, error) {
	e, err := scanEnrollment(q.db.QueryRow(ctx, query, args...))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// LockCourse takes a transaction-scoped advisory lock keyed by course.
func (q *queries) LockCourse(ctx context.Context, courseID string) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('enrollment:' || $1::text))`, courseID)
	return err
}

// FindEnrollmentsInCourse returns course enrollments sharing email, phone or national ID.
func (q *queries) FindEnrollmentsInCourse(ctx context.Context, m store.IdentityMatch, courseID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE course_id = $4
		  AND (($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2) OR ($3 <> '' AND national_id = $3))
		ORDER BY created_at, id`
	rows, err := q.db.Query(ctx, query, m.Email, m.Phone, m.NationalID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// HasCompletedEnrollmentElsewhere reports a completed enrollment for the identity outside courseID.
func (q *queries) HasCompletedEnrollmentElsewhere(ctx context.Context, m store.IdentityMatch, courseID string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM enrollments
		WHERE status = 'completed' AND course_id <> $4
		  AND (($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2) OR ($3 <> '' AND national_id = $3)))`
	var ok bool
	err := q.db.QueryRow(ctx, query, m.Email, m.Phone, m.NationalID, courseID).Scan(&ok)
	return ok, err
}

// InsertEnrollment creates a pending enrollment.
func (q *queries) InsertEnrollment(ctx context.Context, e *models.Enrollment) error {
	const query = `INSERT INTO enrollments (enrollment_id, first_name, last_name, email, phone, national_id,
			address, city, district, state, pin_code, course_id, course_name, course_fee,
			referral_code, existing_student, status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), $16, $17, $18)
		RETURNING id, created_at, updated_at`
	err := q.db.QueryRow(ctx, query, e.EnrollmentID, e.FirstName, e.LastName, e.Email, e.Phone, e.NationalID,
		e.Address, e.City, e.District, e.State, e.PinCode, e.CourseID, e.CourseName, e.CourseFee,
		e.ReferralCode, e.ExistingStudent, e.Status, e.Details).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", mapErr(err))
	}
	return nil
}

// UpdateEnrollmentBasics overwrites the contact fields of a pending enrollment.
func (q *queries) UpdateEnrollmentBasics(ctx context.Context, e *models.Enrollment) error {
	const query = `UPDATE enrollments SET first_name = $2, last_name = $3, email = $4, phone = $5, national_id = $6,
			address = $7, city = $8, district = $9, state = $10, pin_code = $11, course_name = $12, course_fee = $13,
			referral_code = NULLIF($14, ''), existing_student = $15, updated_at = NOW()
		WHERE enrollment_id = $1 AND status = 'pending'
		RETURNING updated_at`
	err := q.db.QueryRow(ctx, query, e.EnrollmentID, e.FirstName, e.LastName, e.Email, e.Phone, e.NationalID,
		e.Address, e.City, e.District, e.State, e.PinCode, e.CourseName, e.CourseFee,
		e.ReferralCode, e.ExistingStudent).Scan(&e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", mapErr(err))
	}
	return nil
}

// GetEnrollment returns an enrollment by its public ID.
func (q *queries) GetEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return q.getEnrollment(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE enrollment_id = $1`, enrollmentID)
}

// GetEnrollmentForUpdate returns an enrollment and locks its row.
func (q *queries) GetEnrollmentForUpdate(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return q.getEnrollment(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE enrollment_id = $1 FOR UPDATE`, enrollmentID)
}

// FindEnrollment returns the newest enrollment with the given ID or email, optionally within a course.
func (q *queries) FindEnrollment(ctx context.Context, idOrEmail, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE (enrollment_id = $1 OR email = LOWER($1)) AND ($2 = '' OR course_id = $2)
		ORDER BY created_at DESC LIMIT 1`
	return q.getEnrollment(ctx, query, idOrEmail, courseID)
}

// TransitionEnrollment moves the status forward when the row is in from.
func (q *queries) TransitionEnrollment(ctx context.Context, enrollmentID, from, to string) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE enrollments SET status = $3, updated_at = NOW()
		WHERE enrollment_id = $1 AND status = $2`, enrollmentID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteEnrollment stores details and marks the enrollment completed.
func (q *queries) CompleteEnrollment(ctx context.Context, enrollmentID string, details models.EnrollmentDetails) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE enrollments SET details = $2, status = 'completed', updated_at = NOW()
		WHERE enrollment_id = $1 AND status = 'payment_completed'`, enrollmentID, details)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertInvoice stores an allocated invoice number.
func (q *queries) InsertInvoice(ctx context.Context, inv *models.Invoice) error {
	const query = `INSERT INTO invoices (enrollment_id, invoice_number, formatted_number)
		VALUES ($1, $2, $3) RETURNING id, created_at`
	err := q.db.QueryRow(ctx, query, inv.EnrollmentID, inv.InvoiceNumber, inv.FormattedNumber).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", mapErr(err))
	}
	return nil
}

// GetInvoice returns the invoice of an enrollment.
func (q *queries) GetInvoice(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	const query = `SELECT id, enrollment_id, invoice_number, formatted_number, created_at
		FROM invoices WHERE enrollment_id = $1`
	var inv models.Invoice
	err := q.db.QueryRow(ctx, query, enrollmentID).Scan(&inv.ID, &inv.EnrollmentID, &inv.InvoiceNumber, &inv.FormattedNumber, &inv.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
