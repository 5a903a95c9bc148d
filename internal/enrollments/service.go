// Package enrollments runs the enrollment state machine:
// pending -> payment_completed -> completed.
package enrollments

import (
	"context"
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
	"github.com/educatory/backend/internal/referrals"
	"github.com/educatory/backend/internal/store"
)

// ReferralLedger is the part of the referral ledger enrollments need.
type ReferralLedger interface {
	Resolve(ctx context.Context, q store.Querier, code string) (*referrals.Referrer, error)
	Issue(ctx context.Context, q store.Querier, enrollmentID string) (*models.Referral, error)
	ConfirmCommission(ctx context.Context, q store.Querier, enrollmentID string) (*referrals.Commission, error)
}

// CouponLedger mints and announces referral rewards.
type CouponLedger interface {
	IssueReward(ctx context.Context, q store.Querier, referralCode string, courseFee decimal.Decimal, sourcePaymentID string) (*models.Coupon, error)
	NotifyReward(ctx context.Context, c *models.Coupon)
}

// Config holds enrollment numbering.
type Config struct {
	IDPrefix      string
	InvoicePrefix string
}

// CreateRequest is the basic registration form.
type CreateRequest struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	NationalID   string
	Address      string
	City         string
	District     string
	State        string
	PinCode      string
	CourseID     string
	CourseName   string
	CourseFee    decimal.Decimal
	ReferralCode string
}

// Outcome of Create.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
)

// CreateResult is the enrollment after Create and what happened to it.
type CreateResult struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Outcome    string             `json:"outcome"`
	// ReferralIgnored is set when an existing student supplied a code.
	ReferralIgnored bool `json:"referral_ignored,omitempty"`
}

// CompleteResult is everything allocated by Complete.
type CompleteResult struct {
	Enrollment   *models.Enrollment    `json:"enrollment"`
	Invoice      *models.Invoice       `json:"invoice"`
	ReferralCode string                `json:"referral_code"`
	Reward       *models.Coupon        `json:"-"`
	Commission   *referrals.Commission `json:"-"`
}

// Service implements the enrollment state machine.
type Service struct {
	store     store.Store
	referrals ReferralLedger
	coupons   CouponLedger
	notifier  notifications.Dispatcher
	composer  *notifications.Composer
	docs      documents.Generator
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates an enrollment service.
func NewService(st store.Store, refs ReferralLedger, cpns CouponLedger, notifier notifications.Dispatcher, composer *notifications.Composer, docs documents.Generator, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if docs == nil {
		docs = documents.Noop{}
	}
	s := &Service{
		store:     st,
		referrals: refs,
		coupons:   cpns,
		notifier:  notifier,
		composer:  composer,
		docs:      docs,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (r *CreateRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.CourseID = strings.TrimSpace(r.CourseID)
	r.ReferralCode = strings.ToUpper(strings.TrimSpace(r.ReferralCode))
}

func (r *CreateRequest) validate() error {
	switch {
	case r.FirstName == "":
		return domain.Validation("first name is required")
	case r.Email == "":
		return domain.Validation("email is required")
	case r.Phone == "":
		return domain.Validation("phone is required")
	case r.CourseID == "" || r.CourseName == "":
		return domain.Validation("course is required")
	case !r.CourseFee.IsPositive():
		return domain.Validation("course fee must be positive")
	}
	return nil
}

// Create registers a person for a course, or refreshes their pending
// registration. Matches on email, phone or national ID within the course.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}
	identity := store.IdentityMatch{Email: req.Email, Phone: req.Phone, NationalID: req.NationalID}
	now := s.now().UTC()

	var res *CreateResult
	err := ids.Retry(ctx, 3, func() error {
		return s.store.InTx(ctx, func(q store.Querier) error {
			if err := q.LockCourse(ctx, req.CourseID); err != nil {
				return fmt.Errorf("lock course: %w", err)
			}
			found, err := q.FindEnrollmentsInCourse(ctx, identity, req.CourseID)
			if err != nil {
				return fmt.Errorf("find enrollments: %w", err)
			}
			existing, err := matchPending(found, req)
			if err != nil {
				return err
			}

			returning, err := q.HasCompletedEnrollmentElsewhere(ctx, identity, req.CourseID)
			if err != nil {
				return fmt.Errorf("check existing student: %w", err)
			}
			e := &models.Enrollment{
				FirstName:       req.FirstName,
				LastName:        req.LastName,
				Email:           req.Email,
				Phone:           req.Phone,
				NationalID:      req.NationalID,
				Address:         req.Address,
				City:            req.City,
				District:        req.District,
				State:           req.State,
				PinCode:         req.PinCode,
				CourseID:        req.CourseID,
				CourseName:      req.CourseName,
				CourseFee:       req.CourseFee,
				ExistingStudent: returning,
				Status:          models.EnrollmentStatusPending,
			}
			res = &CreateResult{Enrollment: e}
			if req.ReferralCode != "" {
				if returning {
					res.ReferralIgnored = true
				} else {
					if _, err := s.referrals.Resolve(ctx, q, req.ReferralCode); err != nil {
						return err
					}
					e.ReferralCode = req.ReferralCode
				}
			}

			if existing != nil {
				e.EnrollmentID = existing.EnrollmentID
				if existing.SameBasics(e) && existing.ExistingStudent == e.ExistingStudent {
					res.Enrollment = existing
					res.Outcome = OutcomeUnchanged
					return nil
				}
				if err := q.UpdateEnrollmentBasics(ctx, e); err != nil {
					return err
				}
				e.CreatedAt = existing.CreatedAt
				res.Outcome = OutcomeUpdated
				return nil
			}

			seq, err := q.NextSequence(ctx, ids.EnrollmentSequence(now))
			if err != nil {
				return fmt.Errorf("next enrollment sequence: %w", err)
			}
			e.EnrollmentID = ids.EnrollmentID(now, s.cfg.IDPrefix, seq)
			if err := q.InsertEnrollment(ctx, e); err != nil {
				return err
			}
			res.Outcome = OutcomeCreated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e := res.Enrollment
	if res.ReferralIgnored {
		s.logger.Warn("referral code ignored for existing student",
			zap.String("enrollment_id", e.EnrollmentID), zap.String("referral_code", req.ReferralCode))
	}
	s.logger.Info("enrollment saved", zap.String("enrollment_id", e.EnrollmentID), zap.String("outcome", res.Outcome))
	if res.Outcome == OutcomeUnchanged {
		return res, nil
	}
	s.dispatch(ctx, e.EnrollmentID, func() (notifications.Message, error) {
		return s.composer.RegistrationInitiated(e, res.Outcome == OutcomeUpdated)
	})
	return res, nil
}

// matchPending returns the single pending enrollment matching req, nil when
// there is none, or a Conflict naming the matched fields.
func matchPending(found []models.Enrollment, req CreateRequest) (*models.Enrollment, error) {
	if len(found) == 0 {
		return nil, nil
	}
	var fields []string
	blocked := len(found) > 1
	for i := range found {
		for _, f := range found[i].MatchedFields(req.Email, req.Phone, req.NationalID) {
			if !contains(fields, f) {
				fields = append(fields, f)
			}
		}
		if found[i].Status != models.EnrollmentStatusPending {
			blocked = true
		}
	}
	if blocked {
		return nil, domain.Conflict("already enrolled in this course", fields...)
	}
	return &found[0], nil
}

// Complete attaches the full details of a paid enrollment and allocates its
// referral code, invoice number and any referrer reward in one transaction.
func (s *Service) Complete(ctx context.Context, enrollmentID string, details models.EnrollmentDetails) (*CompleteResult, error) {
	now := s.now().UTC()
	var res *CompleteResult
	err := ids.Retry(ctx, 5, func() error {
		return s.store.InTx(ctx, func(q store.Querier) error {
			e, err := q.GetEnrollmentForUpdate(ctx, enrollmentID)
			if err != nil {
				return fmt.Errorf("get enrollment: %w", err)
			}
			if e == nil {
				return domain.NotFound("enrollment not found")
			}
			if e.Status != models.EnrollmentStatusPaymentCompleted {
				return domain.Conflict("enrollment is not awaiting completion")
			}
			ok, err := q.CompleteEnrollment(ctx, enrollmentID, details)
			if err != nil {
				return fmt.Errorf("complete enrollment: %w", err)
			}
			if !ok {
				return domain.Conflict("enrollment is not awaiting completion")
			}
			e.Status = models.EnrollmentStatusCompleted
			e.Details = details

			ref, err := s.referrals.Issue(ctx, q, enrollmentID)
			if err != nil {
				return err
			}

			n, err := q.NextSequence(ctx, ids.InvoiceSequence)
			if err != nil {
				return fmt.Errorf("next invoice number: %w", err)
			}
			inv := &models.Invoice{
				EnrollmentID:    enrollmentID,
				InvoiceNumber:   n,
				FormattedNumber: ids.InvoiceLabel(s.cfg.InvoicePrefix, now.Year(), n),
			}
			if err := q.InsertInvoice(ctx, inv); err != nil {
				return err
			}

			res = &CompleteResult{Enrollment: e, Invoice: inv, ReferralCode: ref.ReferralCode}

			use, err := q.GetApprovedReferralUse(ctx, enrollmentID)
			if err != nil {
				return fmt.Errorf("get referral use: %w", err)
			}
			if use != nil {
				var paymentID string
				p, err := q.GetPaymentByEnrollment(ctx, enrollmentID)
				if err != nil {
					return fmt.Errorf("get payment: %w", err)
				}
				if p != nil {
					paymentID = p.GatewayPaymentID
				}
				res.Reward, err = s.coupons.IssueReward(ctx, q, use.ReferralCode, e.CourseFee, paymentID)
				if err != nil {
					return err
				}
			}

			res.Commission, err = s.referrals.ConfirmCommission(ctx, q, enrollmentID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("enrollment completed",
		zap.String("enrollment_id", enrollmentID),
		zap.String("invoice", res.Invoice.FormattedNumber),
		zap.Bool("reward_issued", res.Reward != nil),
		zap.Bool("commission_confirmed", res.Commission != nil))
	s.notifyCompleted(ctx, res)
	return res, nil
}

func (s *Service) notifyCompleted(ctx context.Context, res *CompleteResult) {
	e := res.Enrollment
	var attachments []notifications.Attachment
	doc, err := s.docs.Render(ctx, documents.KindEnrollmentForm, documents.EnrollmentRecord(e, res.Invoice))
	switch {
	case err == nil:
		attachments = append(attachments, notifications.Attachment{Filename: doc.Filename, ContentType: doc.ContentType, Content: doc.Content})
	case !errors.Is(err, documents.ErrDisabled):
		s.logger.Warn("render enrollment form", zap.Error(err), zap.String("enrollment_id", e.EnrollmentID))
	}
	s.dispatch(ctx, e.EnrollmentID, func() (notifications.Message, error) {
		return s.composer.RegistrationCompleted(e, res.Invoice, attachments)
	})
	s.dispatch(ctx, e.EnrollmentID, func() (notifications.Message, error) {
		return s.composer.ReferralProgram(e, res.ReferralCode)
	})
	if res.Reward != nil {
		s.coupons.NotifyReward(ctx, res.Reward)
	}
	if c := res.Commission; c != nil && c.Teacher != nil {
		students, err := s.store.ListTeacherStudents(ctx, c.Teacher.ReferralCode)
		if err != nil {
			s.logger.Warn("list teacher students", zap.Error(err), zap.String("referral_code", c.Teacher.ReferralCode))
		}
		s.dispatch(ctx, e.EnrollmentID, func() (notifications.Message, error) {
			return s.composer.TeacherReferral(c.Teacher, e, c.Use.CommissionAmount, students)
		})
	}
}

// dispatch sends a composed message; failures are only logged.
func (s *Service) dispatch(ctx context.Context, enrollmentID string, compose func() (notifications.Message, error)) {
	msg, err := compose()
	if err == nil {
		err = s.notifier.Dispatch(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("notification failed", zap.Error(err), zap.String("enrollment_id", enrollmentID), zap.String("email_type", msg.Type))
	}
}

// Get returns an enrollment by ID.
func (s *Service) Get(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	if e == nil {
		return nil, domain.NotFound("enrollment not found")
	}
	return e, nil
}

// Fetch finds an enrollment by ID or email, optionally within a course.
func (s *Service) Fetch(ctx context.Context, idOrEmail, courseID string) (*models.Enrollment, error) {
	idOrEmail = strings.TrimSpace(idOrEmail)
	if idOrEmail == "" {
		return nil, domain.Validation("enrollment id or email is required")
	}
	if strings.Contains(idOrEmail, "@") {
		idOrEmail = strings.ToLower(idOrEmail)
	}
	e, err := s.store.FindEnrollment(ctx, idOrEmail, courseID)
	if err != nil {
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	if e == nil {
		return nil, domain.NotFound("enrollment not found")
	}
	return e, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
