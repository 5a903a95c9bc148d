// Package referrals keeps the student referral and teacher partner ledgers.
package referrals

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
	"github.com/educatory/backend/internal/store"
)

// retryAttempts bounds reruns of a unit of work after a code collision.
const retryAttempts = 5

// Policy holds the referral business rules.
type Policy struct {
	// AutoApprove approves student referral uses on application; otherwise
	// they wait for an admin.
	AutoApprove       bool
	DefaultCommission decimal.Decimal
	RewardPercent     decimal.Decimal
}

// Referrer is a resolved referral code.
type Referrer struct {
	Type     string `json:"referrer_type"`
	Code     string `json:"referral_code"`
	Name     string `json:"referrer_name"`
	Discount string `json:"discount"`

	Student *models.Referral        `json:"-"`
	Teacher *models.TeacherReferral `json:"-"`
}

// Applied describes the outcome of Apply.
type Applied struct {
	Referrer *Referrer
	// Recorded is false when this (code, enrollment) pair was already applied.
	Recorded bool
}

// TeacherRequest registers a teacher or institution partner.
type TeacherRequest struct {
	Name            string
	Email           string
	Phone           string
	Type            string
	InstitutionName string
}

// TeacherReport is a partner and the students they referred.
type TeacherReport struct {
	Teacher        *models.TeacherReferral  `json:"teacher"`
	Students       []models.ReferredStudent `json:"students"`
	TotalReferrals int                      `json:"total_referrals"`
}

// RewardIssuer mints the student referrer's reward coupon.
type RewardIssuer interface {
	IssueReward(ctx context.Context, q store.Querier, referralCode string, courseFee decimal.Decimal, sourcePaymentID string) (*models.Coupon, error)
	NotifyReward(ctx context.Context, c *models.Coupon)
}

// Service implements the referral ledger.
type Service struct {
	rewards  RewardIssuer
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

// WithRewards lets Approve mint the reward for an enrollment that completed
// before its referral use was approved.
func WithRewards(r RewardIssuer) Option { return func(s *Service) { s.rewards = r } }

// NewService creates a referral service.
func NewService(st store.Store, notifier notifications.Dispatcher, composer *notifications.Composer, docs documents.Generator, policy Policy, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if docs == nil {
		docs = documents.Noop{}
	}
	s := &Service{store: st, notifier: notifier, composer: composer, docs: docs, policy: policy, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Policy returns the configured rules.
func (s *Service) Policy() Policy { return s.policy }

// Resolve looks the code up as a student code first, then as a teacher code.
func (s *Service) Resolve(ctx context.Context, q store.Querier, code string) (*Referrer, error) {
	code = normalize(code)
	if code == "" {
		return nil, domain.Validation("referral code is required")
	}
	ref, err := q.GetActiveReferral(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	if ref != nil {
		return &Referrer{
			Type:     models.ReferrerStudent,
			Code:     code,
			Name:     ref.OwnerName,
			Discount: s.policy.RewardPercent.String() + "% of course fee",
			Student:  ref,
		}, nil
	}
	t, err := q.GetActiveTeacher(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	if t != nil {
		return &Referrer{
			Type:     models.ReferrerTeacher,
			Code:     code,
			Name:     t.Name,
			Discount: s.policy.RewardPercent.String() + "%",
			Teacher:  t,
		}, nil
	}
	return nil, domain.NotFound("invalid or inactive referral code")
}

// Apply records that enrollmentID was referred by code. It runs inside the
// caller's transaction and is safe to repeat: the first write wins and
// times_used only moves when the use row was inserted.
func (s *Service) Apply(ctx context.Context, q store.Querier, code, enrollmentID string) (*Applied, error) {
	ref, err := s.Resolve(ctx, q, code)
	if err != nil {
		return nil, err
	}
	if ref.Student != nil {
		if err := s.checkSelfReferral(ctx, q, ref.Student, enrollmentID); err != nil {
			return nil, err
		}
		status := models.ReferralUsePending
		if s.policy.AutoApprove {
			status = models.ReferralUseApproved
		}
		inserted, err := q.InsertReferralUse(ctx, &models.ReferralUse{
			ReferralCode:         ref.Code,
			ReferredEnrollmentID: enrollmentID,
			ValidationStatus:     status,
		})
		if err != nil {
			return nil, fmt.Errorf("insert referral use: %w", err)
		}
		if inserted {
			if err := q.IncrementReferralUsage(ctx, ref.Code); err != nil {
				return nil, fmt.Errorf("increment referral usage: %w", err)
			}
		}
		return &Applied{Referrer: ref, Recorded: inserted}, nil
	}

	inserted, err := q.InsertTeacherReferralUse(ctx, &models.TeacherReferralUse{
		ReferralCode:     ref.Code,
		EnrollmentID:     enrollmentID,
		CommissionAmount: ref.Teacher.CommissionPerReferral,
		PaidStatus:       models.CommissionPending,
	})
	if err != nil {
		return nil, fmt.Errorf("insert teacher referral use: %w", err)
	}
	return &Applied{Referrer: ref, Recorded: inserted}, nil
}

func (s *Service) checkSelfReferral(ctx context.Context, q store.Querier, ref *models.Referral, enrollmentID string) error {
	if ref.EnrollmentID == enrollmentID {
		return domain.Conflict("a referral code cannot be used by its owner")
	}
	owner, err := q.GetEnrollment(ctx, ref.EnrollmentID)
	if err != nil {
		return fmt.Errorf("get referral owner: %w", err)
	}
	referred, err := q.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("get referred enrollment: %w", err)
	}
	if owner == nil || referred == nil {
		return nil
	}
	if fields := owner.MatchedFields(referred.Email, referred.Phone, referred.NationalID); len(fields) > 0 {
		return domain.Conflict("a referral code cannot be used by its owner", fields...)
	}
	return nil
}

// Validate resolves code for display before enrollment. Existing students,
// those with a completed enrollment in any course, may not use referral codes.
func (s *Service) Validate(ctx context.Context, code, email, phone, nationalID string) (*Referrer, error) {
	m := store.IdentityMatch{Email: email, Phone: phone, NationalID: nationalID}
	if m != (store.IdentityMatch{}) {
		existing, err := s.store.HasCompletedEnrollmentElsewhere(ctx, m, "")
		if err != nil {
			return nil, fmt.Errorf("check existing student: %w", err)
		}
		if existing {
			return nil, domain.Conflict("existing students cannot use referral codes")
		}
	}
	return s.Resolve(ctx, s.store, code)
}

// Issue mints a fresh student referral code owned by enrollmentID.
func (s *Service) Issue(ctx context.Context, q store.Querier, enrollmentID string) (*models.Referral, error) {
	code, err := ids.Unique(ctx, ids.ReferralCode, q.ReferralCodeExists)
	if err != nil {
		return nil, fmt.Errorf("generate referral code: %w", err)
	}
	ref := &models.Referral{EnrollmentID: enrollmentID, ReferralCode: code, Status: models.ReferralStatusActive}
	if err := q.InsertReferral(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// Commission is a teacher commission confirmed by a completed enrollment.
type Commission struct {
	Teacher *models.TeacherReferral
	Use     *models.TeacherReferralUse
}

// ConfirmCommission stamps the enrollment's teacher use as confirmed, making
// the commission payable. It returns nil when the enrollment had no teacher referral.
func (s *Service) ConfirmCommission(ctx context.Context, q store.Querier, enrollmentID string) (*Commission, error) {
	use, err := q.ConfirmTeacherReferralUse(ctx, enrollmentID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("confirm teacher referral: %w", err)
	}
	if use == nil {
		return nil, nil
	}
	t, err := q.GetActiveTeacher(ctx, use.ReferralCode)
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	return &Commission{Teacher: t, Use: use}, nil
}

// RegisterTeacher creates a partner with a fresh T-code and the default
// commission, then emails the code with the shareable PDF.
func (s *Service) RegisterTeacher(ctx context.Context, req TeacherRequest) (*models.TeacherReferral, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || req.Phone == "" || req.Type == "" {
		return nil, domain.Validation("name, email, phone and type are required")
	}
	var t *models.TeacherReferral
	err := ids.Retry(ctx, retryAttempts, func() error {
		return s.store.InTx(ctx, func(q store.Querier) error {
			code, err := ids.Unique(ctx, ids.TeacherCode, q.ReferralCodeExists)
			if err != nil {
				return fmt.Errorf("generate teacher code: %w", err)
			}
			t = &models.TeacherReferral{
				Name:                  req.Name,
				Email:                 req.Email,
				Phone:                 req.Phone,
				Type:                  req.Type,
				InstitutionName:       req.InstitutionName,
				ReferralCode:          code,
				CommissionPerReferral: s.policy.DefaultCommission,
				Status:                models.ReferralStatusActive,
			}
			err = q.InsertTeacher(ctx, t)
			if domain.ViolatedConstraint(err) == "teacher_referrals_email_key" {
				return domain.Conflict("email already registered", models.MatchEmail)
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("teacher registered", zap.String("referral_code", t.ReferralCode), zap.String("type", t.Type))
	s.sendWelcome(ctx, t)
	return t, nil
}

func (s *Service) sendWelcome(ctx context.Context, t *models.TeacherReferral) {
	var attachments []notifications.Attachment
	doc, err := s.docs.Render(ctx, documents.KindTeacherReferral, documents.TeacherRecord(t))
	switch {
	case err == nil:
		attachments = append(attachments, notifications.Attachment{Filename: doc.Filename, ContentType: doc.ContentType, Content: doc.Content})
	case !errors.Is(err, documents.ErrDisabled):
		s.logger.Warn("render teacher referral document", zap.Error(err), zap.String("referral_code", t.ReferralCode))
	}
	msg, err := s.composer.TeacherWelcome(t, attachments)
	if err == nil {
		err = s.notifier.Dispatch(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("teacher welcome email", zap.Error(err), zap.String("referral_code", t.ReferralCode))
	}
}

// TeacherStudents reports the students referred by a teacher code.
func (s *Service) TeacherStudents(ctx context.Context, code string) (*TeacherReport, error) {
	code = normalize(code)
	if code == "" {
		return nil, domain.Validation("referral code is required")
	}
	t, err := s.store.GetActiveTeacher(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	if t == nil {
		return nil, domain.NotFound("invalid referral code")
	}
	students, err := s.store.ListTeacherStudents(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list teacher students: %w", err)
	}
	if students == nil {
		students = []models.ReferredStudent{}
	}
	return &TeacherReport{Teacher: t, Students: students, TotalReferrals: len(students)}, nil
}

// ListUses lists student referral uses, optionally filtered by status.
func (s *Service) ListUses(ctx context.Context, status string) ([]models.ReferralUse, error) {
	switch status {
	case "", models.ReferralUsePending, models.ReferralUseApproved, models.ReferralUseRejected:
	default:
		return nil, domain.Validation("invalid status")
	}
	uses, err := s.store.ListReferralUses(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list referral uses: %w", err)
	}
	if uses == nil {
		uses = []models.ReferralUse{}
	}
	return uses, nil
}

// Approve moves a pending use to approved. When the referred enrollment has
// already completed, the referrer's reward is minted in the same transaction
// and returned; otherwise completion mints it later.
func (s *Service) Approve(ctx context.Context, useID int64) (*models.Coupon, error) {
	var reward *models.Coupon
	err := ids.Retry(ctx, retryAttempts, func() error {
		reward = nil
		return s.store.InTx(ctx, func(q store.Querier) error {
			use, err := q.ReviewReferralUse(ctx, useID, models.ReferralUseApproved, "")
			if err != nil {
				return fmt.Errorf("review referral use: %w", err)
			}
			if use == nil {
				return domain.Conflict("referral use is not pending")
			}
			if s.rewards == nil {
				return nil
			}
			// Serializes with enrollment completion, which reads the use under the same lock.
			e, err := q.GetEnrollmentForUpdate(ctx, use.ReferredEnrollmentID)
			if err != nil {
				return fmt.Errorf("get referred enrollment: %w", err)
			}
			if e == nil || e.Status != models.EnrollmentStatusCompleted {
				return nil
			}
			var paymentID string
			p, err := q.GetPaymentByEnrollment(ctx, e.EnrollmentID)
			if err != nil {
				return fmt.Errorf("get payment: %w", err)
			}
			if p != nil {
				paymentID = p.GatewayPaymentID
			}
			reward, err = s.rewards.IssueReward(ctx, q, use.ReferralCode, e.CourseFee, paymentID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("referral use reviewed", zap.Int64("use_id", useID), zap.String("status", models.ReferralUseApproved),
		zap.Bool("reward_issued", reward != nil))
	if reward != nil {
		s.rewards.NotifyReward(ctx, reward)
	}
	return reward, nil
}

// Reject moves a pending use to rejected with a reason.
func (s *Service) Reject(ctx context.Context, useID int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return domain.Validation("rejection reason is required")
	}
	use, err := s.store.ReviewReferralUse(ctx, useID, models.ReferralUseRejected, reason)
	if err != nil {
		return fmt.Errorf("review referral use: %w", err)
	}
	if use == nil {
		return domain.Conflict("referral use is not pending")
	}
	s.logger.Info("referral use reviewed", zap.Int64("use_id", useID), zap.String("status", models.ReferralUseRejected))
	return nil
}

// MarkCommissionPaid settles a confirmed teacher commission.
func (s *Service) MarkCommissionPaid(ctx context.Context, useID int64) error {
	ok, err := s.store.MarkCommissionPaid(ctx, useID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark commission paid: %w", err)
	}
	if !ok {
		return domain.Conflict("commission is not confirmed or already paid")
	}
	s.logger.Info("commission paid", zap.Int64("use_id", useID))
	return nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
