package notifications

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/educatory/backend/internal/models"
)

// CouponImageName is the inline attachment name referenced by the coupon email.
const CouponImageName = "coupon.png"

// Composer renders the email bodies.
type Composer struct {
	frontendURL   string
	rewardPercent decimal.Decimal
}

// NewComposer creates a composer. frontendURL is the base for payment and dashboard links.
func NewComposer(frontendURL string, rewardPercent decimal.Decimal) *Composer {
	return &Composer{frontendURL: strings.TrimRight(frontendURL, "/"), rewardPercent: rewardPercent}
}

// PaymentLink returns the public page for a gateway payment.
func (c *Composer) PaymentLink(paymentID string) string {
	return c.frontendURL + "/payment/" + url.PathEscape(paymentID)
}

// DashboardLink returns the mentor dashboard for a teacher code.
func (c *Composer) DashboardLink(code string) string {
	return c.frontendURL + "/mentor-dashboard?referralCode=" + url.QueryEscape(code)
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

type enrollmentView struct {
	Name, EnrollmentID, CourseName, CourseID, Email, Phone, Address string
}

func viewOf(e *models.Enrollment) enrollmentView {
	parts := make([]string, 0, 5)
	for _, p := range []string{e.Address, e.City, e.District, e.State, e.PinCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return enrollmentView{
		Name:         e.FullName(),
		EnrollmentID: e.EnrollmentID,
		CourseName:   e.CourseName,
		CourseID:     e.CourseID,
		Email:        e.Email,
		Phone:        e.Phone,
		Address:      strings.Join(parts, ", "),
	}
}

// RegistrationInitiated is sent when a new pending enrollment is created.
// updated selects the "details updated" variant for a resubmitted pending enrollment.
func (c *Composer) RegistrationInitiated(e *models.Enrollment, updated bool) (Message, error) {
	typ, subject := models.EmailTypeRegistrationInitiated, "Registration Initiated with Educatory"
	if updated {
		typ, subject = models.EmailTypeDetailsUpdated, "Your Basic Details has been updated with Educatory"
	}
	body, err := render(typ, viewOf(e))
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, EnrollmentID: e.EnrollmentID, To: e.Email, Subject: subject, HTML: body}, nil
}

// RegistrationCompleted carries the rendered enrollment document, if any, and copies the admin.
func (c *Composer) RegistrationCompleted(e *models.Enrollment, inv *models.Invoice, attachments []Attachment) (Message, error) {
	data := struct {
		enrollmentView
		Invoice       string
		HasAttachment bool
	}{enrollmentView: viewOf(e), HasAttachment: len(attachments) > 0}
	if inv != nil {
		data.Invoice = inv.FormattedNumber
	}
	body, err := render(models.EmailTypeRegistrationCompleted, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:         models.EmailTypeRegistrationCompleted,
		EnrollmentID: e.EnrollmentID,
		To:           e.Email,
		Subject:      "Registration Completed Successfully",
		HTML:         body,
		Attachments:  attachments,
		CCAdmin:      true,
	}, nil
}

// ReferralProgram hands the student their own referral code.
func (c *Composer) ReferralProgram(e *models.Enrollment, code string) (Message, error) {
	body, err := render(models.EmailTypeReferralProgram, struct {
		Name, Code string
		Percent    string
	}{e.FullName(), code, c.rewardPercent.String()})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:         models.EmailTypeReferralProgram,
		EnrollmentID: e.EnrollmentID,
		To:           e.Email,
		Subject:      "Earn Discounts with Our Referral Program!",
		HTML:         body,
	}, nil
}

// CouponEarned notifies a referrer of a minted reward coupon. image is the
// rendered coupon PNG and may be nil.
func (c *Composer) CouponEarned(coupon *models.Coupon, image []byte) (Message, error) {
	data := struct {
		Name, Code, Amount, Reference, ImageName string
		HasImage                                 bool
	}{
		Name:      coupon.OwnerName,
		Code:      coupon.CouponCode,
		Amount:    coupon.Amount.StringFixed(2),
		Reference: coupon.SourcePaymentID,
		ImageName: CouponImageName,
		HasImage:  len(image) > 0,
	}
	body, err := render(models.EmailTypeCouponEarned, data)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		Type:    models.EmailTypeCouponEarned,
		To:      coupon.OwnerEmail,
		Subject: "You have earned a Onetime Use Lifetime Coupon!",
		HTML:    body,
	}
	if len(image) > 0 {
		msg.Attachments = []Attachment{{Filename: CouponImageName, ContentType: "image/png", Content: image, Inline: true}}
	}
	return msg, nil
}

// CouponOTP sends the one-time password to the coupon owner.
func (c *Composer) CouponOTP(coupon *models.Coupon, otp string, amount decimal.Decimal, adjusted bool, ttl time.Duration) (Message, error) {
	body, err := render(models.EmailTypeCouponOTP, struct {
		Name, Code, OTP, Amount string
		Minutes                 int
		Adjusted                bool
	}{coupon.OwnerName, coupon.CouponCode, otp, amount.StringFixed(2), int(ttl.Minutes()), adjusted})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: models.EmailTypeCouponOTP, To: coupon.OwnerEmail, Subject: "OTP for Coupon Validation", HTML: body}, nil
}

// CouponUsed tells the owner their coupon was redeemed by paymentID.
func (c *Composer) CouponUsed(coupon *models.Coupon, paymentID string) (Message, error) {
	body, err := render(models.EmailTypeCouponUsed, struct {
		Name, Code, PaymentID, Amount, Link string
	}{coupon.OwnerName, coupon.CouponCode, paymentID, coupon.Amount.StringFixed(2), c.PaymentLink(paymentID)})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: models.EmailTypeCouponUsed, To: coupon.OwnerEmail, Subject: "Your Coupon Has Been Used", HTML: body}, nil
}

// TeacherWelcome sends a new partner their code and the shareable PDF.
func (c *Composer) TeacherWelcome(t *models.TeacherReferral, attachments []Attachment) (Message, error) {
	body, err := render(models.EmailTypeTeacherWelcome, struct {
		Name, Code, DashboardLink string
		HasAttachment             bool
	}{t.Name, t.ReferralCode, c.DashboardLink(t.ReferralCode), len(attachments) > 0})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:        models.EmailTypeTeacherWelcome,
		To:          t.Email,
		Subject:     "Educatory - Thank you for registering as a Mentor!",
		HTML:        body,
		Attachments: attachments,
	}, nil
}

// TeacherReferral tells a partner that a referred student completed enrollment.
func (c *Composer) TeacherReferral(t *models.TeacherReferral, e *models.Enrollment, commission decimal.Decimal, students []models.ReferredStudent) (Message, error) {
	body, err := render(models.EmailTypeTeacherReferral, struct {
		Name, StudentName, CourseName, Commission, DashboardLink string
		Students                                                 []models.ReferredStudent
	}{t.Name, e.FullName(), e.CourseName, commission.StringFixed(2), c.DashboardLink(t.ReferralCode), students})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:         models.EmailTypeTeacherReferral,
		EnrollmentID: e.EnrollmentID,
		To:           t.Email,
		Subject:      "New Student Enrollment Through Your Referral",
		HTML:         body,
	}, nil
}
