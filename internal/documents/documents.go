// Package documents renders enrollment forms, teacher referral sheets and
// reward coupons to PDF or PNG. Rendering is best effort: callers send
// emails without the attachment when it fails.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/educatory/backend/internal/models"
)

// Kind selects the layout and output format.
type Kind string

const (
	KindEnrollmentForm  Kind = "enrollment_form"
	KindTeacherReferral Kind = "teacher_referral"
	KindCoupon          Kind = "coupon"
)

// ErrDisabled is returned by the Noop generator.
var ErrDisabled = errors.New("document rendering disabled")

// Field is one labelled value on a document.
type Field struct {
	Label string
	Value string
}

// Record is the ordered content of a document.
type Record struct {
	Title  string
	Fields []Field
}

// Add appends a field, skipping empty values.
func (r *Record) Add(label, value string) {
	if value == "" {
		return
	}
	r.Fields = append(r.Fields, Field{Label: label, Value: value})
}

// Document is a rendered file.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Generator renders a record.
type Generator interface {
	Render(ctx context.Context, kind Kind, rec Record) (*Document, error)
}

// Noop renders nothing.
type Noop struct{}

func (Noop) Render(context.Context, Kind, Record) (*Document, error) { return nil, ErrDisabled }

type format struct {
	filename    string
	contentType string
	screenshot  bool
}

var formats = map[Kind]format{
	KindEnrollmentForm:  {filename: "enrollment.pdf", contentType: "application/pdf"},
	KindTeacherReferral: {filename: "Educatory_Scholarship.pdf", contentType: "application/pdf"},
	KindCoupon:          {filename: "coupon.png", contentType: "image/png", screenshot: true},
}

var layout = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body { font-family: Arial, Helvetica, sans-serif; margin: 32px; color: #222; }
h1 { font-size: 22px; border-bottom: 2px solid #1a73e8; padding-bottom: 8px; }
table { width: 100%; border-collapse: collapse; }
td { padding: 8px; border: 1px solid #ddd; vertical-align: top; }
td.label { width: 35%; background: #f8f9fa; font-weight: bold; }
.coupon { width: 600px; padding: 24px; border: 3px dashed #1a73e8; border-radius: 12px; text-align: center; }
.coupon .code { font-size: 32px; letter-spacing: 4px; font-weight: bold; }
</style></head><body>
{{if .Coupon}}<div class="coupon"><h1>{{.Title}}</h1>{{range .Fields}}<p><span>{{.Label}}:</span> <span class="code">{{.Value}}</span></p>{{end}}</div>
{{else}}<h1>{{.Title}}</h1>
<table>{{range .Fields}}<tr><td class="label">{{.Label}}</td><td>{{.Value}}</td></tr>{{end}}</table>{{end}}
</body></html>`))

// HTML renders the record into the page handed to the browser.
func HTML(kind Kind, rec Record) (string, error) {
	if _, ok := formats[kind]; !ok {
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
	var buf bytes.Buffer
	err := layout.Execute(&buf, struct {
		Record
		Coupon bool
	}{rec, kind == KindCoupon})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return buf.String(), nil
}

// EnrollmentRecord lists the fields printed on the enrollment form.
func EnrollmentRecord(e *models.Enrollment, inv *models.Invoice) Record {
	rec := Record{Title: "Enrollment Details"}
	rec.Add("Registration ID", e.EnrollmentID)
	if inv != nil {
		rec.Add("Invoice", inv.FormattedNumber)
	}
	rec.Add("Name", e.FullName())
	rec.Add("Email", e.Email)
	rec.Add("Phone", e.Phone)
	rec.Add("National ID", e.NationalID)
	rec.Add("Course", e.CourseName)
	rec.Add("Course Fee", e.CourseFee.StringFixed(2))
	rec.Add("Address", e.Address)
	rec.Add("City", e.City)
	rec.Add("District", e.District)
	rec.Add("State", e.State)
	rec.Add("Pin Code", e.PinCode)
	d := e.Details
	rec.Add("School", d.SchoolName)
	rec.Add("Father's Name", d.FatherName)
	rec.Add("Father's Phone", d.FatherPhone)
	rec.Add("Mother's Name", d.MotherName)
	rec.Add("Mother's Phone", d.MotherPhone)
	rec.Add("Reference Source", d.ReferenceSource)
	rec.Add("Date", e.UpdatedAt.Format("02 Jan 2006"))
	return rec
}

// TeacherRecord lists the fields on the shareable mentor sheet.
func TeacherRecord(t *models.TeacherReferral) Record {
	rec := Record{Title: "Educatory Scholarship"}
	rec.Add("Mentor", t.Name)
	rec.Add("Type", t.Type)
	rec.Add("Institution", t.InstitutionName)
	rec.Add("Referral Code", t.ReferralCode)
	return rec
}

// CouponRecord lists the fields on the reward coupon image.
func CouponRecord(c *models.Coupon, now time.Time) Record {
	rec := Record{Title: "Onetime Use Lifetime Coupon"}
	rec.Add("Code", c.CouponCode)
	rec.Add("Value", "INR "+c.Amount.StringFixed(2))
	rec.Add("Issued", now.Format("02 Jan 2006"))
	return rec
}
