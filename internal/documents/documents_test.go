package documents

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/models"
)

func TestEnrollmentRecord_OrderAndSkipsEmpty(t *testing.T) {
	e := &models.Enrollment{
		EnrollmentID: "20260105ED001",
		FirstName:    "Asha",
		LastName:     "Rao",
		Email:        "asha@example.com",
		CourseName:   "Physics",
		CourseFee:    decimal.NewFromInt(500),
		UpdatedAt:    time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
	}
	rec := EnrollmentRecord(e, &models.Invoice{FormattedNumber: "EDU-2026-00001"})

	require.GreaterOrEqual(t, len(rec.Fields), 4)
	assert.Equal(t, Field{"Registration ID", "20260105ED001"}, rec.Fields[0])
	assert.Equal(t, Field{"Invoice", "EDU-2026-00001"}, rec.Fields[1])
	for _, f := range rec.Fields {
		assert.NotEmpty(t, f.Value, f.Label)
		assert.NotEqual(t, "Phone", f.Label)
	}
}

func TestHTML(t *testing.T) {
	rec := Record{Title: "Onetime Use Lifetime Coupon"}
	rec.Add("Code", "EDU123456<AB>")
	html, err := HTML(KindCoupon, rec)
	require.NoError(t, err)
	assert.Contains(t, html, `class="coupon"`)
	assert.Contains(t, html, "EDU123456&lt;AB&gt;")

	html, err = HTML(KindEnrollmentForm, rec)
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")

	_, err = HTML("certificate", rec)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	_, err := Noop{}.Render(context.Background(), KindCoupon, Record{})
	assert.ErrorIs(t, err, ErrDisabled)
}
