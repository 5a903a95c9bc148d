package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("complete enrollment: %w", Conflict("enrollment already exists", "email", "mobile"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, Conflict("other message")))

	var de *Error
	if assert.True(t, errors.As(err, &de)) {
		assert.Equal(t, []string{"email", "mobile"}, de.FieldList())
		assert.Equal(t, "enrollment already exists", de.PublicMessage())
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{ConstraintViolation("coupons_code_key", nil), http.StatusConflict},
		{VerificationMissing("CPN-A"), http.StatusUnprocessableEntity},
		{InvalidOTP("x"), http.StatusBadRequest},
		{InvalidSignature(), http.StatusBadRequest},
		{Validation("x"), http.StatusBadRequest},
		{&Error{Kind: "unknown"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestViolatedConstraint(t *testing.T) {
	cause := errors.New("duplicate key")
	err := fmt.Errorf("insert: %w", ConstraintViolation("enrollments_pkey", cause))

	assert.Equal(t, "enrollments_pkey", ViolatedConstraint(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "", ViolatedConstraint(NotFound("x")))
	assert.Equal(t, "duplicate value on enrollments_pkey: duplicate key", ConstraintViolation("enrollments_pkey", cause).Error())
}
