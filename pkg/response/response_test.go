package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/domain"
)

func record(t *testing.T, err error) (int, Body) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	FromError(c, err, "something went wrong")
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestFromError(t *testing.T) {
	code, body := record(t, fmt.Errorf("create: %w", domain.Conflict("already enrolled", "email", "mobile")))
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, body.Success)
	assert.Equal(t, "already enrolled", body.Error)
	assert.Equal(t, []string{"email", "mobile"}, body.Fields)

	code, body = record(t, domain.VerificationMissing("EDU1234567ABCD"))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, []string{"EDU1234567ABCD"}, body.Fields)

	code, body = record(t, domain.ConstraintViolation("coupons_pkey", errors.New("pq: duplicate key")))
	assert.Equal(t, http.StatusConflict, code)
	assert.NotContains(t, body.Error, "pq:")
}

func TestFromError_Unknown(t *testing.T) {
	code, body := record(t, errors.New("dial tcp: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "something went wrong", body.Error)
}
