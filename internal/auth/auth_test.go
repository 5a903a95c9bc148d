package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/models"
)

func TestJWT_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1, "educatory")
	id := uuid.New()
	token, err := svc.Generate(id, "admin@example.com", string(models.RoleAdmin))
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "educatory", claims.Issuer)
}

func TestJWT_Rejects(t *testing.T) {
	svc := NewJWTService("secret", 1, "educatory")
	token, err := svc.Generate(uuid.New(), "admin@example.com", "admin")
	require.NoError(t, err)

	_, err = NewJWTService("other", 1, "educatory").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = NewJWTService("secret", 1, "someone-else").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTService("secret", -1, "educatory").Generate(uuid.New(), "a@example.com", "admin")
	require.NoError(t, err)
	_, err = svc.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, CheckPassword("s3cret!", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

type users map[string]*models.User

func (u users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return u[email], nil
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	h := NewHandler(users{"admin@example.com": {ID: uuid.New(), Email: "admin@example.com", Password: hash, Role: models.RoleAdmin}},
		NewJWTService("secret", 1, "educatory"), nil)
	r := gin.New()
	r.POST("/admin/login", h.Login)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"ok", `{"email":"admin@example.com","password":"s3cret!"}`, http.StatusOK},
		{"wrong password", `{"email":"admin@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"email":"x@example.com","password":"s3cret!"}`, http.StatusUnauthorized},
		{"bad body", `{"email":"not-an-email"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"token"`)
				assert.NotContains(t, w.Body.String(), hash)
			}
		})
	}
}
