package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/internal/auth"
	"github.com/educatory/backend/internal/models"
)

func TestJWTAndRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := auth.NewJWTService("secret", 1, "educatory")
	r := gin.New()
	r.GET("/admin/ping", JWT(jwtSvc), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		op, ok := Operator(c)
		require.True(t, ok)
		c.String(http.StatusOK, op.Email)
	})

	admin, err := jwtSvc.Generate(uuid.New(), "admin@example.com", "admin")
	require.NoError(t, err)
	viewer, err := jwtSvc.Generate(uuid.New(), "viewer@example.com", "viewer")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"admin", "Bearer " + admin, http.StatusOK},
		{"lowercase scheme", "bearer " + admin, http.StatusOK},
		{"other role", "Bearer " + viewer, http.StatusForbidden},
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token " + admin, http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "admin@example.com", w.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://enroll.example.com, https://admin.example.com"))
	r.POST("/api/enrollments", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/enrollments", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/enrollments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
