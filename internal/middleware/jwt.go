package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/educatory/backend/internal/auth"
	"github.com/educatory/backend/pkg/response"
)

// ContextOperator is the gin context key holding the authenticated *auth.Claims.
const ContextOperator = "operator"

// JWT accepts "Authorization: Bearer <token>" issued by the admin login and
// stores the operator claims for RequireRole and Operator.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Unauthorized(c, "missing or malformed bearer token")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(strings.TrimSpace(token))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextOperator, claims)
		c.Next()
	}
}

// Operator returns the claims set by JWT.
func Operator(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ContextOperator)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
