package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/pkg/response"
)

// RequireRole lets through operators holding one of roles. Must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		op, ok := Operator(c)
		if !ok {
			response.Unauthorized(c, "not authenticated")
			c.Abort()
			return
		}
		for _, r := range roles {
			if models.Role(op.Role) == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "admin access required")
		c.Abort()
	}
}
