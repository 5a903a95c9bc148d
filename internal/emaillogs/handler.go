package emaillogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/educatory/backend/internal/models"
	"github.com/educatory/backend/pkg/response"
)

// Lister is the read side of the email log store.
type Lister interface {
	List(ctx context.Context, f Filter) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo Lister
}

// NewHandler creates an email logs handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /admin/email-logs?recipient=&enrollment_id=&status=&limit=.
// Mount behind RequireRole(admin).
func (h *Handler) List(c *gin.Context) {
	f := Filter{
		RecipientEmail: c.Query("recipient"),
		EnrollmentID:   c.Query("enrollment_id"),
		Status:         c.Query("status"),
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		f.Limit = n
	}
	switch f.Status {
	case "", models.EmailLogStatusPending, models.EmailLogStatusSent, models.EmailLogStatusFailed:
	default:
		response.BadRequest(c, "invalid status")
		return
	}
	logs, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
