package referrals

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/educatory/backend/internal/middleware"
	"github.com/educatory/backend/pkg/response"
)

// ValidateRequest is the body for POST /referrals/validate.
type ValidateRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
	Email        string `json:"email" binding:"omitempty,email"`
	Phone        string `json:"phone"`
	NationalID   string `json:"national_id"`
}

// RegisterTeacherRequest is the body for POST /teachers/register.
type RegisterTeacherRequest struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone" binding:"required"`
	Type            string `json:"type" binding:"required"`
	InstitutionName string `json:"institution_name"`
}

// RejectRequest is the body for POST /admin/referral-uses/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Handler handles referral and teacher partner endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a referrals handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Validate handles POST /referrals/validate.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ref, err := h.svc.Validate(c.Request.Context(), req.ReferralCode, req.Email, req.Phone, req.NationalID)
	if err != nil {
		h.fail(c, err, "failed to validate referral code")
		return
	}
	response.OK(c, ref)
}

// RegisterTeacher handles POST /teachers/register.
func (h *Handler) RegisterTeacher(c *gin.Context) {
	var req RegisterTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t, err := h.svc.RegisterTeacher(c.Request.Context(), TeacherRequest(req))
	if err != nil {
		h.fail(c, err, "registration failed")
		return
	}
	response.Created(c, gin.H{"referral_code": t.ReferralCode, "type": t.Type})
}

// TeacherStudents handles GET /teachers/referrals?referral_code=.
func (h *Handler) TeacherStudents(c *gin.Context) {
	report, err := h.svc.TeacherStudents(c.Request.Context(), c.Query("referral_code"))
	if err != nil {
		h.fail(c, err, "failed to fetch referral data")
		return
	}
	response.OK(c, report)
}

// ListUses handles GET /admin/referral-uses?status=.
func (h *Handler) ListUses(c *gin.Context) {
	uses, err := h.svc.ListUses(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, err, "failed to list referral uses")
		return
	}
	response.OK(c, uses)
}

// Approve handles POST /admin/referral-uses/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reward, err := h.svc.Approve(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to approve referral use")
		return
	}
	h.audit(c, "referral use approved", id)
	body := gin.H{"id": id, "status": "approved"}
	if reward != nil {
		body["reward_coupon"] = reward.CouponCode
	}
	response.OK(c, body)
}

// Reject handles POST /admin/referral-uses/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "reason required")
		return
	}
	if err := h.svc.Reject(c.Request.Context(), id, req.Reason); err != nil {
		h.fail(c, err, "failed to reject referral use")
		return
	}
	h.audit(c, "referral use rejected", id, zap.String("reason", req.Reason))
	response.OK(c, gin.H{"id": id, "status": "rejected"})
}

// MarkCommissionPaid handles POST /admin/commissions/:id/paid.
func (h *Handler) MarkCommissionPaid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.MarkCommissionPaid(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to mark commission paid")
		return
	}
	h.audit(c, "commission marked paid", id)
	response.OK(c, gin.H{"id": id, "paid_status": "paid"})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// audit records which operator performed a back-office action.
func (h *Handler) audit(c *gin.Context, msg string, id int64, fields ...zap.Field) {
	fields = append(fields, zap.Int64("id", id))
	if op, ok := middleware.Operator(c); ok {
		fields = append(fields, zap.String("operator", op.Email))
	}
	h.logger.Info(msg, fields...)
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	h.logger.Warn(msg, zap.Error(err), zap.String("path", c.FullPath()))
	response.FromError(c, err, msg)
}
