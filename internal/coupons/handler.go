package coupons

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/educatory/backend/pkg/response"
)

// ValidateRequest is the body for POST /coupons/validate.
type ValidateRequest struct {
	CouponCode   string          `json:"coupon_code" binding:"required"`
	CourseAmount decimal.Decimal `json:"course_amount"`
}

// VerifyOTPRequest is the body for POST /coupons/verify-otp.
type VerifyOTPRequest struct {
	CouponCode     string          `json:"coupon_code" binding:"required"`
	OTP            string          `json:"otp" binding:"required"`
	AppliedCoupons []string        `json:"applied_coupons"`
	CourseAmount   decimal.Decimal `json:"course_amount"`
	EnrollmentID   string          `json:"enrollment_id"`
}

// Handler handles coupon endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a coupons handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Validate handles POST /coupons/validate.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	quote, err := h.svc.Validate(c.Request.Context(), req.CouponCode, req.CourseAmount)
	if err != nil {
		h.fail(c, err, "failed to validate coupon")
		return
	}
	response.OK(c, quote)
}

// VerifyOTP handles POST /coupons/verify-otp.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.svc.VerifyOTP(c.Request.Context(), VerifyRequest(req))
	if err != nil {
		h.fail(c, err, "failed to verify otp")
		return
	}
	response.OK(c, v)
}

// Sweep handles POST /admin/maintenance/cleanup.
func (h *Handler) Sweep(c *gin.Context) {
	otps, pending, err := h.svc.Sweep(c.Request.Context())
	if err != nil {
		h.fail(c, err, "cleanup failed")
		return
	}
	response.OK(c, gin.H{"cleared_otps": otps, "expired_pending": pending})
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	h.logger.Warn(msg, zap.Error(err), zap.String("path", c.FullPath()))
	response.FromError(c, err, msg)
}
