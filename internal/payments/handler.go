package payments

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/educatory/backend/pkg/response"
)

// CreateOrderBody is the body for POST /payments/create-order.
type CreateOrderBody struct {
	EnrollmentID string            `json:"enrollment_id" binding:"required"`
	Amount       decimal.Decimal   `json:"amount"`
	Currency     string            `json:"currency"`
	Receipt      string            `json:"receipt"`
	Notes        map[string]string `json:"notes"`
}

// VerifyBody is the body for POST /payments/verify. Field names follow the
// Razorpay checkout callback.
type VerifyBody struct {
	OrderID      string   `json:"razorpay_order_id" binding:"required"`
	PaymentID    string   `json:"razorpay_payment_id" binding:"required"`
	Signature    string   `json:"razorpay_signature" binding:"required"`
	Coupons      []string `json:"coupons"`
	ReferralCode string   `json:"referral_code"`
}

// Handler handles payment endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateOrder handles POST /payments/create-order.
func (h *Handler) CreateOrder(c *gin.Context) {
	var body CreateOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	order, err := h.svc.CreateOrder(c.Request.Context(), CreateOrderRequest(body))
	if err != nil {
		h.fail(c, err, "failed to create order")
		return
	}
	response.Created(c, order)
}

// Verify handles POST /payments/verify.
func (h *Handler) Verify(c *gin.Context) {
	var body VerifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.VerifyPayment(c.Request.Context(), VerifyRequest(body))
	if err != nil {
		h.fail(c, err, "payment verification failed")
		return
	}
	response.OK(c, res)
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	h.logger.Warn(msg, zap.Error(err), zap.String("path", c.FullPath()))
	response.FromError(c, err, msg)
}
