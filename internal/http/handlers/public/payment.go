package public

import (
	"errors"

	"github.com/sitegrade/sitegrade/internal/http/response"
	"github.com/sitegrade/sitegrade/internal/payment/razorpay"

	"github.com/gin-gonic/gin"
)

// CreateOrder creates a gateway order for the audit's current final price.
func (h *Handler) CreateOrder(c *gin.Context) {
	result, err := h.PaymentService.CreateOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondOrderCreateError(c, err)
		return
	}
	response.Success(c, gin.H{
		"order_id":     result.OrderID,
		"amount_paise": result.AmountPaise,
		"currency":     result.Currency,
		"key_id":       result.KeyID,
	})
}

// VerifyPaymentRequest is the client-side checkout verification payload.
type VerifyPaymentRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyPayment checks the checkout signature and consumes the reservation.
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	publicID := c.Param("id")
	if err := h.PaymentService.VerifyAndUnlock(publicID, req.OrderID, req.PaymentID, req.Signature); err != nil {
		if errors.Is(err, razorpay.ErrSignatureInvalid) {
			respondError(c, response.CodeBadRequest, "payment signature invalid", nil)
			return
		}
		respondPaymentVerifyError(c, err)
		return
	}
	audit, err := h.AuditService.Get(publicID)
	if err != nil {
		respondError(c, response.CodeInternal, "audit fetch failed", err)
		return
	}
	response.Success(c, buildAuditView(audit))
}
