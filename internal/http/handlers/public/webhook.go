package public

import (
	"errors"
	"io"

	"github.com/sitegrade/sitegrade/internal/http/response"
	"github.com/sitegrade/sitegrade/internal/payment/razorpay"
	"github.com/sitegrade/sitegrade/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

const webhookSignatureHeader = "X-Razorpay-Signature"

// PaymentWebhook handles the gateway-side notification: signature check over
// the raw body, event dedup, then the same consume path as client verify.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	signature := c.GetHeader(webhookSignatureHeader)

	if err := h.PaymentService.HandleWebhook(c.Request.Context(), body, signature); err != nil {
		switch {
		case errors.Is(err, razorpay.ErrSignatureInvalid):
			respondError(c, response.CodeBadRequest, "webhook signature invalid", nil)
		case errors.Is(err, razorpay.ErrEventInvalid):
			respondError(c, response.CodeBadRequest, "webhook payload invalid", nil)
		case errors.Is(err, service.ErrOrderMismatch):
			respondError(c, response.CodeBadRequest, "order does not match this audit", nil)
		case errors.Is(err, service.ErrQuoteExpired):
			respondError(c, response.CodeConflict, "price quote has expired", nil)
		default:
			respondError(c, response.CodeInternal, "webhook processing failed", err)
		}
		return
	}
	response.Success(c, gin.H{"received": true})
}
