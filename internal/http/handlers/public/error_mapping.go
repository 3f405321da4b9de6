package public

import (
	"errors"

	"github.com/sitegrade/sitegrade/internal/http/response"
	"github.com/sitegrade/sitegrade/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError maps a service sentinel onto an envelope code and message.
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var couponApplyErrorRules = []mappedHandlerError{
	{target: service.ErrAuditNotFound, code: response.CodeNotFound, msg: "audit not found"},
	{target: service.ErrCouponInvalid, code: response.CodeBadRequest, msg: "coupon is invalid"},
	{target: service.ErrCouponNotFound, code: response.CodeBadRequest, msg: "coupon not found"},
	{target: service.ErrCouponInactive, code: response.CodeBadRequest, msg: "coupon is inactive"},
	{target: service.ErrCouponNotStarted, code: response.CodeBadRequest, msg: "coupon is not active yet"},
	{target: service.ErrCouponExpired, code: response.CodeBadRequest, msg: "coupon has expired"},
	{target: service.ErrCouponUsageLimit, code: response.CodeBadRequest, msg: "coupon usage limit reached"},
	{target: service.ErrCouponPerUserLimit, code: response.CodeBadRequest, msg: "coupon already used from this address"},
	{target: service.ErrQuoteExpired, code: response.CodeConflict, msg: "price quote has expired, apply the coupon again"},
}

var leadCaptureErrorRules = []mappedHandlerError{
	{target: service.ErrAuditNotFound, code: response.CodeNotFound, msg: "audit not found"},
	{target: service.ErrConsentRequired, code: response.CodeBadRequest, msg: "consent is required"},
	{target: service.ErrLeadInvalid, code: response.CodeBadRequest, msg: "lead details are invalid"},
}

var orderCreateErrorRules = []mappedHandlerError{
	{target: service.ErrAuditNotFound, code: response.CodeNotFound, msg: "audit not found"},
	{target: service.ErrAlreadyUnlocked, code: response.CodeConflict, msg: "report is already unlocked"},
	{target: service.ErrOrderNotRequired, code: response.CodeBadRequest, msg: "nothing to pay, report unlocks on lead capture"},
}

var paymentVerifyErrorRules = []mappedHandlerError{
	{target: service.ErrAuditNotFound, code: response.CodeNotFound, msg: "audit not found"},
	{target: service.ErrOrderMismatch, code: response.CodeBadRequest, msg: "order does not match this audit"},
	{target: service.ErrQuoteExpired, code: response.CodeConflict, msg: "price quote has expired, apply the coupon again"},
}

func respondCouponApplyError(c *gin.Context, err error) {
	respondWithMappedError(c, err, couponApplyErrorRules, response.CodeInternal, "coupon apply failed")
}

func respondLeadCaptureError(c *gin.Context, err error) {
	respondWithMappedError(c, err, leadCaptureErrorRules, response.CodeInternal, "lead capture failed")
}

func respondOrderCreateError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCreateErrorRules, response.CodeInternal, "order creation failed")
}

func respondPaymentVerifyError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentVerifyErrorRules, response.CodeInternal, "payment verification failed")
}
