package public

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sitegrade/sitegrade/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ApplyCouponRequest is the coupon application payload.
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// ApplyCoupon quotes and reserves a price for the audit. Re-applying while a
// quote is live returns the same quote.
func (h *Handler) ApplyCoupon(c *gin.Context) {
	var req ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	result, err := h.CouponService.ApplyCoupon(c.Param("id"), req.Code, hashClientIP(c.ClientIP()))
	if err != nil {
		respondCouponApplyError(c, err)
		return
	}
	data := gin.H{
		"quoted_price_inr": result.QuotedPrice,
		"coupon_code":      result.CouponCode,
		"unlocked":         result.Unlocked,
	}
	if result.ExpiresAt != nil {
		data["expires_at"] = result.ExpiresAt
	}
	response.Success(c, data)
}

// hashClientIP keys per-user coupon limits without storing raw addresses.
func hashClientIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
