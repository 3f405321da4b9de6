package public

import (
	"github.com/sitegrade/sitegrade/internal/http/response"
	"github.com/sitegrade/sitegrade/internal/service"

	"github.com/gin-gonic/gin"
)

// CaptureLeadRequest is the lead-capture payload.
type CaptureLeadRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email" binding:"required"`
	Phone   string `json:"phone"`
	Consent bool   `json:"consent"`
}

// CaptureLead stores the lead on the audit. When the price is already settled
// at zero, or the audit is paid and waiting on identity, this call unlocks.
func (h *Handler) CaptureLead(c *gin.Context) {
	var req CaptureLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	audit, err := h.AuditService.CaptureLead(c.Param("id"), service.LeadInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Consent: req.Consent,
	})
	if err != nil {
		respondLeadCaptureError(c, err)
		return
	}
	response.Success(c, buildAuditView(audit))
}
