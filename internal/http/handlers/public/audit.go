package public

import (
	"errors"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/http/response"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateAuditRequest is the audit submission payload.
type CreateAuditRequest struct {
	URL string `json:"url" binding:"required"`
}

// CreateAudit guards the submitted URL and queues a new audit.
func (h *Handler) CreateAudit(c *gin.Context) {
	var req CreateAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	audit, err := h.AuditService.Submit(c.Request.Context(), req.URL)
	if err != nil {
		if respondGuardError(c, err) {
			return
		}
		respondError(c, response.CodeInternal, "audit submit failed", err)
		return
	}
	response.Success(c, buildAuditView(audit))
}

// GetAudit returns the audit's status, its preview once scanning is done, and
// the full report once unlocked.
func (h *Handler) GetAudit(c *gin.Context) {
	audit, err := h.AuditService.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrAuditNotFound) {
			response.NotFound(c, "audit not found")
			return
		}
		respondError(c, response.CodeInternal, "audit fetch failed", err)
		return
	}
	response.Success(c, buildAuditView(audit))
}

// buildAuditView shapes an audit for the public API. Locked audits get a
// teaser preview; the full preview and report appear only after unlock.
func buildAuditView(audit *models.Audit) gin.H {
	view := gin.H{
		"id":              audit.PublicID,
		"url":             audit.NormalizedURL,
		"host":            audit.Host,
		"status":          audit.Status,
		"is_unlocked":     audit.IsUnlocked,
		"base_price_inr":  audit.BasePriceInr,
		"final_price_inr": audit.FinalPriceInr,
		"created_at":      audit.CreatedAt,
	}
	if audit.CouponCode != "" {
		view["coupon_code"] = audit.CouponCode
	}
	switch audit.Status {
	case constants.AuditStatusDone:
		view["score_overall"] = audit.ScoreOverall
		view["label"] = audit.Label
		if audit.IsUnlocked {
			view["preview"] = audit.Preview
			view["full_report"] = audit.FullReport
		} else {
			view["preview"] = lockedPreview(audit.Preview)
		}
	case constants.AuditStatusFailed:
		view["scan_error"] = audit.ScanError
	}
	return view
}

// lockedPreview trims the stored preview down to the teaser: sub-scores plus
// the top finding of each list, with totals so the client can show what is
// behind the paywall.
func lockedPreview(preview models.JSON) gin.H {
	if preview == nil {
		return nil
	}
	teaser := gin.H{}
	for _, key := range []string{"overall", "label", "final_url", "mini_scores"} {
		if value, ok := preview[key]; ok {
			teaser[key] = value
		}
	}
	if first, total, ok := firstListItem(preview["critical_issues"]); ok {
		teaser["critical_issues_total"] = total
		if total > 0 {
			teaser["top_critical_issue"] = first
		}
	}
	if first, total, ok := firstListItem(preview["quick_wins"]); ok {
		teaser["quick_wins_total"] = total
		if total > 0 {
			teaser["top_quick_win"] = first
		}
	}
	return teaser
}

func firstListItem(value interface{}) (interface{}, int, bool) {
	switch list := value.(type) {
	case []interface{}:
		if len(list) == 0 {
			return nil, 0, true
		}
		return list[0], len(list), true
	case []string:
		if len(list) == 0 {
			return nil, 0, true
		}
		return list[0], len(list), true
	default:
		return nil, 0, false
	}
}
