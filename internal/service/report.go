package service

import (
	"time"

	"github.com/sitegrade/sitegrade/internal/models"
)

// buildFullReport materializes the unlocked report from the scan preview.
// The preview already carries the whole analysis; the full report pins it
// with the audited URL and the unlock time.
func buildFullReport(audit *models.Audit, now time.Time) models.JSON {
	report := models.JSON{}
	for key, value := range audit.Preview {
		report[key] = value
	}
	report["url"] = audit.NormalizedURL
	report["score_overall"] = audit.ScoreOverall
	report["unlocked_at"] = now.UTC().Format(time.RFC3339)
	return report
}
