package models

import (
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"

	"github.com/google/uuid"
)

// Audit is one scan request. It is created on submission, mutated by the scan
// workers (status/score/preview) and the unlock path (price/payment/report),
// and never deleted: it doubles as the audit trail.
type Audit struct {
	ID            uint       `gorm:"primarykey" json:"-"`                        // primary key
	PublicID      string     `gorm:"uniqueIndex;size:36;not null" json:"id"`     // client-facing id
	RawURL        string     `gorm:"type:text;not null" json:"raw_url"`          // URL as submitted
	NormalizedURL string     `gorm:"type:text;not null" json:"url"`              // guarded, normalized URL
	Host          string     `gorm:"index;size:255" json:"host"`                 // resolved hostname
	Status        string     `gorm:"index;not null" json:"status"`               // queued/running/done/failed
	ScanAttempts  int        `gorm:"not null;default:0" json:"scan_attempts"`    // claim count
	ScanStartedAt *time.Time `gorm:"index" json:"-"`                             // last claim time (stuck detection)
	ScanError     string     `gorm:"type:text" json:"scan_error,omitempty"`      // terminal failure reason
	ScoreOverall  int        `gorm:"not null;default:0" json:"score_overall"`    // 0-100
	Label         string     `gorm:"size:16" json:"label,omitempty"`             // DANGER/WARNING/GOOD/AMAZING
	Preview       JSON       `gorm:"type:text" json:"preview,omitempty"`         // sub-scores + top findings
	FullReport    JSON       `gorm:"type:text" json:"full_report,omitempty"`     // materialized on unlock only
	IsUnlocked    bool       `gorm:"not null;default:false" json:"is_unlocked"`  // report unlocked
	BasePriceInr  Money      `gorm:"type:decimal(20,2);not null;default:0" json:"base_price_inr"`   // list price
	FinalPriceInr Money      `gorm:"type:decimal(20,2);not null;default:0" json:"final_price_inr"`  // quoted/charged price
	CouponCode    string     `gorm:"size:64" json:"coupon_code,omitempty"`       // applied coupon code
	CouponID      *uint      `gorm:"index" json:"-"`                             // applied coupon
	OrderID       string     `gorm:"index;size:64" json:"order_id,omitempty"`    // gateway order id
	PaymentID     string     `gorm:"size:64" json:"payment_id,omitempty"`        // gateway payment id
	PaidAt        *time.Time `gorm:"index" json:"paid_at,omitempty"`             // payment time
	LeadName      string     `gorm:"size:120" json:"-"`                          // captured lead
	LeadEmail     string     `gorm:"index;size:255" json:"-"`                    // captured lead
	LeadPhone     string     `gorm:"size:32" json:"-"`                           // captured lead
	LeadConsentAt *time.Time `json:"-"`                                          // consent timestamp
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                    // creation time
	UpdatedAt     time.Time  `json:"updated_at"`                                 // last update
}

// TableName sets the table name.
func (Audit) TableName() string {
	return "audits"
}

// NewAudit builds a freshly queued audit for a guarded URL.
func NewAudit(rawURL, normalizedURL, host string, basePrice Money) *Audit {
	return &Audit{
		PublicID:      uuid.NewString(),
		RawURL:        rawURL,
		NormalizedURL: normalizedURL,
		Host:          host,
		Status:        constants.AuditStatusQueued,
		BasePriceInr:  basePrice,
		FinalPriceInr: basePrice,
	}
}

// HasLead reports whether a consented lead has been captured.
func (a *Audit) HasLead() bool {
	return a.LeadEmail != "" && a.LeadConsentAt != nil
}

// IsPaid reports whether a payment has been recorded.
func (a *Audit) IsPaid() bool {
	return a.PaidAt != nil
}
