package models

import (
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
)

// CouponReservation ties one coupon to one audit as a time-boxed price quote.
// A partial unique index on (audit_id) WHERE status='reserved' guarantees at
// most one live reservation per audit. Reservations past ExpiresAt are inert
// and must be treated as absent even before the cleanup worker marks them.
type CouponReservation struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                          // primary key
	AuditID        uint      `gorm:"index;not null" json:"audit_id"`                                // reserved audit
	CouponID       uint      `gorm:"index;not null" json:"coupon_id"`                               // reserved coupon
	UsageNumber    int       `gorm:"not null" json:"usage_number"`                                  // coupon-wide ordinal if confirmed
	BucketIndex    int       `gorm:"not null;default:0" json:"bucket_index"`                        // floor((usage_number-1)/bucket_size)
	QuotedPriceInr Money     `gorm:"type:decimal(20,2);not null;default:0" json:"quoted_price_inr"` // quoted price
	Status         string    `gorm:"index;not null" json:"status"`                                  // reserved/consumed/expired/cancelled
	ExpiresAt      time.Time `gorm:"index;not null" json:"expires_at"`                              // quote deadline
	IPHash         string    `gorm:"index;size:64" json:"-"`                                        // per-user limit key
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                                       // creation time
	UpdatedAt      time.Time `json:"updated_at"`                                                    // last update
}

// TableName sets the table name.
func (CouponReservation) TableName() string {
	return "coupon_reservations"
}

// IsLive reports whether the reservation is still RESERVED and unexpired.
func (r *CouponReservation) IsLive(now time.Time) bool {
	return r.Status == constants.ReservationStatusReserved && now.Before(r.ExpiresAt)
}
