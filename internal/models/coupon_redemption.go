package models

import "time"

// CouponRedemption is the durable, one-per-audit record of a confirmed price.
// The unique index on AuditID is the idempotency anchor that makes consumption
// safe to retry: concurrent consumers race on the insert, the loser re-reads
// the winner's row, and only the creator increments the coupon's used count.
type CouponRedemption struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                         // primary key
	AuditID       uint      `gorm:"uniqueIndex;not null" json:"audit_id"`                         // one per audit, ever
	CouponID      *uint     `gorm:"index" json:"coupon_id,omitempty"`                             // nil on the full-price path
	ReservationID *uint     `gorm:"index" json:"reservation_id,omitempty"`                        // consumed reservation
	PriceInr      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"price_inr"`       // confirmed price
	OrderID       string    `gorm:"size:64" json:"order_id,omitempty"`                            // gateway order id
	PaymentID     string    `gorm:"size:64" json:"payment_id,omitempty"`                          // gateway payment id
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                      // confirmation time
}

// TableName sets the table name.
func (CouponRedemption) TableName() string {
	return "coupon_redemptions"
}
