package models

import (
	"encoding/json"
	"time"
)

// Coupon is a named pricing policy. UsedCount increments only on confirmed
// redemption, never on reservation.
type Coupon struct {
	ID           uint       `gorm:"primarykey" json:"id"`                                       // primary key
	Code         string     `gorm:"uniqueIndex;size:64;not null" json:"code"`                   // coupon code
	Type         string     `gorm:"not null" json:"type"`                                       // free_unlock/percent_off/flat_off/tiered_price
	Value        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"value"`         // percent or flat amount
	BucketSize   int        `gorm:"not null;default:0" json:"bucket_size"`                      // tiered: usages per price bucket
	Prices       string     `gorm:"type:text" json:"prices"`                                    // tiered: JSON array of bucket prices
	PriceCap     Money      `gorm:"type:decimal(20,2);not null;default:0" json:"price_cap"`     // tiered: price after the last bucket
	UsageLimit   int        `gorm:"not null;default:0" json:"usage_limit"`                      // global cap (0 = unlimited)
	UsedCount    int        `gorm:"not null;default:0" json:"used_count"`                       // confirmed redemptions
	PerUserLimit int        `gorm:"not null;default:0" json:"per_user_limit"`                   // per-user cap (0 = unlimited)
	StartsAt     *time.Time `gorm:"index" json:"starts_at"`                                     // activity window start
	EndsAt       *time.Time `gorm:"index" json:"ends_at"`                                       // activity window end
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`                     // enabled flag
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`                                    // creation time
	UpdatedAt    time.Time  `json:"updated_at"`                                                 // last update
}

// TableName sets the table name.
func (Coupon) TableName() string {
	return "coupons"
}

// TierPrices decodes the tiered price ladder.
func (c *Coupon) TierPrices() ([]Money, error) {
	if c.Prices == "" {
		return nil, nil
	}
	var prices []Money
	if err := json.Unmarshal([]byte(c.Prices), &prices); err != nil {
		return nil, err
	}
	return prices, nil
}
