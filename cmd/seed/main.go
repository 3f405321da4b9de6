package main

import (
	"fmt"
	"time"

	"github.com/sitegrade/sitegrade/internal/config"
	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	now := time.Now()
	launchEnd := now.AddDate(0, 3, 0)

	coupons := []models.Coupon{
		{
			// Early-supporter ladder: first bucket free, then step pricing.
			Code:         "ILH",
			Type:         constants.CouponTypeTieredPrice,
			BucketSize:   100,
			Prices:       `["0","99","199"]`,
			PriceCap:     models.NewMoneyFromDecimal(decimal.NewFromInt(299)),
			PerUserLimit: 1,
			IsActive:     true,
		},
		{
			Code:         "LAUNCH50",
			Type:         constants.CouponTypePercentOff,
			Value:        models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
			UsageLimit:   500,
			PerUserLimit: 2,
			StartsAt:     &now,
			EndsAt:       &launchEnd,
			IsActive:     true,
		},
		{
			Code:       "FLAT100",
			Type:       constants.CouponTypeFlatOff,
			Value:      models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
			UsageLimit: 1000,
			IsActive:   true,
		},
		{
			Code:         "PRESSPASS",
			Type:         constants.CouponTypeFreeUnlock,
			UsageLimit:   50,
			PerUserLimit: 1,
			IsActive:     true,
		},
	}

	for _, coupon := range coupons {
		var existing models.Coupon
		if err := models.DB.Where("code = ?", coupon.Code).First(&existing).Error; err != nil {
			if err := models.DB.Create(&coupon).Error; err != nil {
				stdLog.Printf("Failed to create coupon %s: %v", coupon.Code, err)
			} else {
				stdLog.Printf("Created coupon: %s", coupon.Code)
			}
		} else {
			existing.Type = coupon.Type
			existing.Value = coupon.Value
			existing.BucketSize = coupon.BucketSize
			existing.Prices = coupon.Prices
			existing.PriceCap = coupon.PriceCap
			existing.UsageLimit = coupon.UsageLimit
			existing.PerUserLimit = coupon.PerUserLimit
			existing.StartsAt = coupon.StartsAt
			existing.EndsAt = coupon.EndsAt
			existing.IsActive = coupon.IsActive
			if err := models.DB.Save(&existing).Error; err != nil {
				stdLog.Printf("Failed to update coupon %s: %v", coupon.Code, err)
			} else {
				stdLog.Printf("Updated coupon: %s", coupon.Code)
			}
		}
	}

	fmt.Println("\n✅ Seed data created successfully!")
	fmt.Println("Summary:")
	fmt.Println("- ILH        tiered ladder (free first bucket, capped at 299)")
	fmt.Println("- LAUNCH50   50% off, limited window")
	fmt.Println("- FLAT100    flat 100 off")
	fmt.Println("- PRESSPASS  free unlock, 50 uses")
}
