package repository

import (
	"testing"
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func money(t *testing.T, s string) models.Money {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse money %q: %v", s, err)
	}
	return models.NewMoneyFromDecimal(d)
}

func seedAudit(t *testing.T, db *gorm.DB) *models.Audit {
	t.Helper()
	audit := models.NewAudit("example.com", "https://example.com/", "example.com", money(t, "499"))
	if err := NewAuditRepository(db).Create(audit); err != nil {
		t.Fatalf("create audit: %v", err)
	}
	return audit
}

func TestClaimNextEligible(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db)
	audit := seedAudit(t, db)

	stuckBefore := time.Now().Add(-time.Minute)

	claimed, err := repo.ClaimNextEligible(stuckBefore, 3)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != audit.ID {
		t.Fatalf("expected to claim audit %d, got %+v", audit.ID, claimed)
	}
	if claimed.Status != constants.AuditStatusRunning {
		t.Fatalf("claimed status = %q", claimed.Status)
	}
	if claimed.ScanAttempts != 1 {
		t.Fatalf("claimed attempts = %d", claimed.ScanAttempts)
	}

	// The row is RUNNING with a fresh start time; a second poll sees nothing.
	again, err := repo.ClaimNextEligible(stuckBefore, 3)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no claim, got audit %d", again.ID)
	}
}

func TestClaimReclaimsStuckRunning(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db)
	audit := seedAudit(t, db)

	staleStart := time.Now().Add(-2 * time.Minute)
	err := db.Model(&models.Audit{}).Where("id = ?", audit.ID).Updates(map[string]interface{}{
		"status":          constants.AuditStatusRunning,
		"scan_started_at": staleStart,
		"scan_attempts":   1,
	}).Error
	if err != nil {
		t.Fatalf("stage stuck audit: %v", err)
	}

	claimed, err := repo.ClaimNextEligible(time.Now().Add(-time.Minute), 3)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected to reclaim the stuck audit")
	}
	if claimed.ScanAttempts != 2 {
		t.Fatalf("attempts after reclaim = %d", claimed.ScanAttempts)
	}
}

func TestClaimRespectsRetryBudget(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db)
	audit := seedAudit(t, db)

	err := db.Model(&models.Audit{}).Where("id = ?", audit.ID).Updates(map[string]interface{}{
		"status":          constants.AuditStatusRunning,
		"scan_started_at": time.Now().Add(-time.Hour),
		"scan_attempts":   3,
	}).Error
	if err != nil {
		t.Fatalf("stage exhausted audit: %v", err)
	}

	claimed, err := repo.ClaimNextEligible(time.Now().Add(-time.Minute), 3)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claim past the retry budget, got audit %d", claimed.ID)
	}
}

func TestClaimOrdersByID(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db)
	first := seedAudit(t, db)
	seedAudit(t, db)

	claimed, err := repo.ClaimNextEligible(time.Now().Add(-time.Minute), 3)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest audit %d first, got %+v", first.ID, claimed)
	}
}

func TestReservationActiveUniquePerAudit(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	audit := seedAudit(t, db)

	expires := time.Now().Add(15 * time.Minute)
	first := &models.CouponReservation{
		AuditID:        audit.ID,
		CouponID:       1,
		UsageNumber:    1,
		QuotedPriceInr: money(t, "249"),
		Status:         constants.ReservationStatusReserved,
		ExpiresAt:      expires,
	}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first reservation: %v", err)
	}

	second := &models.CouponReservation{
		AuditID:        audit.ID,
		CouponID:       2,
		UsageNumber:    1,
		QuotedPriceInr: money(t, "0"),
		Status:         constants.ReservationStatusReserved,
		ExpiresAt:      expires,
	}
	if err := repo.Create(second); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey for second live reservation, got %v", err)
	}

	// Once the first is no longer RESERVED the audit can reserve again.
	ok, err := repo.MarkExpired(first.ID)
	if err != nil || !ok {
		t.Fatalf("mark expired: ok=%v err=%v", ok, err)
	}
	if err := repo.Create(second); err != nil {
		t.Fatalf("create after expiry: %v", err)
	}
}

func TestReservationConsumeIsConditional(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	audit := seedAudit(t, db)

	reservation := &models.CouponReservation{
		AuditID:        audit.ID,
		CouponID:       1,
		UsageNumber:    1,
		QuotedPriceInr: money(t, "249"),
		Status:         constants.ReservationStatusReserved,
		ExpiresAt:      time.Now().Add(15 * time.Minute),
	}
	if err := repo.Create(reservation); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	ok, err := repo.Consume(reservation.ID)
	if err != nil || !ok {
		t.Fatalf("first consume: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Consume(reservation.ID)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if ok {
		t.Fatal("second consume should not win")
	}
}

func TestGetActiveByAuditIDIgnoresExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	audit := seedAudit(t, db)

	reservation := &models.CouponReservation{
		AuditID:        audit.ID,
		CouponID:       1,
		UsageNumber:    1,
		QuotedPriceInr: money(t, "249"),
		Status:         constants.ReservationStatusReserved,
		ExpiresAt:      time.Now().Add(-time.Second),
	}
	if err := repo.Create(reservation); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	got, err := repo.GetActiveByAuditID(audit.ID, time.Now())
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got != nil {
		t.Fatalf("aged reservation must read as absent, got %+v", got)
	}
}

func TestExpireStale(t *testing.T) {
	db := newTestDB(t)
	repo := NewReservationRepository(db)
	first := seedAudit(t, db)
	second := seedAudit(t, db)

	stale := &models.CouponReservation{
		AuditID:   first.ID,
		CouponID:  1,
		Status:    constants.ReservationStatusReserved,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := &models.CouponReservation{
		AuditID:   second.ID,
		CouponID:  1,
		Status:    constants.ReservationStatusReserved,
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := repo.Create(stale); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	if err := repo.Create(live); err != nil {
		t.Fatalf("create live: %v", err)
	}

	n, err := repo.ExpireStale(time.Now())
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d rows, want 1", n)
	}

	got, err := repo.GetByID(live.ID)
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	if got.Status != constants.ReservationStatusReserved {
		t.Fatalf("live reservation status = %q", got.Status)
	}
}

func TestRedemptionUniquePerAudit(t *testing.T) {
	db := newTestDB(t)
	repo := NewRedemptionRepository(db)
	audit := seedAudit(t, db)

	couponID := uint(1)
	first := &models.CouponRedemption{
		AuditID:  audit.ID,
		CouponID: &couponID,
		PriceInr: money(t, "249"),
	}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create redemption: %v", err)
	}

	dup := &models.CouponRedemption{
		AuditID:  audit.ID,
		PriceInr: money(t, "499"),
	}
	if err := repo.Create(dup); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := repo.GetByAuditID(audit.ID)
	if err != nil {
		t.Fatalf("get by audit: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("re-read should return the winner, got %+v", got)
	}
}

func TestCouponGetByCodeNormalizes(t *testing.T) {
	db := newTestDB(t)
	repo := NewCouponRepository(db)

	coupon := &models.Coupon{
		Code:     "LAUNCH50",
		Type:     constants.CouponTypePercentOff,
		Value:    money(t, "50"),
		IsActive: true,
	}
	if err := repo.Create(coupon); err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	got, err := repo.GetByCode("  launch50 ")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got == nil || got.ID != coupon.ID {
		t.Fatalf("lookup failed, got %+v", got)
	}
}

func TestIncrementUsedCount(t *testing.T) {
	db := newTestDB(t)
	repo := NewCouponRepository(db)

	coupon := &models.Coupon{
		Code:     "ILH",
		Type:     constants.CouponTypeTieredPrice,
		IsActive: true,
	}
	if err := repo.Create(coupon); err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	if err := repo.IncrementUsedCount(coupon.ID, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := repo.IncrementUsedCount(coupon.ID, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}

	got, err := repo.GetByID(coupon.ID)
	if err != nil {
		t.Fatalf("get coupon: %v", err)
	}
	if got.UsedCount != 2 {
		t.Fatalf("used count = %d, want 2", got.UsedCount)
	}
}
