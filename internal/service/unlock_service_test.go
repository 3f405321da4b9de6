package service

import (
	"errors"
	"testing"
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/models"
)

func (e *testEnv) stageReservation(t *testing.T, auditID, couponID uint, price models.Money, expiresAt time.Time) *models.CouponReservation {
	t.Helper()
	reservation := &models.CouponReservation{
		AuditID:        auditID,
		CouponID:       couponID,
		UsageNumber:    1,
		QuotedPriceInr: price,
		Status:         constants.ReservationStatusReserved,
		ExpiresAt:      expiresAt,
	}
	if err := e.reservationRepo.Create(reservation); err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return reservation
}

func TestConsumeReservationForPaymentUnlocks(t *testing.T) {
	env := newTestEnv(t)
	coupon := env.seedCoupon(t, &models.Coupon{
		Code:     "FLAT100",
		Type:     constants.CouponTypeFlatOff,
		Value:    moneyFromString(t, "100"),
		IsActive: true,
	})
	audit := env.seedAudit(t)
	env.captureLead(t, audit.ID)

	price := moneyFromString(t, "399")
	reservation := env.stageReservation(t, audit.ID, coupon.ID, price, time.Now().Add(10*time.Minute))
	if err := env.auditRepo.StampQuote(audit.ID, coupon.ID, coupon.Code, price); err != nil {
		t.Fatalf("stamp quote: %v", err)
	}
	if err := env.auditRepo.SetOrder(audit.ID, "order_abc"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	if err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_abc"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	reloaded := env.reloadAudit(t, audit.ID)
	if !reloaded.IsUnlocked {
		t.Fatal("audit not unlocked")
	}
	if reloaded.PaymentID != "pay_1" {
		t.Fatalf("payment id = %q", reloaded.PaymentID)
	}
	if reloaded.FullReport == nil {
		t.Fatal("full report not materialized")
	}

	updated, err := env.reservationRepo.GetByID(reservation.ID)
	if err != nil || updated == nil {
		t.Fatalf("reload reservation: %v err=%v", updated, err)
	}
	if updated.Status != constants.ReservationStatusConsumed {
		t.Fatalf("reservation status = %q, want consumed", updated.Status)
	}

	redemption, err := env.redemptionRepo.GetByAuditID(audit.ID)
	if err != nil || redemption == nil {
		t.Fatalf("redemption: %v err=%v", redemption, err)
	}
	if redemption.PriceInr.String() != "399.00" {
		t.Fatalf("redemption price = %s", redemption.PriceInr.String())
	}

	reloadedCoupon, err := env.couponRepo.GetByID(coupon.ID)
	if err != nil {
		t.Fatalf("reload coupon: %v", err)
	}
	if reloadedCoupon.UsedCount != 1 {
		t.Fatalf("used count = %d, want 1", reloadedCoupon.UsedCount)
	}
}

func TestConsumeReservationForPaymentIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	coupon := env.seedCoupon(t, &models.Coupon{
		Code:     "FLAT100",
		Type:     constants.CouponTypeFlatOff,
		Value:    moneyFromString(t, "100"),
		IsActive: true,
	})
	audit := env.seedAudit(t)
	env.captureLead(t, audit.ID)

	price := moneyFromString(t, "399")
	env.stageReservation(t, audit.ID, coupon.ID, price, time.Now().Add(10*time.Minute))
	if err := env.auditRepo.StampQuote(audit.ID, coupon.ID, coupon.Code, price); err != nil {
		t.Fatalf("stamp quote: %v", err)
	}
	if err := env.auditRepo.SetOrder(audit.ID, "order_abc"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	// Webhook and client verify both land; the second call is a no-op.
	if err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_abc"); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_abc"); err != nil {
		t.Fatalf("second consume: %v", err)
	}

	var redemptions int64
	if err := env.db.Model(&models.CouponRedemption{}).Where("audit_id = ?", audit.ID).Count(&redemptions).Error; err != nil {
		t.Fatalf("count redemptions: %v", err)
	}
	if redemptions != 1 {
		t.Fatalf("redemptions = %d, want 1", redemptions)
	}

	reloadedCoupon, err := env.couponRepo.GetByID(coupon.ID)
	if err != nil {
		t.Fatalf("reload coupon: %v", err)
	}
	if reloadedCoupon.UsedCount != 1 {
		t.Fatalf("used count = %d, want 1", reloadedCoupon.UsedCount)
	}
}

func TestConsumeExpiredReservationFails(t *testing.T) {
	env := newTestEnv(t)
	coupon := env.seedCoupon(t, &models.Coupon{
		Code:     "FLAT100",
		Type:     constants.CouponTypeFlatOff,
		Value:    moneyFromString(t, "100"),
		IsActive: true,
	})
	audit := env.seedAudit(t)
	env.captureLead(t, audit.ID)

	price := moneyFromString(t, "399")
	reservation := env.stageReservation(t, audit.ID, coupon.ID, price, time.Now().Add(-time.Minute))
	if err := env.auditRepo.StampQuote(audit.ID, coupon.ID, coupon.Code, price); err != nil {
		t.Fatalf("stamp quote: %v", err)
	}
	if err := env.auditRepo.SetOrder(audit.ID, "order_abc"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_abc")
	if !errors.Is(err, ErrQuoteExpired) {
		t.Fatalf("err = %v, want ErrQuoteExpired", err)
	}

	updated, err := env.reservationRepo.GetByID(reservation.ID)
	if err != nil || updated == nil {
		t.Fatalf("reload reservation: %v err=%v", updated, err)
	}
	if updated.Status != constants.ReservationStatusExpired {
		t.Fatalf("reservation status = %q, want expired", updated.Status)
	}
	if env.reloadAudit(t, audit.ID).IsUnlocked {
		t.Fatal("audit must stay locked")
	}
}

func TestConsumeRejectsOrderMismatch(t *testing.T) {
	env := newTestEnv(t)
	audit := env.seedAudit(t)
	env.captureLead(t, audit.ID)
	if err := env.auditRepo.SetOrder(audit.ID, "order_abc"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_other")
	if !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("err = %v, want ErrOrderMismatch", err)
	}
	err = env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "")
	if !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("empty order err = %v, want ErrOrderMismatch", err)
	}
}

func TestConsumeFullPriceWithoutCoupon(t *testing.T) {
	env := newTestEnv(t)
	audit := env.seedAudit(t)
	env.captureLead(t, audit.ID)
	if err := env.auditRepo.SetOrder(audit.ID, "order_abc"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	if err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_abc"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	reloaded := env.reloadAudit(t, audit.ID)
	if !reloaded.IsUnlocked {
		t.Fatal("audit not unlocked")
	}

	redemption, err := env.redemptionRepo.GetByAuditID(audit.ID)
	if err != nil || redemption == nil {
		t.Fatalf("redemption: %v err=%v", redemption, err)
	}
	if redemption.CouponID != nil {
		t.Fatal("full-price redemption must not reference a coupon")
	}
	if redemption.PriceInr.String() != "499.00" {
		t.Fatalf("redemption price = %s, want 499.00", redemption.PriceInr.String())
	}
}

func TestPaidWithoutLeadUnlocksOnLeadCapture(t *testing.T) {
	env := newTestEnv(t)
	audit := env.seedAudit(t)
	if err := env.auditRepo.SetOrder(audit.ID, "order_abc"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	// Payment lands before the lead: payment fields are stamped but the
	// report stays locked.
	if err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_abc"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	reloaded := env.reloadAudit(t, audit.ID)
	if reloaded.IsUnlocked {
		t.Fatal("must not unlock before the lead is captured")
	}
	if !reloaded.IsPaid() {
		t.Fatal("payment not stamped")
	}

	env.captureLead(t, audit.ID)
	if err := env.unlockSvc.FinalizeUnlockAfterLead(audit.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	reloaded = env.reloadAudit(t, audit.ID)
	if !reloaded.IsUnlocked {
		t.Fatal("audit not unlocked after lead capture")
	}
	if reloaded.FullReport == nil {
		t.Fatal("full report not materialized")
	}
}

func TestFinalizeWithoutLeadIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	audit := env.seedAudit(t)

	if err := env.unlockSvc.FinalizeUnlockAfterLead(audit.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if env.reloadAudit(t, audit.ID).IsUnlocked {
		t.Fatal("audit must stay locked without a lead")
	}
}

func TestFullReportCarriesPreviewAndURL(t *testing.T) {
	env := newTestEnv(t)
	audit := env.seedAudit(t)
	preview := models.JSON{
		"overall":     72,
		"label":       constants.LabelGood,
		"mini_scores": map[string]interface{}{"seo": 80},
	}
	if err := env.auditRepo.MarkDone(audit.ID, 72, constants.LabelGood, preview); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	env.captureLead(t, audit.ID)
	if err := env.auditRepo.SetOrder(audit.ID, "order_abc"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	if err := env.unlockSvc.ConsumeReservationForPayment(audit.ID, "pay_1", "order_abc"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	reloaded := env.reloadAudit(t, audit.ID)
	if reloaded.FullReport == nil {
		t.Fatal("full report missing")
	}
	if reloaded.FullReport["url"] != audit.NormalizedURL {
		t.Fatalf("report url = %v", reloaded.FullReport["url"])
	}
	if _, ok := reloaded.FullReport["unlocked_at"]; !ok {
		t.Fatal("report missing unlocked_at")
	}
	if _, ok := reloaded.FullReport["mini_scores"]; !ok {
		t.Fatal("report missing preview content")
	}
}
