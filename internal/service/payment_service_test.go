package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/models"
)

const testWebhookSecret = "whsec_test"

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (e *testEnv) newPaymentService() *PaymentService {
	return NewPaymentService(e.auditRepo, e.unlockSvc, nil, "key_test", "secret_test", testWebhookSecret, "INR")
}

func TestWebhookRetryAfterFailedUnlockSucceeds(t *testing.T) {
	env := newTestEnv(t)
	paymentSvc := env.newPaymentService()
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
	if err := env.auditRepo.SetOrder(audit.ID, "order_wh1"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	body := []byte(`{"id":"evt_1","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_wh1","order_id":"order_wh1","amount":39900}}}}`)
	signature := signWebhookBody(body)

	err := paymentSvc.HandleWebhook(context.Background(), body, signature)
	if !errors.Is(err, ErrQuoteExpired) {
		t.Fatalf("first delivery err = %v, want quote expired", err)
	}
	if env.reloadAudit(t, audit.ID).IsUnlocked {
		t.Fatal("audit should stay locked while the quote is stale")
	}

	// The buyer re-applies the coupon, then the gateway redelivers the event.
	if err := env.db.Model(&models.CouponReservation{}).
		Where("id = ?", reservation.ID).
		UpdateColumns(map[string]interface{}{
			"status":     constants.ReservationStatusReserved,
			"expires_at": time.Now().Add(10 * time.Minute),
		}).Error; err != nil {
		t.Fatalf("refresh reservation: %v", err)
	}

	if err := paymentSvc.HandleWebhook(context.Background(), body, signature); err != nil {
		t.Fatalf("redelivery should unlock, got error: %v", err)
	}
	reloaded := env.reloadAudit(t, audit.ID)
	if !reloaded.IsUnlocked {
		t.Fatal("redelivered event should unlock the audit")
	}
	if reloaded.PaymentID != "pay_wh1" {
		t.Fatalf("payment id = %q", reloaded.PaymentID)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	paymentSvc := env.newPaymentService()

	body := []byte(`{"id":"evt_2","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_x","order_id":"order_x","amount":100}}}}`)
	if err := paymentSvc.HandleWebhook(context.Background(), body, "deadbeef"); err == nil {
		t.Fatal("tampered signature should be rejected")
	}
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	env := newTestEnv(t)
	paymentSvc := env.newPaymentService()

	body := []byte(`{"id":"evt_3","event":"refund.processed","payload":{"payment":{"entity":{"id":"pay_y","order_id":"order_y","amount":100}}}}`)
	if err := paymentSvc.HandleWebhook(context.Background(), body, signWebhookBody(body)); err != nil {
		t.Fatalf("unrelated event should be acknowledged, got %v", err)
	}
}
