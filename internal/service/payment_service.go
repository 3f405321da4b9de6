package service

import (
	"context"
	"strings"

	"github.com/sitegrade/sitegrade/internal/cache"
	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/payment/razorpay"
	"github.com/sitegrade/sitegrade/internal/repository"
)

// PaymentService fronts the gateway: order creation, client-side verify, and
// the webhook. Both verify and webhook funnel into the unlock state machine.
type PaymentService struct {
	auditRepo     repository.AuditRepository
	unlockSvc     *UnlockService
	gateway       *razorpay.Client
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
}

// NewPaymentService creates the payment service.
func NewPaymentService(auditRepo repository.AuditRepository, unlockSvc *UnlockService, gateway *razorpay.Client, keyID, keySecret, webhookSecret, currency string) *PaymentService {
	if strings.TrimSpace(currency) == "" {
		currency = "INR"
	}
	return &PaymentService{
		auditRepo:     auditRepo,
		unlockSvc:     unlockSvc,
		gateway:       gateway,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		currency:      currency,
	}
}

// OrderResult is the created order handed to the client checkout.
type OrderResult struct {
	OrderID     string
	AmountPaise int64
	Currency    string
	KeyID       string
}

// CreateOrder creates a gateway order for the audit's current final price.
func (s *PaymentService) CreateOrder(ctx context.Context, publicID string) (*OrderResult, error) {
	audit, err := s.auditRepo.GetByPublicID(strings.TrimSpace(publicID))
	if err != nil {
		return nil, err
	}
	if audit == nil {
		return nil, ErrAuditNotFound
	}
	if audit.IsUnlocked {
		return nil, ErrAlreadyUnlocked
	}
	if audit.FinalPriceInr.IsZero() {
		return nil, ErrOrderNotRequired
	}

	order, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderInput{
		AmountPaise: audit.FinalPriceInr.Paise(),
		Currency:    s.currency,
		Receipt:     audit.PublicID,
		Notes:       map[string]string{"audit_id": audit.PublicID},
	})
	if err != nil {
		logger.Errorw("payment_order_create_failed", "audit_id", audit.ID, "error", err)
		return nil, err
	}
	if err := s.auditRepo.SetOrder(audit.ID, order.ID); err != nil {
		return nil, err
	}
	logger.Infow("payment_order_created",
		"audit_id", audit.ID,
		"order_id", order.ID,
		"amount_paise", order.AmountPaise,
	)
	return &OrderResult{
		OrderID:     order.ID,
		AmountPaise: order.AmountPaise,
		Currency:    s.currency,
		KeyID:       s.keyID,
	}, nil
}

// VerifyAndUnlock is the client-side path: checks the checkout signature and
// consumes the reservation.
func (s *PaymentService) VerifyAndUnlock(publicID, orderID, paymentID, signature string) error {
	audit, err := s.auditRepo.GetByPublicID(strings.TrimSpace(publicID))
	if err != nil {
		return err
	}
	if audit == nil {
		return ErrAuditNotFound
	}
	if err := razorpay.VerifyPaymentSignature(orderID, paymentID, signature, s.keySecret); err != nil {
		logger.Warnw("payment_signature_invalid",
			"audit_id", audit.ID,
			"order_id", orderID,
			"payment_id", paymentID,
		)
		return err
	}
	return s.unlockSvc.ConsumeReservationForPayment(audit.ID, paymentID, orderID)
}

// HandleWebhook is the gateway-side path: verifies the body signature,
// deduplicates by event id, and consumes the reservation for unlock events.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if err := razorpay.VerifyWebhookSignature(body, signature, s.webhookSecret); err != nil {
		logger.Warnw("payment_webhook_signature_invalid", "error", err)
		return err
	}
	event, err := razorpay.ParseWebhookEvent(body)
	if err != nil {
		logger.Warnw("payment_webhook_parse_failed", "error", err)
		return err
	}
	if event.Event != constants.WebhookEventPaymentCaptured && event.Event != constants.WebhookEventOrderPaid {
		logger.Debugw("payment_webhook_event_ignored", "event", event.Event)
		return nil
	}

	seen, err := cache.WebhookSeen(ctx, event.ID)
	if err != nil {
		logger.Warnw("payment_webhook_dedup_failed", "event_id", event.ID, "error", err)
	} else if seen {
		logger.Infow("payment_webhook_duplicate_skipped", "event_id", event.ID)
		return nil
	}

	audit, err := s.auditRepo.GetByOrderID(event.OrderID)
	if err != nil {
		return err
	}
	if audit == nil {
		logger.Warnw("payment_webhook_order_unknown",
			"event_id", event.ID,
			"order_id", event.OrderID,
		)
		return nil
	}
	if err := s.unlockSvc.ConsumeReservationForPayment(audit.ID, event.PaymentID, event.OrderID); err != nil {
		return err
	}

	// Recorded only after a successful unlock so a gateway retry of the same
	// event can recover from a transient failure.
	if _, err := cache.MarkWebhookSeen(ctx, event.ID); err != nil {
		logger.Warnw("payment_webhook_mark_failed", "event_id", event.ID, "error", err)
	}
	return nil
}
