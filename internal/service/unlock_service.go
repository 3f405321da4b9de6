package service

import (
	"errors"
	"time"

	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/repository"

	"gorm.io/gorm"
)

// UnlockService is the unlock state machine. Every entry point funnels into
// one settle step whose idempotency anchor is the per-audit redemption row:
// webhook retries, client verify calls, and late lead captures can all race
// and the audit still unlocks exactly once at exactly one price.
type UnlockService struct {
	auditRepo       repository.AuditRepository
	couponRepo      repository.CouponRepository
	reservationRepo repository.ReservationRepository
	redemptionRepo  repository.RedemptionRepository
	atomic          repository.AtomicRunner
}

// NewUnlockService creates the unlock service.
func NewUnlockService(auditRepo repository.AuditRepository, couponRepo repository.CouponRepository, reservationRepo repository.ReservationRepository, redemptionRepo repository.RedemptionRepository, atomic repository.AtomicRunner) *UnlockService {
	return &UnlockService{
		auditRepo:       auditRepo,
		couponRepo:      couponRepo,
		reservationRepo: reservationRepo,
		redemptionRepo:  redemptionRepo,
		atomic:          atomic,
	}
}

// ConsumeReservationForPayment converts a verified payment into the unlocked
// state. Safe to invoke any number of times for the same audit.
func (s *UnlockService) ConsumeReservationForPayment(auditID uint, paymentID, orderID string) error {
	audit, err := s.auditRepo.GetByID(auditID)
	if err != nil {
		return err
	}
	if audit == nil {
		return ErrAuditNotFound
	}
	if audit.IsUnlocked || audit.IsPaid() {
		logger.Debugw("unlock_skip_already_settled", "audit_id", audit.ID)
		return nil
	}
	if audit.OrderID == "" || orderID == "" || audit.OrderID != orderID {
		logger.Warnw("unlock_order_mismatch",
			"audit_id", audit.ID,
			"stored_order_id", audit.OrderID,
			"claimed_order_id", orderID,
		)
		return ErrOrderMismatch
	}

	now := time.Now()
	var reservation *models.CouponReservation
	if audit.CouponID != nil {
		reserved, err := s.reservationRepo.GetReservedByAuditID(audit.ID)
		if err != nil {
			return err
		}
		if reserved != nil {
			if !reserved.IsLive(now) {
				_, _ = s.reservationRepo.MarkExpired(reserved.ID)
				logger.Warnw("unlock_quote_expired",
					"audit_id", audit.ID,
					"reservation_id", reserved.ID,
				)
				return ErrQuoteExpired
			}
			reservation = reserved
		} else {
			// No RESERVED row left. Either the quote lapsed or a racing call
			// already consumed it; only an existing redemption makes this a
			// legitimate re-entry.
			existing, err := s.redemptionRepo.GetByAuditID(audit.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return ErrQuoteExpired
			}
		}
	}

	if err := s.settle(audit, reservation, paymentID, orderID, now); err != nil {
		return err
	}
	logger.Infow("unlock_payment_settled",
		"audit_id", audit.ID,
		"payment_id", paymentID,
		"order_id", orderID,
		"price", audit.FinalPriceInr.String(),
		"lead_captured", audit.HasLead(),
	)
	return nil
}

// FinalizeUnlockAfterLead is the mirror entry point for when the lead arrives
// after a completed payment or a zero-price reservation. It performs the same
// idempotent settle before unlocking, so it is safe to call on every lead
// capture.
func (s *UnlockService) FinalizeUnlockAfterLead(auditID uint) error {
	audit, err := s.auditRepo.GetByID(auditID)
	if err != nil {
		return err
	}
	if audit == nil {
		return ErrAuditNotFound
	}
	if !audit.HasLead() {
		return nil
	}
	now := time.Now()

	if audit.IsUnlocked {
		if audit.FullReport == nil {
			return s.auditRepo.Unlock(audit.ID, "", "", now, audit.FinalPriceInr, buildFullReport(audit, now))
		}
		return nil
	}

	if audit.IsPaid() {
		if err := s.settle(audit, nil, audit.PaymentID, audit.OrderID, now); err != nil {
			return err
		}
		logger.Infow("unlock_finalized_after_lead", "audit_id", audit.ID, "path", "paid")
		return nil
	}

	reserved, err := s.reservationRepo.GetReservedByAuditID(audit.ID)
	if err != nil {
		return err
	}
	if reserved != nil && reserved.IsLive(now) && reserved.QuotedPriceInr.IsZero() {
		if err := s.settle(audit, reserved, "", "", now); err != nil {
			return err
		}
		logger.Infow("unlock_finalized_after_lead", "audit_id", audit.ID, "path", "free_reservation")
		return nil
	}

	existing, err := s.redemptionRepo.GetByAuditID(audit.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.PriceInr.IsZero() {
		if err := s.settle(audit, nil, "", "", now); err != nil {
			return err
		}
		logger.Infow("unlock_finalized_after_lead", "audit_id", audit.ID, "path", "free_redemption")
		return nil
	}

	// Nothing settled at zero and no payment yet; the paid flow unlocks later.
	return nil
}

// settle is the shared consumption step. It creates the redemption if absent
// (re-reading on a duplicate-key race), lets only the creator bump the
// coupon's used count, consumes the reservation, and stamps or unlocks the
// audit depending on whether a lead is present.
func (s *UnlockService) settle(audit *models.Audit, reservation *models.CouponReservation, paymentID, orderID string, now time.Time) error {
	return s.atomic.Do(func(tx *gorm.DB) error {
		audits := s.auditRepo.WithTx(tx)
		redemptions := s.redemptionRepo.WithTx(tx)

		existing, err := redemptions.GetByAuditID(audit.ID)
		if err != nil {
			return err
		}
		created := false
		if existing == nil {
			redemption := &models.CouponRedemption{
				AuditID:   audit.ID,
				CouponID:  audit.CouponID,
				PriceInr:  audit.FinalPriceInr,
				OrderID:   orderID,
				PaymentID: paymentID,
			}
			if reservation != nil {
				reservationID := reservation.ID
				redemption.ReservationID = &reservationID
			}
			err := redemptions.Create(redemption)
			switch {
			case errors.Is(err, repository.ErrDuplicateKey):
				// Lost the race; the winner's row is the truth.
				existing, err = redemptions.GetByAuditID(audit.ID)
				if err != nil {
					return err
				}
				if existing == nil {
					return repository.ErrDuplicateKey
				}
			case err != nil:
				return err
			default:
				created = true
			}
		}

		if created && audit.CouponID != nil {
			if err := s.couponRepo.WithTx(tx).IncrementUsedCount(*audit.CouponID, 1); err != nil {
				return err
			}
		}
		if reservation != nil {
			if _, err := s.reservationRepo.WithTx(tx).Consume(reservation.ID); err != nil {
				return err
			}
		}

		if audit.HasLead() {
			return audits.Unlock(audit.ID, paymentID, orderID, now, audit.FinalPriceInr, buildFullReport(audit, now))
		}
		if paymentID != "" {
			return audits.StampPayment(audit.ID, paymentID, orderID, now)
		}
		return nil
	})
}
