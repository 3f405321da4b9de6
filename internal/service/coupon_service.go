package service

import (
	"errors"
	"strings"
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/queue"
	"github.com/sitegrade/sitegrade/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultReservationTTL = 15 * time.Minute

// CouponService is the reservation engine: it quotes a price for an audit,
// holds it behind a time-boxed reservation, and never touches the coupon's
// used count (that belongs to confirmed redemption).
type CouponService struct {
	auditRepo       repository.AuditRepository
	couponRepo      repository.CouponRepository
	reservationRepo repository.ReservationRepository
	atomic          repository.AtomicRunner
	queueClient     *queue.Client
	unlockSvc       *UnlockService
	reservationTTL  time.Duration
}

// NewCouponService creates the coupon service.
func NewCouponService(auditRepo repository.AuditRepository, couponRepo repository.CouponRepository, reservationRepo repository.ReservationRepository, atomic repository.AtomicRunner, queueClient *queue.Client, unlockSvc *UnlockService, reservationTTL time.Duration) *CouponService {
	if reservationTTL <= 0 {
		reservationTTL = defaultReservationTTL
	}
	return &CouponService{
		auditRepo:       auditRepo,
		couponRepo:      couponRepo,
		reservationRepo: reservationRepo,
		atomic:          atomic,
		queueClient:     queueClient,
		unlockSvc:       unlockSvc,
		reservationTTL:  reservationTTL,
	}
}

// ApplyCouponResult is the quote returned to the client.
type ApplyCouponResult struct {
	QuotedPrice models.Money
	CouponCode  string
	ExpiresAt   *time.Time
	Unlocked    bool
}

// ApplyCoupon quotes and reserves a price for the audit. Repeated calls are
// idempotent: an already-unlocked audit returns its settled price, and an
// audit holding a live reservation returns that quote unchanged.
func (s *CouponService) ApplyCoupon(publicID, code, ipHash string) (*ApplyCouponResult, error) {
	audit, err := s.auditRepo.GetByPublicID(strings.TrimSpace(publicID))
	if err != nil {
		return nil, err
	}
	if audit == nil {
		return nil, ErrAuditNotFound
	}
	if audit.IsUnlocked {
		return &ApplyCouponResult{
			QuotedPrice: audit.FinalPriceInr,
			CouponCode:  audit.CouponCode,
			Unlocked:    true,
		}, nil
	}

	now := time.Now()
	if active, err := s.reservationRepo.GetActiveByAuditID(audit.ID, now); err != nil {
		return nil, err
	} else if active != nil {
		expiresAt := active.ExpiresAt
		return &ApplyCouponResult{
			QuotedPrice: active.QuotedPriceInr,
			CouponCode:  audit.CouponCode,
			ExpiresAt:   &expiresAt,
		}, nil
	}

	// An aged RESERVED row still holds the per-audit slot until a cleanup
	// pass marks it. Expire it here so a fresh quote can land.
	if stale, err := s.reservationRepo.GetReservedByAuditID(audit.ID); err != nil {
		return nil, err
	} else if stale != nil {
		if _, err := s.reservationRepo.MarkExpired(stale.ID); err != nil {
			return nil, err
		}
		logger.Infow("coupon_stale_reservation_expired",
			"audit_id", audit.ID,
			"reservation_id", stale.ID,
		)
	}

	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, ErrCouponInvalid
	}
	coupon, err := s.couponRepo.GetByCode(trimmed)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	if err := s.validateCoupon(coupon, ipHash, now); err != nil {
		return nil, err
	}

	activeCount, err := s.reservationRepo.CountActiveByCouponID(coupon.ID, now)
	if err != nil {
		return nil, err
	}
	// Optimistic, non-locking estimate. Concurrent applies may quote into the
	// same bucket; used_count stays exact because only confirmation bumps it.
	nextUsageNumber := coupon.UsedCount + int(activeCount) + 1

	price, bucketIndex, err := s.quotePrice(coupon, audit.BasePriceInr, nextUsageNumber)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.reservationTTL)
	reservation := &models.CouponReservation{
		AuditID:        audit.ID,
		CouponID:       coupon.ID,
		UsageNumber:    nextUsageNumber,
		BucketIndex:    bucketIndex,
		QuotedPriceInr: price,
		Status:         constants.ReservationStatusReserved,
		ExpiresAt:      expiresAt,
		IPHash:         ipHash,
	}
	err = s.atomic.Do(func(tx *gorm.DB) error {
		if err := s.reservationRepo.WithTx(tx).Create(reservation); err != nil {
			return err
		}
		return s.auditRepo.WithTx(tx).StampQuote(audit.ID, coupon.ID, coupon.Code, price)
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		// A concurrent apply reserved first; its quote stands.
		active, readErr := s.reservationRepo.GetActiveByAuditID(audit.ID, now)
		if readErr != nil {
			return nil, readErr
		}
		if active != nil {
			activeExpiry := active.ExpiresAt
			return &ApplyCouponResult{
				QuotedPrice: active.QuotedPriceInr,
				CouponCode:  coupon.Code,
				ExpiresAt:   &activeExpiry,
			}, nil
		}
		// The winning reservation already lapsed; the caller re-applies for a
		// fresh quote.
		return nil, ErrQuoteExpired
	}
	if err != nil {
		return nil, err
	}

	if enqueueErr := s.queueClient.EnqueueReservationExpire(queue.ReservationExpirePayload{
		ReservationID: reservation.ID,
	}, s.reservationTTL); enqueueErr != nil {
		logger.Warnw("coupon_expire_enqueue_failed",
			"reservation_id", reservation.ID,
			"error", enqueueErr,
		)
	}

	logger.Infow("coupon_reserved",
		"audit_id", audit.ID,
		"coupon_code", coupon.Code,
		"usage_number", nextUsageNumber,
		"bucket_index", bucketIndex,
		"quoted_price", price.String(),
	)

	if price.IsZero() && audit.HasLead() {
		if err := s.unlockSvc.FinalizeUnlockAfterLead(audit.ID); err != nil {
			return nil, err
		}
		return &ApplyCouponResult{
			QuotedPrice: price,
			CouponCode:  coupon.Code,
			Unlocked:    true,
		}, nil
	}

	return &ApplyCouponResult{
		QuotedPrice: price,
		CouponCode:  coupon.Code,
		ExpiresAt:   &expiresAt,
	}, nil
}

// validateCoupon checks the activity window and usage limits. The global
// usage limit is skipped for TIERED_PRICE, which self-limits via its cap.
func (s *CouponService) validateCoupon(coupon *models.Coupon, ipHash string, now time.Time) error {
	if !coupon.IsActive {
		return ErrCouponInactive
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return ErrCouponNotStarted
	}
	if coupon.EndsAt != nil && now.After(*coupon.EndsAt) {
		return ErrCouponExpired
	}
	isTiered := strings.EqualFold(coupon.Type, constants.CouponTypeTieredPrice)
	if !isTiered && coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return ErrCouponUsageLimit
	}
	if coupon.PerUserLimit > 0 && ipHash != "" {
		count, err := s.reservationRepo.CountByCouponAndIPHash(coupon.ID, ipHash)
		if err != nil {
			return err
		}
		if int(count) >= coupon.PerUserLimit {
			return ErrCouponPerUserLimit
		}
	}
	return nil
}

// quotePrice computes the reserved price for the given usage number.
func (s *CouponService) quotePrice(coupon *models.Coupon, basePrice models.Money, usageNumber int) (models.Money, int, error) {
	switch strings.ToLower(strings.TrimSpace(coupon.Type)) {
	case constants.CouponTypeTieredPrice:
		if coupon.BucketSize <= 0 {
			return models.Money{}, 0, ErrCouponInvalid
		}
		bucketIndex := (usageNumber - 1) / coupon.BucketSize
		prices, err := coupon.TierPrices()
		if err != nil {
			return models.Money{}, 0, ErrCouponInvalid
		}
		if bucketIndex < len(prices) {
			return prices[bucketIndex], bucketIndex, nil
		}
		return coupon.PriceCap, bucketIndex, nil
	case constants.CouponTypePercentOff:
		if coupon.Value.Decimal.LessThanOrEqual(decimal.Zero) {
			return models.Money{}, 0, ErrCouponInvalid
		}
		percent := coupon.Value.Decimal.Div(decimal.NewFromInt(100))
		discounted := basePrice.Decimal.Sub(basePrice.Decimal.Mul(percent))
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}
		return models.NewMoneyFromDecimal(discounted), 0, nil
	case constants.CouponTypeFlatOff:
		if coupon.Value.Decimal.LessThanOrEqual(decimal.Zero) {
			return models.Money{}, 0, ErrCouponInvalid
		}
		discounted := basePrice.Decimal.Sub(coupon.Value.Decimal)
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}
		return models.NewMoneyFromDecimal(discounted), 0, nil
	case constants.CouponTypeFreeUnlock:
		return models.NewMoneyFromInt(0), 0, nil
	default:
		return models.Money{}, 0, ErrCouponInvalid
	}
}
