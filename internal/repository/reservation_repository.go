package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/models"

	"gorm.io/gorm"
)

// ErrDuplicateKey marks an insert that collided with a uniqueness constraint.
// Callers use it to detect lost idempotency races and re-read the winner.
var ErrDuplicateKey = errors.New("duplicate key")

// ReservationRepository is the coupon-reservation data-access interface.
type ReservationRepository interface {
	Create(reservation *models.CouponReservation) error
	GetByID(id uint) (*models.CouponReservation, error)
	GetActiveByAuditID(auditID uint, now time.Time) (*models.CouponReservation, error)
	GetReservedByAuditID(auditID uint) (*models.CouponReservation, error)
	CountActiveByCouponID(couponID uint, now time.Time) (int64, error)
	CountByCouponAndIPHash(couponID uint, ipHash string) (int64, error)
	Consume(id uint) (bool, error)
	MarkExpired(id uint) (bool, error)
	ExpireStale(now time.Time) (int64, error)
	WithTx(tx *gorm.DB) *GormReservationRepository
}

// GormReservationRepository is the GORM implementation.
type GormReservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository creates a reservation repository.
func NewReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormReservationRepository) WithTx(tx *gorm.DB) *GormReservationRepository {
	if tx == nil {
		return r
	}
	return &GormReservationRepository{db: tx}
}

// Create persists a reservation. The partial unique index on
// (audit_id) WHERE status='reserved' makes a second live reservation for the
// same audit fail with ErrDuplicateKey.
func (r *GormReservationRepository) Create(reservation *models.CouponReservation) error {
	if err := r.db.Create(reservation).Error; err != nil {
		return translateDuplicate(err)
	}
	return nil
}

// GetByID fetches a reservation by primary key.
func (r *GormReservationRepository) GetByID(id uint) (*models.CouponReservation, error) {
	var reservation models.CouponReservation
	if err := r.db.First(&reservation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// GetActiveByAuditID returns the audit's live reservation, treating expired
// rows as absent even before the cleanup worker marks them.
func (r *GormReservationRepository) GetActiveByAuditID(auditID uint, now time.Time) (*models.CouponReservation, error) {
	var reservation models.CouponReservation
	err := r.db.
		Where("audit_id = ? AND status = ? AND expires_at > ?", auditID, constants.ReservationStatusReserved, now).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// GetReservedByAuditID returns the audit's RESERVED row regardless of expiry.
// The unlock path needs the expired-but-unmarked case to fail with a quote
// error instead of silently pricing full.
func (r *GormReservationRepository) GetReservedByAuditID(auditID uint) (*models.CouponReservation, error) {
	var reservation models.CouponReservation
	err := r.db.
		Where("audit_id = ? AND status = ?", auditID, constants.ReservationStatusReserved).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// CountActiveByCouponID counts live reservations holding slots on a coupon.
func (r *GormReservationRepository) CountActiveByCouponID(couponID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.CouponReservation{}).
		Where("coupon_id = ? AND status = ? AND expires_at > ?", couponID, constants.ReservationStatusReserved, now).
		Count(&count).Error
	return count, err
}

// CountByCouponAndIPHash counts reservations a single caller has taken or
// consumed on a coupon, for the per-user limit.
func (r *GormReservationRepository) CountByCouponAndIPHash(couponID uint, ipHash string) (int64, error) {
	var count int64
	err := r.db.Model(&models.CouponReservation{}).
		Where("coupon_id = ? AND ip_hash = ? AND status IN ?", couponID, ipHash, []string{
			constants.ReservationStatusReserved,
			constants.ReservationStatusConsumed,
		}).
		Count(&count).Error
	return count, err
}

// Consume flips a reservation RESERVED -> CONSUMED. Returns false when the
// reservation was no longer RESERVED, so two racing consumers cannot both
// win.
func (r *GormReservationRepository) Consume(id uint) (bool, error) {
	result := r.db.Model(&models.CouponReservation{}).
		Where("id = ? AND status = ?", id, constants.ReservationStatusReserved).
		UpdateColumn("status", constants.ReservationStatusConsumed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkExpired flips a reservation RESERVED -> EXPIRED.
func (r *GormReservationRepository) MarkExpired(id uint) (bool, error) {
	result := r.db.Model(&models.CouponReservation{}).
		Where("id = ? AND status = ?", id, constants.ReservationStatusReserved).
		UpdateColumn("status", constants.ReservationStatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ExpireStale marks every aged RESERVED row EXPIRED (cleanup pass).
func (r *GormReservationRepository) ExpireStale(now time.Time) (int64, error) {
	result := r.db.Model(&models.CouponReservation{}).
		Where("status = ? AND expires_at <= ?", constants.ReservationStatusReserved, now).
		UpdateColumn("status", constants.ReservationStatusExpired)
	return result.RowsAffected, result.Error
}

// translateDuplicate normalizes driver-specific unique-violation errors.
func translateDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "duplicate key") ||
		strings.Contains(message, "constraint failed") {
		return ErrDuplicateKey
	}
	return err
}
