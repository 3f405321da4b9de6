package repository

import (
	"errors"

	"github.com/sitegrade/sitegrade/internal/models"

	"gorm.io/gorm"
)

// RedemptionRepository is the coupon-redemption data-access interface.
type RedemptionRepository interface {
	Create(redemption *models.CouponRedemption) error
	GetByAuditID(auditID uint) (*models.CouponRedemption, error)
	WithTx(tx *gorm.DB) *GormRedemptionRepository
}

// GormRedemptionRepository is the GORM implementation.
type GormRedemptionRepository struct {
	db *gorm.DB
}

// NewRedemptionRepository creates a redemption repository.
func NewRedemptionRepository(db *gorm.DB) *GormRedemptionRepository {
	return &GormRedemptionRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormRedemptionRepository) WithTx(tx *gorm.DB) *GormRedemptionRepository {
	if tx == nil {
		return r
	}
	return &GormRedemptionRepository{db: tx}
}

// Create persists a redemption. The unique index on audit_id makes a second
// redemption for the same audit fail with ErrDuplicateKey, which callers treat
// as "already redeemed" and re-read.
func (r *GormRedemptionRepository) Create(redemption *models.CouponRedemption) error {
	if err := r.db.Create(redemption).Error; err != nil {
		return translateDuplicate(err)
	}
	return nil
}

// GetByAuditID fetches the redemption recorded for an audit, nil when none.
func (r *GormRedemptionRepository) GetByAuditID(auditID uint) (*models.CouponRedemption, error) {
	var redemption models.CouponRedemption
	if err := r.db.Where("audit_id = ?", auditID).First(&redemption).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &redemption, nil
}
