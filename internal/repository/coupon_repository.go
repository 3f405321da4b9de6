package repository

import (
	"errors"
	"strings"

	"github.com/sitegrade/sitegrade/internal/models"

	"gorm.io/gorm"
)

// CouponRepository is the coupon data-access interface.
type CouponRepository interface {
	GetByID(id uint) (*models.Coupon, error)
	GetByCode(code string) (*models.Coupon, error)
	Create(coupon *models.Coupon) error
	Update(coupon *models.Coupon) error
	IncrementUsedCount(id uint, delta int) error
	WithTx(tx *gorm.DB) *GormCouponRepository
}

// GormCouponRepository is the GORM implementation.
type GormCouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository creates a coupon repository.
func NewCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormCouponRepository) WithTx(tx *gorm.DB) *GormCouponRepository {
	if tx == nil {
		return r
	}
	return &GormCouponRepository{db: tx}
}

// GetByID fetches a coupon by primary key.
func (r *GormCouponRepository) GetByID(id uint) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.First(&coupon, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// GetByCode fetches a coupon by normalized code.
func (r *GormCouponRepository) GetByCode(code string) (*models.Coupon, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	var coupon models.Coupon
	if err := r.db.Where("code = ?", normalized).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// Create persists a coupon.
func (r *GormCouponRepository) Create(coupon *models.Coupon) error {
	return r.db.Create(coupon).Error
}

// Update saves a coupon.
func (r *GormCouponRepository) Update(coupon *models.Coupon) error {
	return r.db.Save(coupon).Error
}

// IncrementUsedCount bumps the confirmed-redemption counter.
func (r *GormCouponRepository) IncrementUsedCount(id uint, delta int) error {
	if delta == 0 {
		delta = 1
	}
	return r.db.Model(&models.Coupon{}).
		Where("id = ?", id).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", delta)).Error
}
