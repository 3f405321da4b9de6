package repository

import (
	"errors"
	"time"

	"github.com/sitegrade/sitegrade/internal/constants"
	"github.com/sitegrade/sitegrade/internal/models"

	"gorm.io/gorm"
)

// claimRaceRetries bounds how many lost claim races a single poll tolerates
// before giving the tick up.
const claimRaceRetries = 3

// AuditRepository is the audit data-access interface.
type AuditRepository interface {
	Create(audit *models.Audit) error
	GetByID(id uint) (*models.Audit, error)
	GetByPublicID(publicID string) (*models.Audit, error)
	GetByOrderID(orderID string) (*models.Audit, error)
	ClaimNextEligible(stuckBefore time.Time, maxRetries int) (*models.Audit, error)
	MarkDone(id uint, overall int, label string, preview models.JSON) error
	Requeue(id uint) error
	MarkFailed(id uint, reason string) error
	StampQuote(id uint, couponID uint, couponCode string, finalPrice models.Money) error
	SetLead(id uint, name, email, phone string, consentAt time.Time) error
	SetOrder(id uint, orderID string) error
	StampPayment(id uint, paymentID, orderID string, paidAt time.Time) error
	Unlock(id uint, paymentID, orderID string, paidAt time.Time, finalPrice models.Money, fullReport models.JSON) error
	WithTx(tx *gorm.DB) *GormAuditRepository
}

// GormAuditRepository is the GORM implementation.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormAuditRepository) WithTx(tx *gorm.DB) *GormAuditRepository {
	if tx == nil {
		return r
	}
	return &GormAuditRepository{db: tx}
}

// Create persists a new audit.
func (r *GormAuditRepository) Create(audit *models.Audit) error {
	return r.db.Create(audit).Error
}

// GetByID fetches an audit by primary key.
func (r *GormAuditRepository) GetByID(id uint) (*models.Audit, error) {
	var audit models.Audit
	if err := r.db.First(&audit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &audit, nil
}

// GetByPublicID fetches an audit by its client-facing id.
func (r *GormAuditRepository) GetByPublicID(publicID string) (*models.Audit, error) {
	var audit models.Audit
	if err := r.db.Where("public_id = ?", publicID).First(&audit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &audit, nil
}

// GetByOrderID fetches the audit holding a gateway order id.
func (r *GormAuditRepository) GetByOrderID(orderID string) (*models.Audit, error) {
	if orderID == "" {
		return nil, nil
	}
	var audit models.Audit
	if err := r.db.Where("order_id = ?", orderID).First(&audit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &audit, nil
}

// ClaimNextEligible atomically claims one runnable audit, or returns nil when
// none is eligible. Eligible means QUEUED, or RUNNING but started before the
// stuck threshold, with retry budget left. The claim is a single conditional
// update whose WHERE clause repeats the candidate's observed status and
// attempt count, so of two pollers racing on the same row only one can match
// the pre-update state.
func (r *GormAuditRepository) ClaimNextEligible(stuckBefore time.Time, maxRetries int) (*models.Audit, error) {
	for race := 0; race < claimRaceRetries; race++ {
		var candidate models.Audit
		err := r.db.
			Where("scan_attempts < ?", maxRetries).
			Where(
				r.db.Where("status = ?", constants.AuditStatusQueued).
					Or("status = ? AND scan_started_at < ?", constants.AuditStatusRunning, stuckBefore),
			).
			Order("id").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		now := time.Now()
		claim := r.db.Model(&models.Audit{}).
			Where("id = ? AND status = ? AND scan_attempts = ?", candidate.ID, candidate.Status, candidate.ScanAttempts).
			Updates(map[string]interface{}{
				"status":          constants.AuditStatusRunning,
				"scan_started_at": now,
				"scan_attempts":   gorm.Expr("scan_attempts + ?", 1),
			})
		if claim.Error != nil {
			return nil, claim.Error
		}
		if claim.RowsAffected == 1 {
			candidate.Status = constants.AuditStatusRunning
			candidate.ScanStartedAt = &now
			candidate.ScanAttempts++
			return &candidate, nil
		}
		// Lost the race; another poller won this row. Pick the next one.
	}
	return nil, nil
}

// MarkDone records a successful scan.
func (r *GormAuditRepository) MarkDone(id uint, overall int, label string, preview models.JSON) error {
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        constants.AuditStatusDone,
			"score_overall": overall,
			"label":         label,
			"preview":       preview,
			"scan_error":    "",
		}).Error
}

// Requeue puts a retryably-failed audit back in the queue.
func (r *GormAuditRepository) Requeue(id uint) error {
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		UpdateColumn("status", constants.AuditStatusQueued).Error
}

// MarkFailed records a terminal scan failure.
func (r *GormAuditRepository) MarkFailed(id uint, reason string) error {
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     constants.AuditStatusFailed,
			"scan_error": reason,
		}).Error
}

// StampQuote records the quoted price and coupon linkage on the audit.
func (r *GormAuditRepository) StampQuote(id uint, couponID uint, couponCode string, finalPrice models.Money) error {
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"coupon_id":       couponID,
			"coupon_code":     couponCode,
			"final_price_inr": finalPrice,
		}).Error
}

// SetLead records the captured lead.
func (r *GormAuditRepository) SetLead(id uint, name, email, phone string, consentAt time.Time) error {
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"lead_name":       name,
			"lead_email":      email,
			"lead_phone":      phone,
			"lead_consent_at": consentAt,
		}).Error
}

// SetOrder records the gateway order id.
func (r *GormAuditRepository) SetOrder(id uint, orderID string) error {
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		UpdateColumn("order_id", orderID).Error
}

// StampPayment records payment fields without unlocking. Used on the paid
// path while the lead is still outstanding.
func (r *GormAuditRepository) StampPayment(id uint, paymentID, orderID string, paidAt time.Time) error {
	values := map[string]interface{}{
		"payment_id": paymentID,
		"paid_at":    paidAt,
	}
	if orderID != "" {
		values["order_id"] = orderID
	}
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		Updates(values).Error
}

// Unlock stamps payment fields, marks the audit unlocked, and materializes
// the full report.
func (r *GormAuditRepository) Unlock(id uint, paymentID, orderID string, paidAt time.Time, finalPrice models.Money, fullReport models.JSON) error {
	values := map[string]interface{}{
		"is_unlocked":     true,
		"final_price_inr": finalPrice,
	}
	if paymentID != "" {
		values["payment_id"] = paymentID
		values["paid_at"] = paidAt
	}
	if orderID != "" {
		values["order_id"] = orderID
	}
	if fullReport != nil {
		values["full_report"] = fullReport
	}
	return r.db.Model(&models.Audit{}).
		Where("id = ?", id).
		Updates(values).Error
}
