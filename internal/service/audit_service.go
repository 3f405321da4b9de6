package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/repository"
	"github.com/sitegrade/sitegrade/internal/urlguard"
)

// AuditService owns the audit lifecycle: submission, lookup, lead capture.
type AuditService struct {
	auditRepo repository.AuditRepository
	guard     *urlguard.Guard
	unlockSvc *UnlockService
	basePrice models.Money
}

// NewAuditService creates the audit service.
func NewAuditService(auditRepo repository.AuditRepository, guard *urlguard.Guard, unlockSvc *UnlockService, basePrice models.Money) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		guard:     guard,
		unlockSvc: unlockSvc,
		basePrice: basePrice,
	}
}

// Submit guards the URL up front and queues a new audit. SSRF rejections
// surface here as urlguard errors before anything is persisted.
func (s *AuditService) Submit(ctx context.Context, rawURL string) (*models.Audit, error) {
	guarded, err := s.guard.GuardURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	audit := models.NewAudit(rawURL, guarded.URL, guarded.Host, s.basePrice)
	if err := s.auditRepo.Create(audit); err != nil {
		return nil, err
	}
	logger.Infow("audit_submitted",
		"audit_id", audit.ID,
		"public_id", audit.PublicID,
		"host", audit.Host,
	)
	return audit, nil
}

// Get fetches an audit by its public id.
func (s *AuditService) Get(publicID string) (*models.Audit, error) {
	audit, err := s.auditRepo.GetByPublicID(strings.TrimSpace(publicID))
	if err != nil {
		return nil, err
	}
	if audit == nil {
		return nil, ErrAuditNotFound
	}
	return audit, nil
}

// LeadInput is the lead-capture payload.
type LeadInput struct {
	Name    string
	Email   string
	Phone   string
	Consent bool
}

// CaptureLead stores a consented lead on the audit and finalizes the unlock
// when the price has already been settled (zero-price reservation or a
// completed payment waiting on identity).
func (s *AuditService) CaptureLead(publicID string, input LeadInput) (*models.Audit, error) {
	audit, err := s.Get(publicID)
	if err != nil {
		return nil, err
	}
	if !input.Consent {
		return nil, ErrConsentRequired
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, ErrLeadInvalid
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrLeadInvalid
	}

	now := time.Now()
	if err := s.auditRepo.SetLead(audit.ID, strings.TrimSpace(input.Name), email, strings.TrimSpace(input.Phone), now); err != nil {
		return nil, err
	}
	logger.Infow("audit_lead_captured", "audit_id", audit.ID, "public_id", audit.PublicID)

	if s.unlockSvc != nil {
		if err := s.unlockSvc.FinalizeUnlockAfterLead(audit.ID); err != nil {
			return nil, err
		}
	}
	return s.Get(publicID)
}
