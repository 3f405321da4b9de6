package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sitegrade/sitegrade/internal/config"
	"github.com/sitegrade/sitegrade/internal/fetcher"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/repository"
)

// Service is the process-local scan scheduler. Each poll tick it claims
// eligible audits up to the concurrency cap and runs the pipeline on each in
// its own goroutine. The claim itself is the concurrency-safety mechanism, so
// several replicas can poll the same database.
type Service struct {
	name   string
	cfg    config.ScanConfig
	audits repository.AuditRepository
	scan   ScanFunc

	active int64
	wg     sync.WaitGroup
}

// NewService creates the scan scheduler.
func NewService(cfg config.ScanConfig, audits repository.AuditRepository, scan ScanFunc) *Service {
	return &Service{
		name:   "scanner",
		cfg:    cfg,
		audits: audits,
		scan:   scan,
	}
}

// Name is the service name.
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "scanner"
	}
	return s.name
}

// Start polls until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.audits == nil || s.scan == nil {
		return errors.New("scanner not initialized")
	}
	interval := s.cfg.PollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop waits for in-flight scans to finish.
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick claims and launches eligible audits until the cap is reached or the
// queue is drained.
func (s *Service) tick(ctx context.Context) {
	limit := int64(s.cfg.Concurrency)
	if limit <= 0 {
		limit = 1
	}
	for atomic.LoadInt64(&s.active) < limit {
		stuckBefore := time.Now().Add(-s.cfg.StuckAfter())
		audit, err := s.audits.ClaimNextEligible(stuckBefore, s.cfg.MaxRetries)
		if err != nil {
			logger.Errorw("scan_claim_failed", "error", err)
			return
		}
		if audit == nil {
			return
		}
		atomic.AddInt64(&s.active, 1)
		s.wg.Add(1)
		go s.run(ctx, audit)
	}
}

// run executes the pipeline for one claimed audit and records the outcome.
// The active counter is released no matter how the scan ends.
func (s *Service) run(ctx context.Context, audit *models.Audit) {
	defer func() {
		atomic.AddInt64(&s.active, -1)
		s.wg.Done()
	}()

	outcome, err := s.scan(ctx, audit)
	if err == nil {
		if dbErr := s.audits.MarkDone(audit.ID, outcome.Overall, outcome.Label, outcome.Preview); dbErr != nil {
			logger.Errorw("scan_mark_done_failed", "audit_id", audit.ID, "error", dbErr)
			return
		}
		logger.Infow("scan_done",
			"audit_id", audit.ID,
			"host", audit.Host,
			"overall", outcome.Overall,
			"label", outcome.Label,
			"attempt", audit.ScanAttempts,
		)
		return
	}

	if isRetryable(err) && audit.ScanAttempts < s.cfg.MaxRetries {
		if dbErr := s.audits.Requeue(audit.ID); dbErr != nil {
			logger.Errorw("scan_requeue_failed", "audit_id", audit.ID, "error", dbErr)
			return
		}
		logger.Warnw("scan_retry_queued",
			"audit_id", audit.ID,
			"host", audit.Host,
			"attempt", audit.ScanAttempts,
			"error", err,
		)
		return
	}

	if dbErr := s.audits.MarkFailed(audit.ID, err.Error()); dbErr != nil {
		logger.Errorw("scan_mark_failed_failed", "audit_id", audit.ID, "error", dbErr)
		return
	}
	logger.Warnw("scan_failed",
		"audit_id", audit.ID,
		"host", audit.Host,
		"attempt", audit.ScanAttempts,
		"error", err,
	)
}

// isRetryable reports whether the failure is transient (timeouts, transport
// errors). Guard rejections, HTTP errors, and malformed bodies are terminal.
func isRetryable(err error) bool {
	var fetchErr *fetcher.Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Retryable()
	}
	return false
}
