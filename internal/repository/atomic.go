package repository

import (
	"github.com/sitegrade/sitegrade/internal/logger"

	"gorm.io/gorm"
)

// AtomicRunner runs a multi-write flow atomically when the deployment
// supports it. The reservation and redemption unique constraints are the real
// correctness guarantee; the transaction only narrows the window in which a
// partially-applied flow is visible.
type AtomicRunner interface {
	Do(fn func(tx *gorm.DB) error) error
}

// NewAtomicRunner probes transaction support at startup and picks the
// transactional runner when the probe succeeds, the best-effort sequential
// runner otherwise.
func NewAtomicRunner(db *gorm.DB) AtomicRunner {
	probe := db.Transaction(func(tx *gorm.DB) error {
		return tx.Exec("SELECT 1").Error
	})
	if probe != nil {
		logger.Warnw("atomic_runner_fallback_sequential", "error", probe)
		return &sequentialRunner{db: db}
	}
	return &transactionalRunner{db: db}
}

type transactionalRunner struct {
	db *gorm.DB
}

func (r *transactionalRunner) Do(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type sequentialRunner struct {
	db *gorm.DB
}

// Do applies the writes one by one with no rollback on failure.
func (r *sequentialRunner) Do(fn func(tx *gorm.DB) error) error {
	return fn(r.db)
}
