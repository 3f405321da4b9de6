package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite" // pure-Go SQLite driver (modernc.org/sqlite based)
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DBPoolConfig holds connection-pool settings.
type DBPoolConfig struct {
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeSeconds int
	ConnMaxIdleTimeSeconds int
}

// InitDB opens the database connection.
func InitDB(driver, dsn string, pool DBPoolConfig) error {
	var err error
	normalized := strings.ToLower(strings.TrimSpace(driver))
	var dialector gorm.Dialector
	switch normalized {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", driver)
	}
	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return err
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	applyDBPool(sqlDB, pool)
	return nil
}

func applyDBPool(sqlDB *sql.DB, pool DBPoolConfig) {
	if sqlDB == nil {
		return
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	}
	if pool.ConnMaxIdleTimeSeconds > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTimeSeconds) * time.Second)
	}
}

// AutoMigrate migrates all tables and the constraint indexes the engine
// relies on for correctness.
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate migrates all tables on the given connection.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Audit{},
		&Coupon{},
		&CouponReservation{},
		&CouponRedemption{},
	); err != nil {
		return err
	}
	return createConstraintIndexes(db)
}

// createConstraintIndexes creates the partial unique index that allows at
// most one live reservation per audit. Both SQLite and Postgres support
// partial indexes; this constraint, together with the unique audit_id on
// coupon_redemptions, is what keeps the reservation/redemption flow correct
// without application-level locking.
func createConstraintIndexes(db *gorm.DB) error {
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_coupon_reservations_active
		 ON coupon_reservations (audit_id) WHERE status = 'reserved'`,
	).Error
}
