package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"funding-service/internal/config"
	"funding-service/internal/models"
)

// Connect opens the mysql connection pool.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// Duplicate-key violations map to gorm.ErrDuplicatedKey; the
		// dedup claim depends on it.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the schema. The unique indexes on payment
// reference, transaction reference and dedup key are required for
// correctness, not just performance.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.WalletAccount{},
		&models.PaymentTransaction{},
		&models.LedgerEntry{},
		&models.WebhookRecord{},
		&models.ProcessedEvent{},
		&models.OrphanPayment{},
		&models.SettlementBatch{},
		&models.StatusMismatch{},
	)
}
