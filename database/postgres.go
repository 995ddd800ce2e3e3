package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"unschooling-payment-service/config"
	"unschooling-payment-service/models"
)

const connectAttempts = 10

// liveSubscriptionIndex enforces one non-terminal subscription per
// (user, plan, cycle). gorm tags cannot express a partial index.
const liveSubscriptionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_subscription_live_owner
ON plan_subscriptions (user_id, plan_type, billing_cycle)
WHERE status NOT IN ('cancelled', 'completed', 'expired')`

// DSN builds the postgres connection string from config.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.PostgresHost, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB,
		cfg.PostgresPort, cfg.PostgresSSLMode, cfg.PostgresTimeZone,
	)
}

// ConnectPostgres opens the database, retrying while postgres starts, and
// migrates the plan tables.
func ConnectPostgres(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := DSN(cfg)

	var db *gorm.DB
	var err error
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err == nil {
			logger.Info("Connected to PostgreSQL", zap.String("host", cfg.PostgresHost), zap.String("db", cfg.PostgresDB))
			if err := Migrate(db); err != nil {
				return nil, err
			}
			return db, nil
		}
		logger.Warn("PostgreSQL connection failed",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(err),
		)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
}

// Migrate creates or updates plan_orders and plan_subscriptions.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Order{}, &models.Subscription{}); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	if err := db.Exec(liveSubscriptionIndex).Error; err != nil {
		return fmt.Errorf("create live subscription index: %w", err)
	}
	return nil
}

// Close closes the database connection gracefully
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
