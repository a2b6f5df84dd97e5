package database

import (
	"fmt"
	"time"

	"warehouse/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection initializes a new connection pool using GORM and migrates the
// warehouse schema. Migration failures are logged, not fatal, so a service
// pointed at an already-migrated database with restricted grants still starts.
func NewConnection(dsn string, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Error,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	err = db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.Permission{},
		&model.Partner{},
		&model.Product{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.InvoicePayment{},
		&model.InventoryTransaction{},
		&model.AuditLog{},
	)
	if err != nil {
		logger.WithError(err).Warn("failed to auto-migrate models")
	}

	return db, nil
}
