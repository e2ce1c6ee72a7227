package storage

import (
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/amalrajan30/spacedcode/internal/logger"
)

// Open connects to Postgres. SQL logging is limited to warnings (slow
// queries and errors); the app logger reports the connection itself.
func Open(dsn string, log *logger.Logger) (*gorm.DB, error) {
	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return db, nil
}
