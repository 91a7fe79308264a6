package storage

import (
	"fmt"

	"escrow-node/internal/config"
	"escrow-node/internal/logger"
	"escrow-node/internal/storage/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB initializes the database connection.
func InitDB(cfg config.DBConfig) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DBName)
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
			cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)
		dialector = postgres.Open(dsn)
	}

	var err error
	DB, err = gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}

	logger.Log.Info("Database connection successfully established.")

	err = DB.AutoMigrate(
		&models.EscrowRecord{},
		&models.EscrowHolder{},
		&models.RevealRequest{},
		&models.ShareSubmission{},
	)
	if err != nil {
		logger.Log.Fatalf("Failed to auto-migrate database: %v", err)
	}
	logger.Log.Info("Database schema migrated.")
}
