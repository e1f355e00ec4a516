package database

import (
	"fmt"
	"time"

	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/models/chat"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the Postgres pool.
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Migrate creates or updates every table the application owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.Lead{},
		&models.GuestSession{},
		&models.Notification{},

		&chat.Conversation{},
		&chat.ConversationParticipant{},
		&chat.Message{},
		&chat.MessageAttachment{},
		&chat.MessageReaction{},
		&chat.MessageEdit{},
		&chat.MessageComment{},
		&chat.MessageReadReceipt{},
	)
}
