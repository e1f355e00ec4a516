package helpers

import (
	"testing"
	"time"

	"crmdesk_backend/database"
	"crmdesk_backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an in-memory database with the full schema migrated.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// An in-memory database exists per connection; keep the pool at one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// SeedUser inserts a user with the given role and returns it.
func SeedUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) *models.User {
	t.Helper()

	user := &models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         role,
		Status:       models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// SeedClient inserts a CRM client record.
func SeedClient(t *testing.T, db *gorm.DB, name string) *models.Client {
	t.Helper()

	client := &models.Client{Name: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(client).Error)
	return client
}

// SeedGuestSession inserts an anonymous visitor session.
func SeedGuestSession(t *testing.T, db *gorm.DB, visitorKey string) *models.GuestSession {
	t.Helper()

	session := &models.GuestSession{
		VisitorKey: visitorKey,
		UserAgent:  "test-agent",
		LastSeenAt: time.Now(),
	}
	require.NoError(t, db.Create(session).Error)
	return session
}
