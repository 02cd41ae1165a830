package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storyview-server-go/internal/platform/storage/migrations"
)

// Global database instance shared by the cache store, the event journal
// and the share-link audit trail.
var db *gorm.DB

// InitDatabase opens the SQLite database at path and applies migrations.
// Calling it again after a successful init is a no-op.
func InitDatabase(path string) error {
	if db != nil {
		return nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	var err error
	db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// AutoMigrate keeps the schema aligned when migrations lag behind
	// model changes.
	if err := db.AutoMigrate(&CachedImage{}, &RuntimeEvent{}, &ShareLink{}, &StoryRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	migrationManager := NewMigrationManager(db)
	migrationManager.AddMigration(&migrations.Migration001Initial{})

	if err := migrationManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CloseDatabase releases the underlying SQLite handle. Safe to call
// when the database was never initialised.
func CloseDatabase() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil
	return sqlDB.Close()
}

// GetDB returns the global database instance.
func GetDB() *gorm.DB {
	if db == nil {
		panic("database not initialized, call InitDatabase() first")
	}
	return db
}

// CachedImage persists a fetched image's probe result so repeated loads
// of the same source skip the network.
type CachedImage struct {
	ID          uint           `gorm:"primaryKey"`
	Key         string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"key"`
	URL         string         `gorm:"not null"                               json:"url"`
	ContentType string         `                                              json:"content_type"`
	Width       int            `                                              json:"width"`
	Height      int            `                                              json:"height"`
	ByteSize    int64          `                                              json:"byte_size"`
	FetchedAt   time.Time      `                                              json:"fetched_at"`
	ExpiresAt   *time.Time     `                                              json:"expires_at,omitempty"`
	Metadata    datatypes.JSON `                                              json:"metadata,omitempty"`
}

// RuntimeEvent journals element lifecycle events for later inspection.
type RuntimeEvent struct {
	ID        uint           `gorm:"primaryKey"`
	Topic     string         `gorm:"index;not null"`
	SessionID string         `gorm:"index"`
	ElementID string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

// ShareLink records issued share tokens so links can be revoked before
// their natural expiry.
type ShareLink struct {
	ID         uint       `gorm:"primaryKey"`
	TokenID    string     `gorm:"type:varchar(255);uniqueIndex;not null"`
	DocumentID string     `gorm:"index;not null"`
	CreatedAt  time.Time  `gorm:"not null"`
	ExpiresAt  *time.Time `gorm:"index"`
	RevokedAt  *time.Time
}

// StoryRecord persists a story document definition across restarts.
type StoryRecord struct {
	ID         uint           `gorm:"primaryKey"`
	DocumentID string         `gorm:"type:varchar(255);uniqueIndex;not null"`
	Title      string         `gorm:"not null"`
	Definition datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
