package storage

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storyview-server-go/internal/platform/storage/migrations"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:storage-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return db
}

func TestMigrationManager_RunMigrations(t *testing.T) {
	db := newTestDB(t)

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Initial{})

	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	// Running again must be a no-op.
	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("re-run migrations: %v", err)
	}

	history, err := manager.GetMigrationHistory()
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 applied migration, got %d", len(history))
	}
	if history[0].Version != "001_initial" {
		t.Errorf("expected version 001_initial, got %s", history[0].Version)
	}
}

func TestCachedImageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&CachedImage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	expires := time.Now().Add(time.Hour)
	record := &CachedImage{
		Key:         "sha:abcdef",
		URL:         "https://cdn.example.com/hero-640.jpg",
		ContentType: "image/jpeg",
		Width:       640,
		Height:      480,
		ByteSize:    52341,
		FetchedAt:   time.Now(),
		ExpiresAt:   &expires,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var loaded CachedImage
	if err := db.Where("key = ?", "sha:abcdef").First(&loaded).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Width != 640 || loaded.Height != 480 {
		t.Errorf("unexpected dimensions %dx%d", loaded.Width, loaded.Height)
	}
	if loaded.URL != record.URL {
		t.Errorf("unexpected url %s", loaded.URL)
	}
}

func TestShareLinkRevocation(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&ShareLink{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	link := &ShareLink{
		TokenID:    "tok-1",
		DocumentID: "doc-1",
		CreatedAt:  time.Now(),
	}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	if err := db.Model(&ShareLink{}).Where("token_id = ?", "tok-1").
		Update("revoked_at", &now).Error; err != nil {
		t.Fatalf("revoke: %v", err)
	}

	var loaded ShareLink
	if err := db.Where("token_id = ?", "tok-1").First(&loaded).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.RevokedAt == nil {
		t.Error("expected revoked_at to be set")
	}
}
