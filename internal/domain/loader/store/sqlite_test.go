package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"storyview-server-go/internal/platform/storage"
)

func newTestSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&storage.CachedImage{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLiteDB(t)

	s, err := NewSQLite(db, Config{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}

	entry := Entry{
		URL:      "https://cdn.example.com/hero-320.jpg",
		Format:   "jpeg",
		Width:    320,
		Height:   240,
		ByteSize: 999,
	}
	if err := s.Put(ctx, entry); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := s.Get(ctx, entry.URL)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.URL != entry.URL || got.Width != 320 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.ExpiresAt == nil {
		t.Fatal("Put should apply the default TTL")
	}

	// Put again replaces the row instead of growing the table.
	entry.Width = 321
	if err := s.Put(ctx, entry); err != nil {
		t.Fatalf("second Put error: %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["total"] != int64(1) {
		t.Fatalf("unexpected stats after replace: %v", stats)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 || list[0] != entry.URL {
		t.Fatalf("unexpected list: %v", list)
	}

	if err := s.Remove(ctx, entry.URL); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := s.Get(ctx, entry.URL); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("want ErrCacheMiss after removal, got %v", err)
	}
}

func TestSQLiteStoreCleanup(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLiteDB(t)

	s, err := NewSQLite(db, Config{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}

	expired := time.Now().Add(-time.Minute)
	if err := s.Put(ctx, Entry{URL: "https://cdn.example.com/stale.png", ExpiresAt: &expired}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	if err := s.CleanupExpired(ctx); err != nil {
		t.Fatalf("CleanupExpired error: %v", err)
	}
	if _, err := s.Get(ctx, "https://cdn.example.com/stale.png"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss for cleaned entry, got %v", err)
	}
}

func TestSQLiteStoreRequiresDB(t *testing.T) {
	if _, err := NewSQLite(nil, Config{}); err == nil {
		t.Fatal("nil db must fail")
	}
}
