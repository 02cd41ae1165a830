package share

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/storage"
)

func newTestService(t *testing.T, withDB bool) *Service {
	t.Helper()
	var db *gorm.DB
	if withDB {
		var err error
		db, err = gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "share.db")), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		if err := db.AutoMigrate(&storage.ShareLink{}); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	svc, err := NewService(config.ShareConfig{Secret: "test-secret", TTLHours: 1}, db, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(config.ShareConfig{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for empty secret")
	}
	if !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("expected KindConfig, got %v", err)
	}
}

func TestCreateAndResolveRoundTrip(t *testing.T) {
	svc := newTestService(t, false)

	link, err := svc.Create("doc-42")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if link.Token == "" || link.TokenID == "" {
		t.Fatal("link is incomplete")
	}
	if !link.ExpiresAt.After(time.Now()) {
		t.Fatal("link already expired")
	}

	docID, err := svc.Resolve(link.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if docID != "doc-42" {
		t.Fatalf("resolved %q, want doc-42", docID)
	}
}

func TestResolveRejectsForgedToken(t *testing.T) {
	svc := newTestService(t, false)
	other := newTestService(t, false)
	other.secret = []byte("different-secret")

	link, err := other.Create("doc-42")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Resolve(link.Token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
	if _, err := svc.Resolve("not-a-token"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
}

func TestRevokeInvalidatesLink(t *testing.T) {
	svc := newTestService(t, true)

	link, err := svc.Create("doc-42")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Resolve(link.Token); err != nil {
		t.Fatalf("Resolve before revoke: %v", err)
	}

	if err := svc.Revoke(link.TokenID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Resolve(link.Token); err == nil {
		t.Fatal("revoked link must not resolve")
	}
	if err := svc.Revoke(link.TokenID); err == nil {
		t.Fatal("double revoke should fail")
	}
}
