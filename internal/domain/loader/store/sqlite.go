package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storyview-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite builds a cache store on the shared database.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:  db,
		ttl: cfg.TTL,
	}, nil
}

// cacheKey keeps arbitrarily long URLs inside the indexed column.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *sqliteStore) Put(ctx context.Context, entry Entry) error {
	if entry.URL == "" {
		return fmt.Errorf("entry url required")
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}
	if entry.ExpiresAt == nil && s.ttl > 0 {
		exp := entry.FetchedAt.Add(s.ttl)
		entry.ExpiresAt = &exp
	}

	key := cacheKey(entry.URL)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ?", key).Delete(&storage.CachedImage{}).Error; err != nil {
			return err
		}
		record := &storage.CachedImage{
			Key:         key,
			URL:         entry.URL,
			ContentType: entry.Format,
			Width:       entry.Width,
			Height:      entry.Height,
			ByteSize:    entry.ByteSize,
			FetchedAt:   entry.FetchedAt,
			ExpiresAt:   entry.ExpiresAt,
		}
		return tx.Create(record).Error
	})
}

func (s *sqliteStore) Get(ctx context.Context, url string) (Entry, error) {
	var record storage.CachedImage
	err := s.db.WithContext(ctx).Where("key = ?", cacheKey(url)).First(&record).Error
	if errorsIsNotFound(err) {
		return Entry{}, fmt.Errorf("%w: %s", ErrCacheMiss, url)
	}
	if err != nil {
		return Entry{}, err
	}
	if record.ExpiresAt != nil && time.Now().After(*record.ExpiresAt) {
		_ = s.Remove(ctx, url)
		return Entry{}, fmt.Errorf("%w: %s", ErrCacheMiss, url)
	}
	return Entry{
		URL:       record.URL,
		Format:    record.ContentType,
		Width:     record.Width,
		Height:    record.Height,
		ByteSize:  record.ByteSize,
		FetchedAt: record.FetchedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *sqliteStore) Remove(ctx context.Context, url string) error {
	return s.db.WithContext(ctx).Where("key = ?", cacheKey(url)).Delete(&storage.CachedImage{}).Error
}

func (s *sqliteStore) List(ctx context.Context) ([]string, error) {
	var records []storage.CachedImage
	if err := s.db.WithContext(ctx).Select("url", "expires_at").Find(&records).Error; err != nil {
		return nil, err
	}
	now := time.Now()
	urls := make([]string, 0, len(records))
	for _, r := range records {
		if r.ExpiresAt == nil || now.Before(*r.ExpiresAt) {
			urls = append(urls, r.URL)
		}
	}
	return urls, nil
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&storage.CachedImage{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.CachedImage{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        "sqlite",
		"total":       total,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func errorsIsNotFound(err error) bool {
	return err != nil && errors.Is(err, gorm.ErrRecordNotFound)
}
