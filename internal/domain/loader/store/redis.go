package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed cache store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "loader:img:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(url string) string {
	return s.prefix + url
}

func (s *redisStore) Put(ctx context.Context, entry Entry) error {
	if entry.URL == "" {
		return fmt.Errorf("entry url required")
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	expiry := s.ttl
	if entry.ExpiresAt != nil {
		expiry = time.Until(*entry.ExpiresAt)
	}
	return s.client.Set(ctx, s.key(entry.URL), data, expiry).Err()
}

func (s *redisStore) Get(ctx context.Context, url string) (Entry, error) {
	raw, err := s.client.Get(ctx, s.key(url)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Entry{}, fmt.Errorf("%w: %s", ErrCacheMiss, url)
		}
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, err
	}
	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		_ = s.Remove(ctx, url)
		return Entry{}, fmt.Errorf("%w: %s", ErrCacheMiss, url)
	}
	return entry, nil
}

func (s *redisStore) Remove(ctx context.Context, url string) error {
	return s.client.Del(ctx, s.key(url)).Err()
}

func (s *redisStore) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	urls := make([]string, 0)
	pattern := s.prefix + "*"
	for {
		res, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range res {
			urls = append(urls, strings.TrimPrefix(key, s.prefix))
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return urls, nil
}

func (s *redisStore) CleanupExpired(context.Context) error {
	// Redis expires keys on its own.
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        "redis",
		"total":       size,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
