// Package store caches image probe results so repeated selections of
// the same source skip the network. Drivers exist for memory, redis
// and sqlite; the factory picks one from configuration.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss reports that no live entry exists for a URL.
var ErrCacheMiss = errors.New("cache entry not found")

// Entry is one probed image source.
type Entry struct {
	URL       string     `json:"url"`
	Format    string     `json:"format"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	ByteSize  int64      `json:"byte_size"`
	FetchedAt time.Time  `json:"fetched_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store is the behaviour the load controller needs from a cache.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	Get(ctx context.Context, url string) (Entry, error)
	Remove(ctx context.Context, url string) error
	List(ctx context.Context) ([]string, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	TTL    time.Duration
	Redis  *RedisConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
