package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	entries     map[string]Entry
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory cache store.
func NewMemory(cfg Config) Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		entries:     make(map[string]Entry),
		ttl:         ttl,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Put(_ context.Context, entry Entry) error {
	if entry.URL == "" {
		return fmt.Errorf("entry url required")
	}
	now := time.Now()
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = now
	}
	if entry.ExpiresAt == nil && s.ttl > 0 {
		exp := now.Add(s.ttl)
		entry.ExpiresAt = &exp
	}

	s.mutex.Lock()
	s.entries[entry.URL] = entry
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, url string) (Entry, error) {
	s.mutex.RLock()
	entry, ok := s.entries[url]
	s.mutex.RUnlock()
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrCacheMiss, url)
	}
	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		s.mutex.Lock()
		delete(s.entries, url)
		s.mutex.Unlock()
		return Entry{}, fmt.Errorf("%w: %s", ErrCacheMiss, url)
	}
	return entry, nil
}

func (s *memoryStore) Remove(_ context.Context, url string) error {
	s.mutex.Lock()
	delete(s.entries, url)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]string, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	urls := make([]string, 0, len(s.entries))
	for url, entry := range s.entries {
		if entry.ExpiresAt == nil || now.Before(*entry.ExpiresAt) {
			urls = append(urls, url)
		}
	}
	return urls, nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for url, entry := range s.entries {
		if entry.ExpiresAt != nil && now.After(*entry.ExpiresAt) {
			delete(s.entries, url)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := len(s.entries)
	live := 0
	for _, entry := range s.entries {
		if entry.ExpiresAt == nil || now.Before(*entry.ExpiresAt) {
			live++
		}
	}
	return map[string]any{
		"type":        "memory",
		"total":       total,
		"live":        live,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
