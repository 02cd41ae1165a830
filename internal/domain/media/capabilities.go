package media

import (
	"context"
	"sync"
)

// Viewport reports the rendering context an element selects sources
// against. The ws session implements it with values reported by the
// host; tests and the HTTP API use StaticViewport.
type Viewport interface {
	Width() int
	DPR() float64
}

// StaticViewport is a fixed-size viewport.
type StaticViewport struct {
	W int
	D float64
}

func (v StaticViewport) Width() int   { return v.W }
func (v StaticViewport) DPR() float64 { return v.D }

// Scheduler orders tree writes. The host batches DOM mutations to a
// safe point in the frame; the element never touches the tree except
// through it.
type Scheduler interface {
	Mutate(fn func())
}

// DirectScheduler runs mutations inline. The default when the caller
// has no batching of its own.
type DirectScheduler struct{}

func (DirectScheduler) Mutate(fn func()) { fn() }

// LockedScheduler serializes mutations with a mutex. Owners whose tree
// is written from more than one goroutine (sessions share it with the
// placeholder detach timer) use one per element subtree.
type LockedScheduler struct {
	mu sync.Mutex
}

func (s *LockedScheduler) Mutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Preconnector warms the connection to an origin ahead of a load.
type Preconnector interface {
	Preconnect(ctx context.Context, url string)
}

// Prefetcher warms the source cache in the background. Elements
// declaring noprerender never reach it.
type Prefetcher interface {
	Prefetch(url string, priority int)
}
