// Package work runs queued jobs on a fixed pool of workers, highest
// priority first.
package work

import (
	"errors"
	"sync"

	"storyview-server-go/internal/util"
)

var ErrWorkQueueClosed = errors.New("work queue closed")

// Handler processes one queued item. Its error is informational; a
// failed item is not requeued.
type Handler[T any] func(item T) error

// WorkQueue fans queued items out to a worker pool. Submit never
// blocks; workers drain in priority order.
type WorkQueue[T any] struct {
	queue   *util.PriorityQueue[T]
	handler Handler[T]

	ready chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewWorkQueue[T any](workers int, handler Handler[T]) *WorkQueue[T] {
	if workers < 1 {
		workers = 1
	}
	wq := &WorkQueue[T]{
		queue:   util.NewPriorityQueue[T](),
		handler: handler,
		ready:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	wq.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go wq.run()
	}
	return wq
}

// Submit queues an item. Higher priority runs first.
func (wq *WorkQueue[T]) Submit(item T, priority int) error {
	if err := wq.queue.Push(item, priority); err != nil {
		return ErrWorkQueueClosed
	}
	select {
	case wq.ready <- struct{}{}:
	default:
	}
	return nil
}

// Stop rejects further submissions, drops queued items and waits for
// in-flight handlers to return. Idempotent.
func (wq *WorkQueue[T]) Stop() {
	wq.mu.Lock()
	if wq.stopped {
		wq.mu.Unlock()
		return
	}
	wq.stopped = true
	wq.mu.Unlock()

	wq.queue.Close()
	close(wq.stop)
	wq.wg.Wait()
}

func (wq *WorkQueue[T]) run() {
	defer wq.wg.Done()
	for {
		select {
		case <-wq.stop:
			return
		case <-wq.ready:
			wq.drain()
		}
	}
}

// drain pops until the queue is empty or closed. The signal channel
// holds at most one token, so a worker that wakes drains everything it
// can see; submissions racing the drain re-signal.
func (wq *WorkQueue[T]) drain() {
	for {
		item, err := wq.queue.Pop()
		if err != nil {
			return
		}
		_ = wq.handler(item)
	}
}
