// Package util holds small shared data structures.
package util

import (
	"container/heap"
	"errors"
	"sync"
)

var (
	ErrPriorityQueueClosed = errors.New("priority queue closed")
	ErrPriorityQueueEmpty  = errors.New("priority queue empty")
)

// PriorityQueue is a mutex-guarded max-heap. Higher priority pops
// first; within one priority, insertion order holds.
type PriorityQueue[T any] struct {
	mu     sync.Mutex
	items  pqHeap[T]
	seq    uint64
	closed bool
}

type pqItem[T any] struct {
	value    T
	priority int
	seq      uint64
}

type pqHeap[T any] []pqItem[T]

func (h pqHeap[T]) Len() int { return len(h) }

func (h pqHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pqHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pqHeap[T]) Push(x any) { *h = append(*h, x.(pqItem[T])) }

func (h *pqHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = pqItem[T]{}
	*h = old[:n-1]
	return item
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

// Push adds value to the queue.
func (q *PriorityQueue[T]) Push(value T, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrPriorityQueueClosed
	}
	q.seq++
	heap.Push(&q.items, pqItem[T]{value: value, priority: priority, seq: q.seq})
	return nil
}

// Pop removes and returns the highest-priority value without blocking.
func (q *PriorityQueue[T]) Pop() (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return zero, ErrPriorityQueueClosed
	}
	if len(q.items) == 0 {
		return zero, ErrPriorityQueueEmpty
	}
	item := heap.Pop(&q.items).(pqItem[T])
	return item.value, nil
}

func (q *PriorityQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and pops and drops queued items.
func (q *PriorityQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
}
