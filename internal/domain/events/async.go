package events

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

const asyncQueueSize = 1000

// AsyncBus decouples publishers from slow subscribers with a worker
// pool. Publishing never blocks: when the queue is full the event is
// dropped, which is acceptable for the dev-log and journal fanout this
// bus carries.
type AsyncBus struct {
	bus      evbus.Bus
	workers  int
	workChan chan asyncEvent
	stopChan chan struct{}
	wg       sync.WaitGroup
	inflight sync.WaitGroup
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncBus creates an async bus with the given worker count.
func NewAsyncBus(workers int) *AsyncBus {
	if workers <= 0 {
		workers = 4
	}
	return &AsyncBus{
		bus:      evbus.New(),
		workers:  workers,
		workChan: make(chan asyncEvent, asyncQueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the worker pool.
func (ab *AsyncBus) Start() {
	for i := 0; i < ab.workers; i++ {
		ab.wg.Add(1)
		go ab.worker()
	}
}

// Stop shuts the workers down. Queued events are discarded.
func (ab *AsyncBus) Stop() {
	close(ab.stopChan)
	ab.wg.Wait()
}

func (ab *AsyncBus) worker() {
	defer ab.wg.Done()
	for {
		select {
		case <-ab.stopChan:
			return
		case event := <-ab.workChan:
			func() {
				defer ab.inflight.Done()
				defer func() {
					// A panicking subscriber must not take the worker down.
					_ = recover()
				}()
				ab.bus.Publish(event.topic, event.args...)
			}()
		}
	}
}

// Publish enqueues an event without blocking. Returns false when the
// queue was full and the event dropped.
func (ab *AsyncBus) Publish(topic string, args ...interface{}) bool {
	ab.inflight.Add(1)
	select {
	case ab.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		ab.inflight.Done()
		return false
	}
}

// Subscribe registers fn for topic.
func (ab *AsyncBus) Subscribe(topic string, fn interface{}) error {
	return ab.bus.Subscribe(topic, fn)
}

// Unsubscribe removes fn from topic.
func (ab *AsyncBus) Unsubscribe(topic string, fn interface{}) error {
	return ab.bus.Unsubscribe(topic, fn)
}

// HasCallback reports whether topic has any subscriber.
func (ab *AsyncBus) HasCallback(topic string) bool {
	return ab.bus.HasCallback(topic)
}

// Flush blocks until every event enqueued so far has been handled.
func (ab *AsyncBus) Flush() {
	ab.inflight.Wait()
}
