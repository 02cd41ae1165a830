// Package events is the runtime's publish/subscribe surface. Element
// controllers publish lifecycle transitions here; transports and the
// journal subscribe. The bus is a process-wide singleton so library
// code and transports share one event space.
package events

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

var (
	instance evbus.Bus
	asyncBus *AsyncBus
	once     sync.Once
)

func initBuses() {
	instance = New()
	asyncBus = NewAsyncBus(4)
	asyncBus.Start()
}

// Get returns the shared synchronous bus.
func Get() evbus.Bus {
	once.Do(initBuses)
	return instance
}

// GetAsync returns the shared asynchronous bus.
func GetAsync() *AsyncBus {
	once.Do(initBuses)
	return asyncBus
}

// New creates an independent synchronous bus, used by tests that must
// not observe events from other components.
func New() evbus.Bus {
	return evbus.New()
}

// Publish publishes on the shared synchronous bus.
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// Subscribe registers fn for topic on the shared synchronous bus.
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeOnce registers fn for a single delivery.
func SubscribeOnce(topic string, fn interface{}) error {
	return Get().SubscribeOnce(topic, fn)
}

// Unsubscribe removes fn from topic on the shared synchronous bus.
func Unsubscribe(topic string, fn interface{}) error {
	return Get().Unsubscribe(topic, fn)
}

// DevLog fans a log line out to dev-console subscribers.
func DevLog(level, tag, message string) {
	Publish(TopicDevLog, DevLogEvent{
		Level:   level,
		Tag:     tag,
		Message: message,
		At:      time.Now(),
	})
}
