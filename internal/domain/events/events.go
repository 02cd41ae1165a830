package events

import "time"

// Topic constants for the element lifecycle. Transports subscribe to
// these to push state back to connected hosts.
const (
	// Element lifecycle
	TopicElementBuilt    = "element:built"
	TopicElementSelected = "element:selected"
	TopicElementLoaded   = "element:loaded"
	TopicElementFallback = "element:fallback"

	// Placeholder lifecycle
	TopicPlaceholderReady = "placeholder:ready"

	// Dev console fanout
	TopicDevLog = "dev:log"

	// System events
	TopicSystemError = "system:error"
	TopicSystemInfo  = "system:info"
)

// ElementEvent describes one transition of an image element.
type ElementEvent struct {
	DocumentID string    `json:"document_id"`
	ElementID  string    `json:"element_id"`
	URL        string    `json:"url,omitempty"`
	Seq        uint64    `json:"seq,omitempty"`
	State      string    `json:"state,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// PlaceholderEvent reports a placeholder becoming available for an element.
type PlaceholderEvent struct {
	DocumentID string    `json:"document_id"`
	ElementID  string    `json:"element_id"`
	Colors     int       `json:"colors"`
	Blurred    bool      `json:"blurred"`
	At         time.Time `json:"at"`
}

// DevLogEvent is a log line fanned out to dev-console subscribers.
type DevLogEvent struct {
	Level   string    `json:"level"`
	Tag     string    `json:"tag"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SystemEvent carries errors and notices that are not tied to one element.
type SystemEvent struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
