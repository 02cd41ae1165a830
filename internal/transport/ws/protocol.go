package ws

import (
	"time"

	"github.com/bytedance/sonic"
)

// Client message types accepted over the runtime channel.
const (
	ClientTypeHello  = "hello"
	ClientTypeBuild  = "build"
	ClientTypeLayout = "layout"
	ClientTypeMutate = "mutate"
	ClientTypeQuery  = "query"
	ClientTypePing   = "ping"
)

// Server message types pushed back to the client.
const (
	ServerTypeHelloAck = "hello_ack"
	ServerTypeEvent    = "event"
	ServerTypeState    = "state"
	ServerTypeLog      = "log"
	ServerTypeError    = "error"
	ServerTypePong     = "pong"
)

// ClientMessage is the envelope for every inbound runtime command.
type ClientMessage struct {
	Type       string            `json:"type"`
	DocumentID string            `json:"document_id,omitempty"`
	ElementID  string            `json:"element_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Width      int               `json:"width,omitempty"`
}

// ServerMessage is the envelope for every outbound runtime push.
type ServerMessage struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id,omitempty"`
	ElementID  string    `json:"element_id,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	State      string    `json:"state,omitempty"`
	URL        string    `json:"url,omitempty"`
	Seq        uint64    `json:"seq,omitempty"`
	Message    string    `json:"message,omitempty"`
	Data       any       `json:"data,omitempty"`
	At         time.Time `json:"at,omitempty"`
}

// DecodeClientMessage parses an inbound frame.
func DecodeClientMessage(payload []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeServerMessage serializes an outbound frame.
func EncodeServerMessage(msg *ServerMessage) ([]byte, error) {
	return sonic.Marshal(msg)
}
