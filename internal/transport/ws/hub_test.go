package ws

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubHandler struct {
	id      string
	closed  atomic.Bool
	running chan struct{}
}

func newStubHandler(id string) *stubHandler {
	return &stubHandler{id: id, running: make(chan struct{})}
}

func (h *stubHandler) Handle()           { <-h.running }
func (h *stubHandler) Close()            { h.closed.Store(true); close(h.running) }
func (h *stubHandler) SessionID() string { return h.id }

func TestHubRegisterAndCounts(t *testing.T) {
	hub := NewHub(nil)

	a := NewSession(context.Background(), newStubHandler("a"), nil, nil)
	b := NewSession(context.Background(), newStubHandler("b"), nil, nil)
	hub.Register(a)
	hub.Register(b)
	hub.Register(nil)

	clients, sessions := hub.Counts()
	if clients != 2 || sessions != 2 {
		t.Fatalf("counts = (%d, %d), want (2, 2)", clients, sessions)
	}

	hub.Unregister("a")
	hub.Unregister("")
	clients, _ = hub.Counts()
	if clients != 1 {
		t.Fatalf("clients after unregister = %d, want 1", clients)
	}
}

func TestHubCloseAllCancelsSessions(t *testing.T) {
	hub := NewHub(nil)

	handler := newStubHandler("s1")
	session := NewSession(context.Background(), handler, nil, nil)
	hub.Register(session)

	hub.CloseAll(errors.New("shutting down"))

	if !handler.closed.Load() {
		t.Fatal("handler was not closed")
	}
	select {
	case <-session.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("session context not cancelled")
	}
	if clients, _ := hub.Counts(); clients != 0 {
		t.Fatalf("clients after CloseAll = %d, want 0", clients)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	handler := newStubHandler("s2")
	session := NewSession(context.Background(), handler, nil, nil)

	session.Close(nil)
	session.Close(errors.New("again"))

	if cause := context.Cause(session.Context()); !errors.Is(cause, ErrSessionShutdown) {
		t.Fatalf("cause = %v, want ErrSessionShutdown", cause)
	}
}

func TestProtocolRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"layout","element_id":"img-1","width":420}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage: %v", err)
	}
	if msg.Type != ClientTypeLayout || msg.ElementID != "img-1" || msg.Width != 420 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	out, err := EncodeServerMessage(&ServerMessage{
		Type:      ServerTypeEvent,
		ElementID: "img-1",
		Topic:     "element:loaded",
		Seq:       3,
	})
	if err != nil {
		t.Fatalf("EncodeServerMessage: %v", err)
	}
	round, err := DecodeClientMessage(out)
	if err != nil {
		t.Fatalf("decode encoded frame: %v", err)
	}
	if round.Type != ServerTypeEvent || round.ElementID != "img-1" {
		t.Fatalf("unexpected round trip: %+v", round)
	}
}
