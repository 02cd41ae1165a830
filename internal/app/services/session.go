package services

import (
	"net/http"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"storyview-server-go/internal/domain/dom"
	"storyview-server-go/internal/domain/events"
	"storyview-server-go/internal/domain/loader"
	"storyview-server-go/internal/domain/media"
	"storyview-server-go/internal/domain/placeholder"
	"storyview-server-go/internal/domain/story"
	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	"storyview-server-go/internal/transport/ws"
)

// wire is the slice of the websocket connection the session drives.
// ws.Connection satisfies it; tests use an in-memory double.
type wire interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	IsClosed() bool
}

// SessionConfig wires one runtime session into its collaborators.
type SessionConfig struct {
	Config    *config.Config
	Logger    *logging.Logger
	Registry  *story.Registry
	Loader    media.Loader
	Generator *placeholder.Generator
	Bus       evbus.Bus

	Conn wire
	// DocumentID binds the session at upgrade time. Empty means the
	// client binds later with a hello message.
	DocumentID string
}

// SessionService drives one websocket client: it binds the connection
// to a story document, executes build/layout/mutate commands against
// the document's elements and pushes lifecycle events back out.
type SessionService struct {
	cfg       *config.Config
	logger    *logging.Logger
	registry  *story.Registry
	loader    media.Loader
	generator *placeholder.Generator
	bus       evbus.Bus
	conn      wire

	sessionID string

	mu         sync.Mutex
	documentID string
	doc        *story.Document
	viewport   media.StaticViewport
	closed     bool

	// retained so Close can unsubscribe the exact functions
	onElement     map[string]func(events.ElementEvent)
	onPlaceholder func(events.PlaceholderEvent)
	onDevLog      func(events.DevLogEvent)
}

// NewSessionService validates the wiring and builds a session.
func NewSessionService(cfg SessionConfig) (*SessionService, error) {
	if cfg.Config == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "config is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "document registry is required")
	}
	if cfg.Loader == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "load controller is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "placeholder generator is required")
	}
	if cfg.Conn == nil {
		return nil, errors.New(errors.KindConfig, "session.new", "connection is required")
	}
	if cfg.Bus == nil {
		cfg.Bus = events.Get()
	}

	s := &SessionService{
		cfg:       cfg.Config,
		logger:    cfg.Logger,
		registry:  cfg.Registry,
		loader:    cfg.Loader,
		generator: cfg.Generator,
		bus:       cfg.Bus,
		conn:      cfg.Conn,
		sessionID: uuid.New().String(),
		viewport: media.StaticViewport{
			W: cfg.Config.Runtime.ViewportWidth,
			D: cfg.Config.Runtime.DPR,
		},
	}

	if cfg.DocumentID != "" {
		if err := s.bind(cfg.DocumentID); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SessionID implements ws.SessionHandler.
func (s *SessionService) SessionID() string {
	return s.sessionID
}

// Handle runs the read loop until the connection drops or Close is
// called. Implements ws.SessionHandler.
func (s *SessionService) Handle() {
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.conn.IsClosed() {
				s.logger.DebugTag("WS", "session %s read ended: %v", s.sessionID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := ws.DecodeClientMessage(payload)
		if err != nil {
			s.pushError("", "malformed message")
			continue
		}
		s.dispatch(msg)
	}
}

// Close detaches the session from the event bus. Implements
// ws.SessionHandler; the owning ws.Session closes the connection.
func (s *SessionService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	onElement, onPlaceholder, onDevLog := s.onElement, s.onPlaceholder, s.onDevLog
	s.onElement, s.onPlaceholder, s.onDevLog = nil, nil, nil
	s.mu.Unlock()

	for topic, fn := range onElement {
		_ = s.bus.Unsubscribe(topic, fn)
	}
	if onPlaceholder != nil {
		_ = s.bus.Unsubscribe(events.TopicPlaceholderReady, onPlaceholder)
	}
	if onDevLog != nil {
		_ = s.bus.Unsubscribe(events.TopicDevLog, onDevLog)
	}
	s.logger.InfoTag("WS", "session %s closed", s.sessionID)
}

func (s *SessionService) dispatch(msg *ws.ClientMessage) {
	switch msg.Type {
	case ws.ClientTypeHello:
		s.handleHello(msg)
	case ws.ClientTypeBuild:
		s.handleBuild(msg)
	case ws.ClientTypeLayout:
		s.handleLayout(msg)
	case ws.ClientTypeMutate:
		s.handleMutate(msg)
	case ws.ClientTypeQuery:
		s.handleQuery(msg)
	case ws.ClientTypePing:
		s.push(&ws.ServerMessage{Type: ws.ServerTypePong, At: time.Now()})
	default:
		s.pushError(msg.ElementID, "unknown message type "+msg.Type)
	}
}

// bind attaches the session to a document and starts forwarding its
// lifecycle events to the client.
func (s *SessionService) bind(documentID string) error {
	doc, ok := s.registry.Get(documentID)
	if !ok {
		return errors.New(errors.KindTransport, "session.bind", "unknown document "+documentID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		return errors.New(errors.KindTransport, "session.bind", "session already bound")
	}
	s.documentID = documentID
	s.doc = doc

	s.onElement = make(map[string]func(events.ElementEvent))
	for _, topic := range []string{
		events.TopicElementBuilt,
		events.TopicElementSelected,
		events.TopicElementLoaded,
		events.TopicElementFallback,
	} {
		s.onElement[topic] = func(ev events.ElementEvent) {
			if ev.DocumentID != documentID {
				return
			}
			s.push(&ws.ServerMessage{
				Type:       ws.ServerTypeEvent,
				DocumentID: ev.DocumentID,
				ElementID:  ev.ElementID,
				Topic:      topic,
				State:      ev.State,
				URL:        ev.URL,
				Seq:        ev.Seq,
				Message:    ev.Error,
				At:         ev.At,
			})
		}
	}
	s.onPlaceholder = func(ev events.PlaceholderEvent) {
		if ev.DocumentID != documentID {
			return
		}
		s.push(&ws.ServerMessage{
			Type:       ws.ServerTypeEvent,
			DocumentID: ev.DocumentID,
			ElementID:  ev.ElementID,
			Topic:      events.TopicPlaceholderReady,
			At:         ev.At,
		})
	}

	for topic, fn := range s.onElement {
		if err := s.bus.Subscribe(topic, fn); err != nil {
			return errors.Wrap(errors.KindTransport, "session.bind", "event subscription failed", err)
		}
	}
	if err := s.bus.Subscribe(events.TopicPlaceholderReady, s.onPlaceholder); err != nil {
		return errors.Wrap(errors.KindTransport, "session.bind", "event subscription failed", err)
	}

	s.onDevLog = func(ev events.DevLogEvent) {
		s.push(&ws.ServerMessage{
			Type:    ws.ServerTypeLog,
			Topic:   events.TopicDevLog,
			Message: "[" + ev.Tag + "] " + ev.Message,
			Data:    ev,
			At:      ev.At,
		})
	}
	if err := s.bus.Subscribe(events.TopicDevLog, s.onDevLog); err != nil {
		return errors.Wrap(errors.KindTransport, "session.bind", "event subscription failed", err)
	}

	s.logger.InfoTag("WS", "session %s bound to document %s", s.sessionID, documentID)
	return nil
}

func (s *SessionService) handleHello(msg *ws.ClientMessage) {
	if msg.DocumentID == "" {
		s.pushError("", "hello requires document_id")
		return
	}
	if err := s.bind(msg.DocumentID); err != nil {
		s.pushError("", err.Error())
		return
	}
	if msg.Width > 0 {
		s.mu.Lock()
		s.viewport.W = msg.Width
		s.mu.Unlock()
	}
	s.push(&ws.ServerMessage{
		Type:       ws.ServerTypeHelloAck,
		DocumentID: msg.DocumentID,
		Data:       map[string]any{"session_id": s.sessionID},
		At:         time.Now(),
	})
}

func (s *SessionService) handleBuild(msg *ws.ClientMessage) {
	doc, viewport, ok := s.boundState()
	if !ok {
		s.pushError(msg.ElementID, "session not bound to a document")
		return
	}

	root := dom.NewNode("sv-img")
	if _, ok := msg.Attributes["id"]; !ok {
		root.SetAttribute("id", uuid.New().String())
	}
	for name, value := range msg.Attributes {
		root.SetAttribute(name, value)
	}

	el, err := media.NewElement(media.Options{
		DocumentID: doc.ID(),
		Root:       root,
		Runtime:    s.cfg.Runtime,
		Viewport:   viewport,
		Scheduler:  &media.LockedScheduler{},
		Loader:     s.loader,
		Generator:  s.generator,
		Bus:        s.bus,
		Logger:     s.logger,
	})
	if err != nil {
		s.pushError(msg.ElementID, err.Error())
		return
	}
	if err := el.Build(); err != nil {
		s.pushError(el.ID(), err.Error())
		return
	}
	doc.AddElement(el)

	s.push(&ws.ServerMessage{
		Type:       ws.ServerTypeState,
		DocumentID: doc.ID(),
		ElementID:  el.ID(),
		State:      string(el.State()),
		At:         time.Now(),
	})
}

func (s *SessionService) handleLayout(msg *ws.ClientMessage) {
	el, docID, ok := s.element(msg.ElementID)
	if !ok {
		s.pushError(msg.ElementID, "unknown element")
		return
	}

	width := msg.Width
	if width <= 0 {
		s.mu.Lock()
		width = s.viewport.W
		s.mu.Unlock()
	}
	if err := el.Layout(width); err != nil {
		s.pushError(msg.ElementID, err.Error())
		return
	}

	s.push(&ws.ServerMessage{
		Type:       ws.ServerTypeState,
		DocumentID: docID,
		ElementID:  el.ID(),
		State:      string(el.State()),
		URL:        el.CurrentURL(),
		Seq:        el.Seq(),
		At:         time.Now(),
	})
}

func (s *SessionService) handleMutate(msg *ws.ClientMessage) {
	el, docID, ok := s.element(msg.ElementID)
	if !ok {
		s.pushError(msg.ElementID, "unknown element")
		return
	}
	if err := el.ApplyMutations(msg.Attributes); err != nil {
		s.pushError(msg.ElementID, err.Error())
		return
	}
	s.push(&ws.ServerMessage{
		Type:       ws.ServerTypeState,
		DocumentID: docID,
		ElementID:  el.ID(),
		State:      string(el.State()),
		URL:        el.CurrentURL(),
		Seq:        el.Seq(),
		At:         time.Now(),
	})
}

func (s *SessionService) handleQuery(msg *ws.ClientMessage) {
	doc, _, ok := s.boundState()
	if !ok {
		s.pushError(msg.ElementID, "session not bound to a document")
		return
	}

	if msg.ElementID == "" {
		s.push(&ws.ServerMessage{
			Type:       ws.ServerTypeState,
			DocumentID: doc.ID(),
			Data:       doc.Describe(),
			At:         time.Now(),
		})
		return
	}

	el, ok := doc.Element(msg.ElementID)
	if !ok {
		s.pushError(msg.ElementID, "unknown element")
		return
	}
	s.push(&ws.ServerMessage{
		Type:       ws.ServerTypeState,
		DocumentID: doc.ID(),
		ElementID:  el.ID(),
		State:      string(el.State()),
		Data:       el.Describe(),
		At:         time.Now(),
	})
}

func (s *SessionService) boundState() (*story.Document, media.StaticViewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.viewport, s.doc != nil
}

func (s *SessionService) element(id string) (*media.Element, string, bool) {
	doc, _, ok := s.boundState()
	if !ok || id == "" {
		return nil, "", false
	}
	el, ok := doc.Element(id)
	return el, doc.ID(), ok
}

func (s *SessionService) push(msg *ws.ServerMessage) {
	payload, err := ws.EncodeServerMessage(msg)
	if err != nil {
		s.logger.ErrorTag("WS", "session %s encode failed: %v", s.sessionID, err)
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.DebugTag("WS", "session %s write failed: %v", s.sessionID, err)
	}
}

func (s *SessionService) pushError(elementID, message string) {
	s.push(&ws.ServerMessage{
		Type:      ws.ServerTypeError,
		ElementID: elementID,
		Message:   message,
		At:        time.Now(),
	})
}

// HandlerBuilder adapts the session service to the websocket router.
func HandlerBuilder(cfg *config.Config, logger *logging.Logger, registry *story.Registry, ldr *loader.Controller, gen *placeholder.Generator, bus evbus.Bus) ws.HandlerBuilder {
	return func(conn *ws.Connection, req *http.Request) (ws.SessionHandler, error) {
		documentID, _ := ws.ResolveIdentifiers(req, nil)
		return NewSessionService(SessionConfig{
			Config:     cfg,
			Logger:     logger,
			Registry:   registry,
			Loader:     ldr,
			Generator:  gen,
			Bus:        bus,
			Conn:       conn,
			DocumentID: documentID,
		})
	}
}
