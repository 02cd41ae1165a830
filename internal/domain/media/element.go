// Package media drives the image element lifecycle: attribute
// mutations and layout callbacks funnel into one idempotent selection
// step, loads complete asynchronously, and stale completions are
// discarded by session counter.
package media

import (
	"context"
	"strings"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"storyview-server-go/internal/domain/dom"
	"storyview-server-go/internal/domain/events"
	"storyview-server-go/internal/domain/loader"
	"storyview-server-go/internal/domain/placeholder"
	"storyview-server-go/internal/domain/srcset"
	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	"storyview-server-go/internal/platform/observability"
)

// State is the element lifecycle position.
type State string

const (
	StateUnbuilt     State = "unbuilt"
	StateInitialized State = "initialized"
	StateLayingOut   State = "laying_out"
	StateLoaded      State = "loaded"
	StateFallback    State = "fallback"
)

// Consumed attributes.
const (
	AttrSrc         = "src"
	AttrSrcset      = "srcset"
	AttrSizes       = "sizes"
	AttrNoprerender = "noprerender"
	AttrFallback    = "fallback"
	AttrLowRes      = "low-res"
	AttrBlur        = "blur"
	AttrSSR         = "i-amphtml-ssr"
)

// Classes applied to the rendered tree.
const (
	FillContentClass     = "sv-fill-content"
	GhostClass           = "sv-ghost"
	FallbackVisibleClass = "sv-fallback-visible"
)

// Loader is the slice of the load controller the element drives.
type Loader interface {
	Load(ctx context.Context, url string) (*loader.Result, error)
}

// Options wires one element into its collaborators.
type Options struct {
	DocumentID string
	Root       *dom.Node
	Runtime    config.RuntimeConfig
	Viewport   Viewport
	Scheduler  Scheduler
	Loader     Loader
	Generator  *placeholder.Generator
	Bus        evbus.Bus
	Logger     *logging.Logger
}

// Element is one responsive image element. All state is guarded by mu;
// loads run on their own goroutines and re-enter through
// applyCompletion, which checks the session counter.
type Element struct {
	mu sync.Mutex

	id         string
	documentID string
	root       *dom.Node
	img        *dom.Node
	fallback   *dom.Node

	state   State
	runtime config.RuntimeConfig

	viewport  Viewport
	scheduler Scheduler
	ld        Loader
	generator *placeholder.Generator
	bus       evbus.Bus
	logger    *logging.Logger

	decl string
	set  *srcset.SourceSet

	seq           uint64
	currentURL    string
	displayedURL  string
	loadedOnce    bool
	fallbackShown bool
	nestedInside  bool
	handle        *placeholder.Handle
	lastErr       error
}

// NewElement validates the wiring and returns an unbuilt element.
func NewElement(opts Options) (*Element, error) {
	if opts.Root == nil {
		return nil, errors.New(errors.KindConfig, "media.new", "root node is required")
	}
	if opts.Loader == nil {
		return nil, errors.New(errors.KindConfig, "media.new", "loader is required")
	}
	if opts.Generator == nil {
		return nil, errors.New(errors.KindConfig, "media.new", "placeholder generator is required")
	}

	id, ok := opts.Root.Attribute("id")
	if !ok || id == "" {
		id = uuid.NewString()
	}
	vp := opts.Viewport
	if vp == nil {
		vp = StaticViewport{W: opts.Runtime.ViewportWidth, D: opts.Runtime.DPR}
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = DirectScheduler{}
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.Get()
	}
	logger := opts.Logger
	if logger == nil {
		// Logger methods are nil-safe, but the package default keeps
		// element logs in the shared file when one exists.
		logger = logging.DefaultLogger
	}

	return &Element{
		id:         id,
		documentID: opts.DocumentID,
		root:       opts.Root,
		state:      StateUnbuilt,
		runtime:    opts.Runtime,
		viewport:   vp,
		scheduler:  sched,
		ld:         opts.Loader,
		generator:  opts.Generator,
		bus:        bus,
		logger:     logger,
	}, nil
}

func (e *Element) ID() string { return e.id }

func (e *Element) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentURL is the most recently selected source, which may still be
// in flight.
func (e *Element) CurrentURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentURL
}

// DisplayedURL is the source of the most recently completed load; the
// visible node's src never runs ahead of it.
func (e *Element) DisplayedURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayedURL
}

func (e *Element) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Img exposes the underlying image node.
func (e *Element) Img() *dom.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.img
}

// Placeholder returns the current placeholder handle, nil when none.
func (e *Element) Placeholder() *placeholder.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

// FallbackShown reports whether the one-shot fallback fired.
func (e *Element) FallbackShown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallbackShown
}

// Build moves Unbuilt to Initialized: it creates (or adopts, for
// server-rendered trees) the image node, copies the passthrough
// attributes and records whether a fallback ancestor forbids our own
// fallback. Calling Build on a built element is a no-op.
func (e *Element) Build() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildLocked()
}

func (e *Element) buildLocked() error {
	if e.state != StateUnbuilt {
		return nil
	}

	if e.root.HasAttribute(AttrSSR) {
		if img := e.root.FirstChildByTag("img"); img != nil {
			e.img = img
		}
	}
	if e.img == nil {
		img := dom.NewNode("img")
		img.AddClass(FillContentClass)
		e.img = img
		e.scheduler.Mutate(func() {
			e.root.AppendChild(img)
		})
	}
	e.propagateAttributes(e.root.Attributes())

	e.fallback = e.root.FirstChildWithAttribute(AttrFallback)
	if parent := e.root.Parent(); parent != nil && parent.ClosestWithAttribute(AttrFallback) != nil {
		// Inside another element's fallback subtree: one level of
		// fallback-on-error is the limit.
		e.nestedInside = true
	}

	e.state = StateInitialized
	e.logger.DebugTag("MEDIA", "element %s built (ssr=%t)", e.id, e.root.HasAttribute(AttrSSR))
	e.bus.Publish(events.TopicElementBuilt, e.elementEvent("", ""))

	if !e.root.HasAttribute(AttrNoprerender) {
		e.prefetchCandidates()
	}
	return nil
}

// propagateAttributes copies the allow-listed attributes onto the
// image node. srcset/src/sizes pass through only in experimental mode.
func (e *Element) propagateAttributes(attrs map[string]string) {
	for name, value := range attrs {
		if !e.attributeAllowed(name) {
			continue
		}
		name, value := name, value
		e.scheduler.Mutate(func() {
			e.img.SetAttribute(name, value)
		})
	}
}

func (e *Element) attributeAllowed(name string) bool {
	switch name {
	case "alt", "title":
		return true
	case AttrSrcset, AttrSrc, AttrSizes:
		return e.runtime.ExperimentalPassthrough
	}
	return strings.HasPrefix(name, "aria-")
}

// prefetchCandidates warms the cache for every declared candidate at
// low priority. Best effort; the loader may not support prefetching.
func (e *Element) prefetchCandidates() {
	pf, ok := e.ld.(Prefetcher)
	if !ok {
		return
	}
	set, err := e.resolveSourceSet()
	if err != nil {
		return
	}
	for _, cand := range set.Candidates() {
		pf.Prefetch(cand.URL, 0)
	}
}

// ApplyMutations reacts to host-reported attribute changes. srcset
// changes take precedence over src when both mutate in one batch. Any
// qualifying mutation funnels into the same selection step layouts use.
func (e *Element) ApplyMutations(mutations map[string]string) error {
	if len(mutations) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, value := range mutations {
		name, value := name, value
		e.scheduler.Mutate(func() {
			e.root.SetAttribute(name, value)
		})
	}
	e.propagateAttributes(mutations)

	_, srcsetChanged := mutations[AttrSrcset]
	_, srcChanged := mutations[AttrSrc]
	_, sizesChanged := mutations[AttrSizes]
	if !srcsetChanged && !srcChanged && !sizesChanged {
		return nil
	}
	if srcsetChanged {
		// Invalidate the cached parse; src-only changes keep it when
		// a srcset declaration still wins.
		e.set = nil
		e.decl = ""
	}

	width := int(e.root.Rect().Width)
	if width <= 0 {
		width = e.viewport.Width()
	}
	return e.reselectLocked(width)
}

// Layout is the host's layout callback. A measured width of zero or
// less skips selection entirely and reports success: the element is
// not visible yet.
func (e *Element) Layout(width int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.buildLocked(); err != nil {
		return err
	}
	if width <= 0 {
		e.logger.DebugTag("MEDIA", "element %s: zero-width layout, skipped", e.id)
		return nil
	}
	e.root.SetRect(dom.Rect{Width: float64(width), Height: e.root.Rect().Height})
	return e.reselectLocked(width)
}

// resolveSourceSet returns the cached parse, re-parsing only when the
// declaration changed. srcset wins over src.
func (e *Element) resolveSourceSet() (*srcset.SourceSet, error) {
	if decl, ok := e.root.Attribute(AttrSrcset); ok && decl != "" {
		if e.set != nil && e.decl == decl {
			return e.set, nil
		}
		set, err := srcset.Parse(decl)
		if err != nil {
			return nil, err
		}
		e.set = set
		e.decl = decl
		return set, nil
	}
	if src, ok := e.root.Attribute(AttrSrc); ok && src != "" {
		if e.set != nil && e.decl == src {
			return e.set, nil
		}
		e.set = srcset.FromSrc(src)
		e.decl = src
		return e.set, nil
	}
	return nil, errors.New(errors.KindConfig, "media.select", "element declares no source")
}

// reselectLocked is the single idempotent selection step. Re-running it
// with an unchanged outcome is a no-op: no placeholder, no load.
func (e *Element) reselectLocked(width int) error {
	set, err := e.resolveSourceSet()
	if err != nil {
		return err
	}

	cand, err := set.Select(width, e.viewport.DPR())
	if err != nil {
		return err
	}
	if cand.URL == e.currentURL {
		return nil
	}

	e.state = StateLayingOut
	e.seq++
	session := e.seq
	e.currentURL = cand.URL
	e.logger.InfoTag("MEDIA", "element %s: selected %s (session %d)", e.id, cand.URL, session)
	observability.RecordMetric(context.Background(), "media.selection", 1,
		map[string]string{"element": e.id})
	e.bus.Publish(events.TopicElementSelected, e.elementEvent(cand.URL, ""))

	e.buildPlaceholderLocked(width)

	if pc, ok := e.ld.(Preconnector); ok {
		pc.Preconnect(context.Background(), cand.URL)
	}

	go e.runLoad(session, cand.URL)
	return nil
}

// buildPlaceholderLocked renders the blur-up mosaic for the new
// selection. Shape errors never block the real load.
func (e *Element) buildPlaceholderLocked(width int) {
	if e.fallbackShown {
		// The ghosted state stays visible; a placeholder would obscure it.
		return
	}
	desc := e.placeholderDescriptor()
	if desc == "" {
		return
	}

	height := int(e.root.Rect().Height)
	if height <= 0 {
		height = width
	}
	handle, err := e.generator.Build(e.id, desc, width, height)
	if err != nil {
		e.logger.WarnTag("MEDIA", "element %s: placeholder rejected: %v", e.id, err)
		return
	}
	if handle.Inert() {
		return
	}

	if prev := e.handle; prev != nil {
		prev.Detach()
	}
	e.handle = handle
	node := handle.Node()
	// The detach timer fires on its own goroutine; route the removal
	// through the scheduler like every other tree write.
	sched := e.scheduler
	handle.SetOnDetach(func(*placeholder.Handle) {
		sched.Mutate(func() {
			if parent := node.Parent(); parent != nil {
				parent.RemoveChild(node)
			}
		})
	})
	e.scheduler.Mutate(func() {
		e.root.AppendChild(node)
	})
	e.bus.Publish(events.TopicPlaceholderReady, events.PlaceholderEvent{
		DocumentID: e.documentID,
		ElementID:  e.id,
		Colors:     handle.Colors(),
		Blurred:    handle.Blurred(),
		At:         time.Now(),
	})
}

func (e *Element) placeholderDescriptor() string {
	if v, ok := e.root.Attribute(AttrLowRes); ok && v != "" {
		return v
	}
	if v, ok := e.root.Attribute(AttrBlur); ok && v != "" {
		return v
	}
	return ""
}

// runLoad drives one load session to completion. It never holds the
// element lock across the fetch.
func (e *Element) runLoad(session uint64, url string) {
	_, err := e.ld.Load(context.Background(), url)
	if aerr := e.applyCompletion(session, url, err); aerr != nil {
		e.logger.WarnTag("MEDIA", "element %s: load of %s failed: %v", e.id, url, aerr)
	}
}

// applyCompletion applies a finished load. Completions whose session no
// longer matches the element's counter are stale and discarded; a slow
// early load can never overwrite a fast later one.
func (e *Element) applyCompletion(session uint64, url string, loadErr error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if session != e.seq {
		e.logger.DebugTag("MEDIA", "element %s: stale completion for %s (session %d, now %d), dropped",
			e.id, url, session, e.seq)
		return nil
	}

	if loadErr != nil {
		return e.failLocked(url, loadErr)
	}

	e.loadedOnce = true
	e.state = StateLoaded
	e.lastErr = nil
	e.displayedURL = url
	img := e.img
	e.scheduler.Mutate(func() {
		img.SetAttribute(AttrSrc, url)
		img.RemoveClass(GhostClass)
	})
	if e.fallback != nil {
		fb := e.fallback
		e.scheduler.Mutate(func() {
			fb.RemoveClass(FallbackVisibleClass)
		})
	}
	if e.handle != nil {
		e.handle.Reveal()
	}

	observability.RecordMetric(context.Background(), "media.load_ok", 1,
		map[string]string{"element": e.id})
	e.bus.Publish(events.TopicElementLoaded, e.elementEvent(url, ""))
	return nil
}

// failLocked handles a load failure: one fallback per element lifetime,
// on the first layout attempt only, and the error is returned after
// handling so telemetry still observes it.
func (e *Element) failLocked(url string, loadErr error) error {
	e.lastErr = loadErr
	observability.RecordMetric(context.Background(), "media.load_fail", 1,
		map[string]string{"element": e.id})

	if e.loadedOnce {
		// A later failure never degrades an element that has shown a
		// real image; the last completed selection stays visible.
		e.state = StateLoaded
		e.currentURL = e.displayedURL
		return errors.Wrap(errors.KindLoad, "media.load", "load failed after successful layout", loadErr)
	}

	if e.fallbackShown || e.nestedInside {
		e.state = StateFallback
		return errors.Wrap(errors.KindLoad, "media.load", "load failed, fallback already shown", loadErr)
	}

	e.fallbackShown = true
	e.state = StateFallback
	img := e.img
	e.scheduler.Mutate(func() {
		img.AddClass(GhostClass)
	})
	if e.fallback != nil {
		fb := e.fallback
		e.scheduler.Mutate(func() {
			fb.AddClass(FallbackVisibleClass)
		})
	}
	if e.handle != nil {
		// The placeholder would obscure the ghosted state.
		e.handle.Detach()
		e.handle = nil
	}

	observability.RecordMetric(context.Background(), "media.fallback", 1,
		map[string]string{"element": e.id})
	e.bus.Publish(events.TopicElementFallback, e.elementEvent(url, loadErr.Error()))
	e.logger.WarnTag("MEDIA", "element %s: entered fallback after %s failed", e.id, url)
	return errors.Wrap(errors.KindLoad, "media.load", "load failed, fallback shown", loadErr)
}

func (e *Element) elementEvent(url, errMsg string) events.ElementEvent {
	return events.ElementEvent{
		DocumentID: e.documentID,
		ElementID:  e.id,
		URL:        url,
		Seq:        e.seq,
		State:      string(e.state),
		Error:      errMsg,
		At:         time.Now(),
	}
}

// LastError returns the most recent load error, nil after a success.
func (e *Element) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Describe summarizes the element for the HTTP API.
func (e *Element) Describe() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	desc := map[string]any{
		"id":            e.id,
		"state":         string(e.state),
		"current_url":   e.currentURL,
		"displayed_url": e.displayedURL,
		"seq":           e.seq,
		"fallback":      e.fallbackShown,
	}
	if e.lastErr != nil {
		desc["error"] = e.lastErr.Error()
	}
	return desc
}
