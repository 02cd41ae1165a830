package placeholder

import (
	"image"
	"image/png"
	"io"
	"sync"
	"time"

	"storyview-server-go/internal/domain/blur"
	"storyview-server-go/internal/domain/dom"
	"storyview-server-go/internal/platform/logging"
)

// Handle is one placeholder's lifecycle. The canvas starts transparent,
// Reveal fades it in when the real image finishes, and a fixed delay
// later the canvas detaches itself. Blur results arriving after detach
// are dropped.
type Handle struct {
	mu sync.Mutex

	elementID   string
	node        *dom.Node
	img         *image.RGBA
	colors      int
	worker      *blur.Worker
	jobID       string
	detachDelay time.Duration
	logger      *logging.Logger

	inert    bool
	blurred  bool
	revealed bool
	detached bool
	opacity  float64
	onDetach func(*Handle)
}

// Inert reports whether the descriptor produced nothing to show.
func (h *Handle) Inert() bool { return h.inert }

func (h *Handle) ElementID() string { return h.elementID }

// Node returns the canvas node, nil for inert handles.
func (h *Handle) Node() *dom.Node { return h.node }

// Colors is the mosaic's palette size, zero for inert handles.
func (h *Handle) Colors() int { return h.colors }

func (h *Handle) Opacity() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opacity
}

// Blurred reports whether the background blur has been applied yet.
func (h *Handle) Blurred() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blurred
}

func (h *Handle) Revealed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revealed
}

func (h *Handle) Detached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detached
}

// SetOnDetach routes the detach through the owner instead of touching
// the tree from the timer goroutine.
func (h *Handle) SetOnDetach(fn func(*Handle)) {
	h.mu.Lock()
	h.onDetach = fn
	h.mu.Unlock()
}

// Reveal fades the canvas in and arms the removal timer. The timer
// always fires; Detach is idempotent so a handle already torn down by
// its owner is unaffected.
func (h *Handle) Reveal() {
	h.mu.Lock()
	if h.inert || h.revealed || h.detached {
		h.mu.Unlock()
		return
	}
	h.revealed = true
	h.opacity = 1
	delay := h.detachDelay
	h.mu.Unlock()

	if delay <= 0 {
		h.Detach()
		return
	}
	time.AfterFunc(delay, h.Detach)
}

// Detach tears the placeholder down. Safe to call more than once and
// from any goroutine.
func (h *Handle) Detach() {
	h.mu.Lock()
	if h.inert || h.detached {
		h.mu.Unlock()
		return
	}
	h.detached = true
	jobID := h.jobID
	h.jobID = ""
	fn := h.onDetach
	h.mu.Unlock()

	if jobID != "" && h.worker != nil {
		h.worker.Cancel(jobID)
	}
	if fn != nil {
		fn(h)
		return
	}
	if parent := h.node.Parent(); parent != nil {
		parent.RemoveChild(h.node)
	}
}

// EncodePNG writes the current canvas pixels, blurred or not.
func (h *Handle) EncodePNG(w io.Writer) error {
	h.mu.Lock()
	img := h.img
	h.mu.Unlock()
	if img == nil {
		return nil
	}
	return png.Encode(w, img)
}

// applyBlur is the worker sink. A result surfacing after the canvas is
// gone is dropped, which is the whole of the staleness protocol.
func (h *Handle) applyBlur(out *image.RGBA) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detached {
		h.logger.DebugTag("PLACEHOLDER", "element %s: blur finished after detach, dropped", h.elementID)
		return
	}
	h.img = out
	h.blurred = true
	h.jobID = ""
}
