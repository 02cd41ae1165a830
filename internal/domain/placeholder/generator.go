package placeholder

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"time"

	"github.com/gogpu/gg"

	"storyview-server-go/internal/domain/blur"
	"storyview-server-go/internal/domain/dom"
	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	"storyview-server-go/internal/platform/observability"
)

// PlaceholderClass marks the mosaic canvas node in the element tree.
const PlaceholderClass = "sv-blurry-placeholder"

// Generator builds placeholder handles. The blur worker is shared
// process-wide; passing nil adopts the lazy singleton.
type Generator struct {
	cfg    config.PlaceholderConfig
	worker *blur.Worker
	logger *logging.Logger
}

func NewGenerator(cfg config.PlaceholderConfig, worker *blur.Worker, logger *logging.Logger) *Generator {
	if worker == nil {
		worker = blur.Shared()
	}
	return &Generator{cfg: cfg, worker: worker, logger: logger}
}

// Build renders the mosaic for one element and returns its handle. A
// descriptor with no usable colors yields an inert handle and no error;
// a non-square color count is a construction failure the caller treats
// as "no placeholder" without blocking the real image.
func (g *Generator) Build(elementID, descriptor string, width, height int) (*Handle, error) {
	_, end := observability.StartSpan(context.Background(), "placeholder", "build")
	var err error
	defer func() { end(err) }()

	if width <= 0 || height <= 0 {
		err = errors.New(errors.KindPlaceholder, "placeholder.build",
			fmt.Sprintf("canvas %dx%d has no area", width, height))
		return nil, err
	}

	colors := ParsePalette(descriptor)
	if len(colors) == 0 {
		g.logger.DebugTag("PLACEHOLDER", "element %s: descriptor has no usable colors", elementID)
		return &Handle{inert: true, elementID: elementID}, nil
	}

	side := gridSide(len(colors))
	if side == 0 {
		err = errors.New(errors.KindPlaceholder, "placeholder.build",
			fmt.Sprintf("palette of %d colors is not a square grid", len(colors)))
		return nil, err
	}

	width, height = g.clampCanvas(width, height)

	img, perr := paintMosaic(colors, side, width, height)
	if perr != nil {
		err = perr
		return nil, err
	}

	node := dom.NewNode("canvas")
	node.SetAttribute("width", fmt.Sprintf("%d", width))
	node.SetAttribute("height", fmt.Sprintf("%d", height))
	node.AddClass(PlaceholderClass)

	h := &Handle{
		elementID:   elementID,
		node:        node,
		img:         img,
		colors:      len(colors),
		worker:      g.worker,
		detachDelay: g.detachDelay(),
		logger:      g.logger,
	}

	if g.cfg.BlurEnabled {
		if radius := width / 4; radius >= 1 {
			h.jobID = g.worker.Submit(img, radius, h.applyBlur)
		}
	}

	observability.RecordMetric(context.Background(), "placeholder.built", 1,
		map[string]string{"element": elementID})
	g.logger.InfoTag("PLACEHOLDER", "element %s: %dx%d mosaic from %d colors", elementID, width, height, len(colors))
	return h, nil
}

// RenderPNG paints and blurs a placeholder synchronously and writes it
// as PNG. This is the request/response path; it never touches the
// shared worker.
func (g *Generator) RenderPNG(descriptor string, width, height int, out io.Writer) error {
	if width <= 0 || height <= 0 {
		return errors.New(errors.KindPlaceholder, "placeholder.render",
			fmt.Sprintf("canvas %dx%d has no area", width, height))
	}

	colors := ParsePalette(descriptor)
	if len(colors) == 0 {
		return errors.New(errors.KindPlaceholder, "placeholder.render", "descriptor has no usable colors")
	}
	side := gridSide(len(colors))
	if side == 0 {
		return errors.New(errors.KindPlaceholder, "placeholder.render",
			fmt.Sprintf("palette of %d colors is not a square grid", len(colors)))
	}

	width, height = g.clampCanvas(width, height)

	img, err := paintMosaic(colors, side, width, height)
	if err != nil {
		return err
	}
	if g.cfg.BlurEnabled {
		blur.Blur(img, width/4)
	}
	if err := png.Encode(out, img); err != nil {
		return errors.Wrap(errors.KindPlaceholder, "placeholder.render", "png encode failed", err)
	}
	return nil
}

func (g *Generator) clampCanvas(width, height int) (int, int) {
	max := g.cfg.MaxCanvas
	if max <= 0 {
		return width, height
	}
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= max {
		return width, height
	}
	// The canvas is decorative and upscaled by the client, so shrink it
	// instead of refusing.
	scale := float64(max) / float64(longest)
	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func (g *Generator) detachDelay() time.Duration {
	if g.cfg.DetachDelayMs <= 0 {
		return 0
	}
	return time.Duration(g.cfg.DetachDelayMs) * time.Millisecond
}

// gridSide returns sqrt(n) when n is a perfect square, else 0.
func gridSide(n int) int {
	side := int(math.Sqrt(float64(n)))
	for side*side < n {
		side++
	}
	if side*side != n {
		return 0
	}
	return side
}

func paintMosaic(colors []string, side, width, height int) (*image.RGBA, error) {
	dc := gg.NewContext(width, height)
	defer dc.Close()

	cellW := float64(width) / float64(side)
	cellH := float64(height) / float64(side)
	for i, hex := range colors {
		col := i % side
		row := i / side
		dc.SetHexColor(hex)
		dc.DrawRectangle(float64(col)*cellW, float64(row)*cellH, cellW, cellH)
		if err := dc.Fill(); err != nil {
			return nil, errors.Wrap(errors.KindPlaceholder, "placeholder.paint", "mosaic fill failed", err)
		}
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, errors.New(errors.KindPlaceholder, "placeholder.paint", "canvas produced an unexpected image type")
	}
	return img, nil
}
