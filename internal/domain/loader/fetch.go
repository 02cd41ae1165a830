// Package loader fetches and probes the image sources the resolver
// picks, applying the progressive-reveal dwell before reporting
// completion.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
)

const fetchTimeout = 30 * time.Second

// Probe is the decoded metadata of a fetched source.
type Probe struct {
	URL      string
	Format   string
	Width    int
	Height   int
	ByteSize int64
}

var imageSignatures = []struct {
	format string
	magic  []byte
}{
	{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{"jpeg", []byte{0xFF, 0xD8}},
	{"gif", []byte{0x47, 0x49, 0x46, 0x38}},
	{"webp", []byte{0x52, 0x49, 0x46, 0x46}},
	{"bmp", []byte{0x42, 0x4D}},
}

// sniffFormat matches the payload's magic bytes, returning "" when no
// known signature fits.
func sniffFormat(data []byte) string {
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format
		}
	}
	return ""
}

// Fetcher downloads a source and validates it against the configured
// size and dimension caps.
type Fetcher struct {
	client *http.Client
	cfg    config.LoaderConfig
	logger *logging.Logger
}

func NewFetcher(cfg config.LoaderConfig, logger *logging.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch downloads rawURL and probes its pixel dimensions. The body is
// read through a hard size cap so a mislabeled resource cannot balloon
// memory.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Probe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindLoad, "loader.fetch", "invalid source url", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindLoad, "loader.fetch", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.KindLoad, "loader.fetch",
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, rawURL))
	}

	maxSize := f.cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 5 * 1024 * 1024
	}
	limited := &io.LimitedReader{R: resp.Body, N: maxSize + 1}

	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.Wrap(errors.KindLoad, "loader.fetch", "stream image bytes", err)
	}
	if limited.N <= 0 {
		return nil, errors.New(errors.KindLoad, "loader.fetch",
			fmt.Sprintf("image exceeds maximum size of %d bytes", maxSize))
	}
	if len(raw) == 0 {
		return nil, errors.New(errors.KindLoad, "loader.fetch", "empty image payload")
	}

	probe, err := f.probeBytes(raw)
	if err != nil {
		return nil, err
	}
	probe.URL = rawURL
	return probe, nil
}

func (f *Fetcher) probeBytes(raw []byte) (*Probe, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		if sniffed := sniffFormat(raw); sniffed == "" {
			n := len(raw)
			if n > 16 {
				n = 16
			}
			f.logger.WarnTag("LOADER", "payload has no known image signature, header=%x", raw[:n])
		}
		return nil, errors.Wrap(errors.KindLoad, "loader.decode", "decode image config", err)
	}

	if f.cfg.MaxWidth > 0 && cfg.Width > f.cfg.MaxWidth ||
		f.cfg.MaxHeight > 0 && cfg.Height > f.cfg.MaxHeight {
		return nil, errors.New(errors.KindLoad, "loader.decode",
			fmt.Sprintf("dimensions exceed limit: %dx%d (max %dx%d)",
				cfg.Width, cfg.Height, f.cfg.MaxWidth, f.cfg.MaxHeight))
	}

	totalPixels := int64(cfg.Width) * int64(cfg.Height)
	if f.cfg.MaxPixels > 0 && totalPixels > f.cfg.MaxPixels {
		return nil, errors.New(errors.KindLoad, "loader.decode",
			fmt.Sprintf("pixel count exceeds limit: %d (max %d)", totalPixels, f.cfg.MaxPixels))
	}

	f.logger.DebugTag("LOADER", "probe ok: format=%s size=%dx%d bytes=%d", format, cfg.Width, cfg.Height, len(raw))
	return &Probe{
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
		ByteSize: int64(len(raw)),
	}, nil
}
