package loader

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"storyview-server-go/internal/domain/loader/store"
	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, w, h int) *httptest.Server {
	t.Helper()
	payload := pngBytes(t, w, h)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "image/png")
		_, _ = rw.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// sleepRecorder replaces the injected sleep so tests observe the dwell
// without waiting it out.
type sleepRecorder struct {
	mu     sync.Mutex
	slept  []time.Duration
	result error
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	r.mu.Unlock()
	return r.result
}

func (r *sleepRecorder) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.slept...)
}

func newTestController(cfg config.LoaderConfig, rec *sleepRecorder) *Controller {
	c := NewController(cfg, store.NewMemory(store.Config{TTL: time.Minute}), nil)
	c.sleep = rec.sleep
	c.randInt = func(n int64) int64 { return n / 2 }
	return c
}

func TestLoadWaitsDwellFloor(t *testing.T) {
	srv := imageServer(t, 24, 16)
	rec := &sleepRecorder{}
	c := newTestController(config.LoaderConfig{
		DwellProfile: ProfileStandard,
		DwellBaseMs:  100,
	}, rec)
	defer c.Close()

	res, err := c.Load(context.Background(), srv.URL+"/photo.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Width != 24 || res.Height != 16 || res.Format != "png" {
		t.Fatalf("unexpected probe: %+v", res)
	}
	if res.FromCache {
		t.Fatal("first load must not be served from cache")
	}

	// base 100ms plus half of base from the pinned jitter
	slept := rec.durations()
	if len(slept) != 1 || slept[0] != 150*time.Millisecond {
		t.Fatalf("dwell sleeps = %v, want [150ms]", slept)
	}
}

func TestLoadAnimatedProfileAddsPreDelayAndFade(t *testing.T) {
	srv := imageServer(t, 8, 8)
	rec := &sleepRecorder{}
	c := newTestController(config.LoaderConfig{
		DwellProfile: ProfileAnimated,
		DwellBaseMs:  100,
		PreDelayMs:   40,
		FadeMs:       60,
	}, rec)
	defer c.Close()

	if _, err := c.Load(context.Background(), srv.URL+"/anim.png"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	slept := rec.durations()
	if len(slept) != 2 {
		t.Fatalf("sleep count = %d, want 2 (pre-delay + dwell)", len(slept))
	}
	if slept[0] != 40*time.Millisecond {
		t.Fatalf("pre-delay = %v, want 40ms", slept[0])
	}
	// base + jitter + fade window
	if slept[1] != 210*time.Millisecond {
		t.Fatalf("dwell = %v, want 210ms", slept[1])
	}
}

func TestLoadServesSecondHitFromCache(t *testing.T) {
	srv := imageServer(t, 12, 12)
	rec := &sleepRecorder{}
	c := newTestController(config.LoaderConfig{DwellBaseMs: 10}, rec)
	defer c.Close()

	url := srv.URL + "/cached.png"
	if _, err := c.Load(context.Background(), url); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	res, err := c.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !res.FromCache {
		t.Fatal("second load should hit the cache")
	}
}

func TestLoadEmptyURL(t *testing.T) {
	rec := &sleepRecorder{}
	c := newTestController(config.LoaderConfig{}, rec)
	defer c.Close()

	_, err := c.Load(context.Background(), "")
	if err == nil || !errors.IsKind(err, errors.KindLoad) {
		t.Fatalf("err = %v, want load error", err)
	}
}

func TestLoadCanceledDuringDwell(t *testing.T) {
	srv := imageServer(t, 8, 8)
	rec := &sleepRecorder{result: context.Canceled}
	c := newTestController(config.LoaderConfig{DwellBaseMs: 100}, rec)
	defer c.Close()

	_, err := c.Load(context.Background(), srv.URL+"/slow.png")
	if err == nil || !errors.IsKind(err, errors.KindLoad) {
		t.Fatalf("err = %v, want load error from canceled dwell", err)
	}
}

func TestLoadRejectsOversizedPayload(t *testing.T) {
	srv := imageServer(t, 64, 64)
	rec := &sleepRecorder{}
	c := newTestController(config.LoaderConfig{
		DwellBaseMs: 1,
		MaxFileSize: 16,
	}, rec)
	defer c.Close()

	_, err := c.Load(context.Background(), srv.URL+"/big.png")
	if err == nil || !errors.IsKind(err, errors.KindLoad) {
		t.Fatalf("err = %v, want size-cap load error", err)
	}
}

func TestDwellZeroBase(t *testing.T) {
	rec := &sleepRecorder{}
	c := newTestController(config.LoaderConfig{}, rec)
	defer c.Close()

	if d := c.dwell(); d != 0 {
		t.Fatalf("dwell with zero base = %v, want 0", d)
	}
}
