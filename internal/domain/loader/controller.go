package loader

import (
	"context"
	stderrors "errors"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"storyview-server-go/internal/domain/events"
	"storyview-server-go/internal/domain/loader/store"
	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	"storyview-server-go/internal/platform/observability"
	"storyview-server-go/internal/util/work"
)

// Dwell profiles. The standard profile floors completion at
// base + random(0, base); the animated profile adds a fixed pre-delay
// before the fetch starts and extends the floor by the fade window.
const (
	ProfileStandard = "standard"
	ProfileAnimated = "animated"
)

// Result reports one completed load.
type Result struct {
	URL       string
	Format    string
	Width     int
	Height    int
	ByteSize  int64
	FromCache bool
	Waited    time.Duration
}

// Controller runs loads with the minimum-dwell floor. Completion needs
// both the network fetch and the dwell timer; neither alone resolves a
// load. Concurrent loads of one URL share a single fetch.
type Controller struct {
	cfg     config.LoaderConfig
	fetcher *Fetcher
	cache   store.Store
	logger  *logging.Logger

	group    singleflight.Group
	prefetch *work.WorkQueue[string]

	// Injected so tests control time and jitter.
	sleep   func(ctx context.Context, d time.Duration) error
	randInt func(n int64) int64
}

func NewController(cfg config.LoaderConfig, cache store.Store, logger *logging.Logger) *Controller {
	c := &Controller{
		cfg:     cfg,
		fetcher: NewFetcher(cfg, logger),
		cache:   cache,
		logger:  logger,
		sleep:   sleepContext,
		randInt: rand.Int63n,
	}
	if cfg.PrefetchWorkers > 0 {
		c.prefetch = work.NewWorkQueue[string](cfg.PrefetchWorkers, c.prefetchOne)
	}
	return c
}

// Load fetches rawURL and resolves once both the resource and the
// dwell floor are done. Cancelling ctx abandons the wait.
func (c *Controller) Load(ctx context.Context, rawURL string) (*Result, error) {
	if rawURL == "" {
		return nil, errors.New(errors.KindLoad, "loader.load", "source url is empty")
	}

	ctx, end := observability.StartSpan(ctx, "loader", "load")
	var err error
	defer func() { end(err) }()

	start := time.Now()

	if c.cfg.DwellProfile == ProfileAnimated && c.cfg.PreDelayMs > 0 {
		if serr := c.sleep(ctx, time.Duration(c.cfg.PreDelayMs)*time.Millisecond); serr != nil {
			err = errors.Wrap(errors.KindLoad, "loader.load", "canceled during pre-delay", serr)
			return nil, err
		}
	}

	type outcome struct {
		res  *Result
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, ferr := c.fetchOnce(ctx, rawURL)
		ch <- outcome{res, ferr}
	}()

	if serr := c.sleep(ctx, c.dwell()); serr != nil {
		err = errors.Wrap(errors.KindLoad, "loader.load", "canceled during dwell", serr)
		return nil, err
	}

	out := <-ch
	if out.err != nil {
		err = out.err
		events.DevLog("warn", "LOADER", "load failed for "+rawURL+": "+err.Error())
		return nil, err
	}

	out.res.Waited = time.Since(start)
	c.logger.InfoTag("LOADER", "loaded %s (%dx%d, cache=%t) in %s",
		out.res.URL, out.res.Width, out.res.Height, out.res.FromCache, out.res.Waited.Round(time.Millisecond))
	observability.RecordMetric(ctx, "loader.load", 1, map[string]string{"cache": boolLabel(out.res.FromCache)})
	return out.res, nil
}

// Prefetch queues a background probe of rawURL. Higher priority runs
// first. Sources flagged noprerender never reach here.
func (c *Controller) Prefetch(rawURL string, priority int) {
	if c.prefetch == nil || rawURL == "" {
		return
	}
	if err := c.prefetch.Submit(rawURL, priority); err != nil {
		c.logger.DebugTag("LOADER", "prefetch rejected for %s: %v", rawURL, err)
	}
}

func (c *Controller) prefetchOne(rawURL string) error {
	_, err := c.fetchOnce(context.Background(), rawURL)
	if err != nil {
		c.logger.DebugTag("LOADER", "prefetch failed for %s: %v", rawURL, err)
		return err
	}
	return nil
}

// Preconnect warms the connection to rawURL's origin ahead of a likely
// load. Best effort; failures are only logged.
func (c *Controller) Preconnect(ctx context.Context, rawURL string) {
	origin, err := originOf(rawURL)
	if err != nil {
		return
	}
	go func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, origin, nil)
		if err != nil {
			return
		}
		resp, err := c.fetcher.client.Do(req)
		if err != nil {
			c.logger.DebugTag("LOADER", "preconnect to %s failed: %v", origin, err)
			return
		}
		resp.Body.Close()
	}()
}

// Close stops the prefetch workers. In-flight loads finish on their own.
func (c *Controller) Close() {
	if c.prefetch != nil {
		c.prefetch.Stop()
	}
}

// CacheStats surfaces the cache driver's counters for status reporting.
func (c *Controller) CacheStats(ctx context.Context) (map[string]any, error) {
	if c.cache == nil {
		return map[string]any{"type": "none"}, nil
	}
	return c.cache.Stats(ctx)
}

func (c *Controller) fetchOnce(ctx context.Context, rawURL string) (*Result, error) {
	if c.cache != nil {
		if entry, cerr := c.cache.Get(ctx, rawURL); cerr == nil {
			return &Result{
				URL:       entry.URL,
				Format:    entry.Format,
				Width:     entry.Width,
				Height:    entry.Height,
				ByteSize:  entry.ByteSize,
				FromCache: true,
			}, nil
		} else if !stderrors.Is(cerr, store.ErrCacheMiss) {
			c.logger.WarnTag("LOADER", "cache read failed for %s: %v", rawURL, cerr)
		}
	}

	v, err, _ := c.group.Do(rawURL, func() (any, error) {
		probe, ferr := c.fetcher.Fetch(ctx, rawURL)
		if ferr != nil {
			return nil, ferr
		}
		if c.cache != nil {
			entry := store.Entry{
				URL:       probe.URL,
				Format:    probe.Format,
				Width:     probe.Width,
				Height:    probe.Height,
				ByteSize:  probe.ByteSize,
				FetchedAt: time.Now(),
			}
			if perr := c.cache.Put(ctx, entry); perr != nil {
				c.logger.WarnTag("LOADER", "cache write failed for %s: %v", rawURL, perr)
			}
		}
		return &Result{
			URL:      probe.URL,
			Format:   probe.Format,
			Width:    probe.Width,
			Height:   probe.Height,
			ByteSize: probe.ByteSize,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

// dwell computes the randomized completion floor for one load.
func (c *Controller) dwell() time.Duration {
	base := time.Duration(c.cfg.DwellBaseMs) * time.Millisecond
	if base <= 0 {
		return 0
	}
	floor := base + time.Duration(c.randInt(int64(base)))
	if c.cfg.DwellProfile == ProfileAnimated && c.cfg.FadeMs > 0 {
		floor += time.Duration(c.cfg.FadeMs) * time.Millisecond
	}
	return floor
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New(errors.KindLoad, "loader.preconnect", "url has no origin")
	}
	return u.Scheme + "://" + u.Host + "/", nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
