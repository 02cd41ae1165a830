package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	appservices "storyview-server-go/internal/app/services"
	"storyview-server-go/internal/domain/blur"
	"storyview-server-go/internal/domain/events"
	domainloader "storyview-server-go/internal/domain/loader"
	loaderstore "storyview-server-go/internal/domain/loader/store"
	"storyview-server-go/internal/domain/placeholder"
	"storyview-server-go/internal/domain/share"
	"storyview-server-go/internal/domain/story"
	platformconfig "storyview-server-go/internal/platform/config"
	platformerrors "storyview-server-go/internal/platform/errors"
	platformlogging "storyview-server-go/internal/platform/logging"
	platformobservability "storyview-server-go/internal/platform/observability"
	platformstorage "storyview-server-go/internal/platform/storage"
	httptransport "storyview-server-go/internal/transport/http"
	httprender "storyview-server-go/internal/transport/http/render"
	httpstoryapi "storyview-server-go/internal/transport/http/storyapi"
	"storyview-server-go/internal/transport/ws"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string

	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	cacheStore loaderstore.Store
	blurWorker *blur.Worker
	generator  *placeholder.Generator
	loader     *domainloader.Controller

	registry *story.Registry
	journal  *events.Journal
	share    *share.Service
}

// Run drives the whole service lifecycle: configuration, dependency
// initialisation, transport startup and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.Wrap(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
			errors.New("config/logger not initialised"),
		)
	}
	if state.registry == nil || state.loader == nil || state.generator == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"pipeline not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability shutdown incomplete: %v", err)
			}
		}()
	}

	defer func() {
		state.loader.Close()
		if state.blurWorker != nil {
			state.blurWorker.Stop()
		}
		if err := platformstorage.CloseDatabase(); err != nil {
			logger.WarnTag("STORE", "database close failed: %v", err)
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	wsServer, err := startServices(state, group, groupCtx)
	if err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group, wsServer); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "all services stopped")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	logger.InfoTag("BOOT", "initialisation order")
	for _, step := range steps {
		logger.InfoTag("BOOT", "  %s", step.Title)
	}
	logger.InfoTag("BOOT", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares the ordered initialisation steps with their
// dependencies. executeInitSteps refuses a step whose dependency has
// not completed.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "loader:init-cache",
			Title:     "Initialise image cache store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initCacheStep,
		},
		{
			ID:        "media:init-pipeline",
			Title:     "Initialise media pipeline",
			DependsOn: []string{"logging:init-provider", "loader:init-cache"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initMediaPipelineStep,
		},
		{
			ID:        "story:init-registry",
			Title:     "Initialise story registry",
			DependsOn: []string{"storage:init-database", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initStoryStep,
		},
		{
			ID:        "share:init-service",
			Title:     "Initialise share link service",
			DependsOn: []string{"storage:init-database", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initShareStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(&platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialise logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()
	platformlogging.DefaultLogger = logger

	logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled ||
			strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if err := platformstorage.InitDatabase(state.config.Database.Path); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialise database", err)
	}
	return nil
}

func initCacheStep(_ context.Context, state *appState) error {
	cacheCfg := state.config.Loader.Cache

	storeCfg := loaderstore.Config{
		Driver: strings.ToLower(strings.TrimSpace(cacheCfg.Driver)),
		TTL:    time.Duration(cacheCfg.TTLSeconds) * time.Second,
	}
	switch storeCfg.Driver {
	case loaderstore.DriverRedis:
		if cacheCfg.Redis.Addr == "" {
			return platformerrors.New(
				platformerrors.KindConfig,
				"loader:init-cache",
				"redis cache driver requires an addr",
			)
		}
		storeCfg.Redis = &loaderstore.RedisConfig{
			Addr:     cacheCfg.Redis.Addr,
			Username: cacheCfg.Redis.Username,
			Password: cacheCfg.Redis.Password,
			DB:       cacheCfg.Redis.DB,
			Prefix:   cacheCfg.Redis.Prefix,
		}
	case loaderstore.DriverSQLite:
		// handled through deps below
	default:
		storeCfg.Driver = loaderstore.DriverMemory
	}

	cacheStore, err := loaderstore.New(storeCfg, loaderstore.Dependencies{
		SQLiteDB: platformstorage.GetDB(),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "loader:init-cache", "failed to create cache store", err)
	}
	state.cacheStore = cacheStore

	state.logger.InfoTag("STORE", "image cache ready driver=%s", storeCfg.Driver)
	return nil
}

func initMediaPipelineStep(_ context.Context, state *appState) error {
	state.blurWorker = blur.NewWorker(state.logger)
	state.generator = placeholder.NewGenerator(state.config.Placeholder, state.blurWorker, state.logger)
	state.loader = domainloader.NewController(state.config.Loader, state.cacheStore, state.logger)
	return nil
}

func initStoryStep(_ context.Context, state *appState) error {
	db := platformstorage.GetDB()

	state.registry = story.NewRegistry(state.logger, db)
	state.journal = events.NewJournal(db)
	if err := state.journal.Attach(events.Get()); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "story:init-registry", "failed to attach event journal", err)
	}
	return nil
}

func initShareStep(_ context.Context, state *appState) error {
	if strings.TrimSpace(state.config.Share.Secret) == "" {
		state.logger.WarnTag("SHARE", "no share secret configured, share links disabled")
		return nil
	}

	svc, err := share.NewService(state.config.Share, platformstorage.GetDB(), state.logger)
	if err != nil {
		return err
	}
	state.share = svc
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) (*ws.Server, error) {
	wsServer, err := startWSServer(state, g, groupCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to start websocket transport: %w", err)
	}

	if state.config.Web.Enabled {
		if _, err := startHTTPServer(state, wsServer, g, groupCtx); err != nil {
			return nil, fmt.Errorf("failed to start HTTP transport: %w", err)
		}
	} else {
		state.logger.InfoTag("HTTP", "web server disabled by configuration")
	}

	return wsServer, nil
}

func startWSServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*ws.Server, error) {
	config := state.config
	logger := state.logger

	hub := ws.NewHub(logger)
	router := ws.NewRouter(hub, logger, ws.RouterOptions{})
	server := ws.NewServer(ws.ServerConfig{
		Addr: config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Path: "/",
	}, router, hub, logger)

	server.SetHandlerBuilder(appservices.HandlerBuilder(
		config,
		logger,
		state.registry,
		state.loader,
		state.generator,
		events.Get(),
	))

	g.Go(func() error {
		go func() {
			<-groupCtx.Done()
			logger.InfoTag("WS", "shutdown requested, stopping websocket server")
			if err := server.Stop(); err != nil {
				logger.ErrorTag("WS", "websocket server stop failed: %v", err)
			}
		}()

		if err := server.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			logger.ErrorTag("WS", "websocket server failed: %v", err)
			return err
		}
		return nil
	})

	return server, nil
}

func startHTTPServer(state *appState, wsServer *ws.Server, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine
	apiGroup := httpRouter.API

	router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.File(config.Web.StaticDir + "/index.html")
	})

	renderService, err := httprender.NewService(config, state.generator, logger)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "render:new-service", "failed to create render service", err)
	}

	storyService, err := httpstoryapi.NewService(httpstoryapi.Options{
		Config:     config,
		Logger:     logger,
		Registry:   state.registry,
		Share:      state.share,
		Journal:    state.journal,
		CacheStats: state.loader.CacheStats,
		WSCounts:   wsServer.Counts,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "storyapi:new-service", "failed to create story API service", err)
	}

	if err := renderService.Register(groupCtx, apiGroup); err != nil {
		return nil, err
	}
	if err := storyService.Register(groupCtx, apiGroup); err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "HTTP server listening on http://localhost:%d", config.Web.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
	wsServer *ws.Server,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutdown signal received (%v), cleaning up", context.Cause(ctx))

	cancel()
	if wsServer != nil {
		if err := wsServer.Stop(); err != nil {
			logger.WarnTag("WS", "websocket server stop failed: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services shut down cleanly")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("service shutdown timed out")
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}

// loadConfigAndLogger runs the head of the init graph. Used by tests.
func loadConfigAndLogger() (*platformconfig.Config, *platformlogging.Logger, error) {
	state := &appState{}

	steps := []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
	}

	if err := executeInitSteps(context.Background(), steps, state); err != nil {
		return nil, nil, err
	}

	return state.config, state.logger, nil
}
