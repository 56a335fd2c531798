package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/api"
	"github.com/eugenenazirov/config-overlay/internal/cache"
	"github.com/eugenenazirov/config-overlay/internal/config"
	"github.com/eugenenazirov/config-overlay/internal/merge"
	"github.com/eugenenazirov/config-overlay/internal/metrics"
	"github.com/eugenenazirov/config-overlay/internal/overrides"
	"github.com/eugenenazirov/config-overlay/internal/restart"
	"github.com/eugenenazirov/config-overlay/internal/store"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	cfg     config.Config
	store   *store.OverrideStore
	cache   cache.Cache
	engine  *merge.Engine
	service *overrides.Service
	metrics *metrics.Collector
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
// Failing to reach the override store within the configured timeout is fatal.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c, err := OpenCache(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	coordinator := cache.NewCoordinator(c, logger,
		cache.WithGraceInterval(cfg.Cache.GraceInterval),
		cache.WithRecorder(collector),
	)
	engine := NewEngine(cfg, st, logger, collector)
	signaler := restart.NewSignaler(cfg.Restart.Markers, logger, restart.WithRecorder(collector))

	service := overrides.New(overrides.Deps{
		Store:    st,
		Cache:    coordinator,
		Engine:   engine,
		Signaler: signaler,
		Logger:   logger,
	},
		overrides.WithBasePath(cfg.Merge.BasePath),
		overrides.WithCacheTTL(cfg.Cache.TTL),
		overrides.WithRecorder(collector),
	)

	handler := api.NewHandler(service, api.WithHandlerLogger(logger))
	routerOpts := []api.RouterOption{
		api.WithLogging(cfg.Server.RequestLoggingEnabled()),
		api.WithMetricsHandler(collector.Handler()),
	}
	if cfg.Server.RateLimit.Disabled {
		routerOpts = append(routerOpts, api.WithRateLimit(0, 0))
	} else {
		routerOpts = append(routerOpts, api.WithRateLimit(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst))
	}
	router := api.NewRouter(handler, logger, routerOpts...)

	return &App{
		cfg:     cfg,
		store:   st,
		cache:   c,
		engine:  engine,
		service: service,
		metrics: collector,
		handler: handler,
		router:  router,
		logger:  logger,
		server:  NewServer(cfg, router),
	}, nil
}

// OpenStore connects the configured override store backend.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store.OverrideStore, error) {
	backend, err := store.OpenBackend(ctx, cfg.Store.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	logger.Info("override store connected", zap.String("driver", cfg.Store.Driver))
	return store.New(backend, store.WithLogger(logger)), nil
}

// OpenCache returns the configured cache.
func OpenCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	switch cfg.Cache.Driver {
	case cache.DriverRedis:
		r, err := cache.NewRedis(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "", cache.DriverLocal:
		return cache.NewLocal(cfg.Cache.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// NewEngine returns a merge engine writing the configured artifact paths.
func NewEngine(cfg config.Config, source merge.DocumentSource, logger *zap.Logger, recorder merge.Recorder) *merge.Engine {
	paths := merge.Paths{
		Base:    cfg.Merge.BasePath,
		Output:  cfg.Merge.OutputPath,
		Overlay: cfg.Merge.OverlayPath,
	}
	var opts []merge.EngineOption
	if recorder != nil {
		opts = append(opts, merge.WithRecorder(recorder))
	}
	return merge.NewEngine(paths, source, logger, opts...)
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Server.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// Bootstrap prunes legacy documents when configured and writes the merged
// configuration from storage. A failed artifact write is logged and retried on the
// first request; storage failures are returned.
func (a *App) Bootstrap(ctx context.Context) error {
	err := a.service.Bootstrap(ctx, a.cfg.Store.PruneStale)
	if errors.Is(err, overrides.ErrArtifact) {
		a.logger.Warn("initial merged configuration not written", zap.Error(err))
		return nil
	}
	return err
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Close releases the cache and store connections.
func (a *App) Close() error {
	return errors.Join(a.cache.Close(), a.store.Close())
}
