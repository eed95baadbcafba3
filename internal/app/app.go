// Package app builds the application's dependency graph and runs it,
// either as an HTTP service or for one-shot CLI work.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/agent"
	"github.com/JakeFAU/leadership-finder/internal/api"
	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/classify"
	"github.com/JakeFAU/leadership-finder/internal/clock/system"
	"github.com/JakeFAU/leadership-finder/internal/config"
	"github.com/JakeFAU/leadership-finder/internal/dispatcher"
	"github.com/JakeFAU/leadership-finder/internal/export"
	"github.com/JakeFAU/leadership-finder/internal/extract"
	"github.com/JakeFAU/leadership-finder/internal/extract/gemini"
	"github.com/JakeFAU/leadership-finder/internal/fetcher/adaptive"
	collyfetcher "github.com/JakeFAU/leadership-finder/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/leadership-finder/internal/fetcher/headless"
	"github.com/JakeFAU/leadership-finder/internal/hash/sha256"
	"github.com/JakeFAU/leadership-finder/internal/headless/detector"
	"github.com/JakeFAU/leadership-finder/internal/id/uuid"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/metrics"
	"github.com/JakeFAU/leadership-finder/internal/policy/ratelimit"
	"github.com/JakeFAU/leadership-finder/internal/policy/simple"
	memorypublisher "github.com/JakeFAU/leadership-finder/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/leadership-finder/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/leadership-finder/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/leadership-finder/internal/storage/gcs"
	localstorage "github.com/JakeFAU/leadership-finder/internal/storage/local"
	memorystorage "github.com/JakeFAU/leadership-finder/internal/storage/memory"
	pgstore "github.com/JakeFAU/leadership-finder/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/leadership-finder/internal/storage/sqlite"
	"github.com/JakeFAU/leadership-finder/internal/worker"
)

const readyProbeKey = "readyz-probe"

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     leadership.Clock
	engine    leadership.Discoverer
	cache     leadership.Cache
	dispatch  *dispatcher.Dispatcher
	exporter  *export.Exporter
	apiServer *api.Server

	// closers run in reverse order on Close.
	closers []func() error
}

// Build creates the application's dependencies. On error everything built
// so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a = &App{cfg: cfg, logger: logger, clock: system.New()}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("export_backend", cfg.Export.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("model", cfg.Model.Enabled),
	)

	if a.cache, err = a.setupCache(ctx); err != nil {
		return nil, err
	}
	fetcher, err := a.setupFetcher()
	if err != nil {
		return nil, err
	}
	extractor, err := a.setupExtractor(ctx)
	if err != nil {
		return nil, err
	}
	classifier, err := a.setupClassifier()
	if err != nil {
		return nil, err
	}
	a.engine, err = agent.New(cfg.Engine(), agent.Deps{
		Fetcher:    fetcher,
		Extractor:  extractor,
		Classifier: classifier,
		Cache:      a.cache,
		Clock:      a.clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	if a.exporter, err = a.setupExporter(ctx); err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	a.dispatch = a.setupDispatcher(publisher)

	opts := api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          []api.ReadinessCheck{a.cacheReady},
	}
	if cfg.Auth.Enabled {
		opts.APIKey = cfg.Auth.APIKey
	}
	a.apiServer = api.NewServer(a.engine, a.dispatch, a.exporter, opts, logger)
	return a, nil
}

func (a *App) setupCache(ctx context.Context) (leadership.Cache, error) {
	ttl := a.cfg.Cache.TTL
	switch a.cfg.Cache.Backend {
	case config.CacheNone:
		a.logger.Info("result cache disabled")
		return nil, nil
	case config.CacheSQLite:
		c, err := sqlitestore.Open(ctx, a.cfg.Cache.SQLitePath, ttl, a.clock)
		if err != nil {
			return nil, fmt.Errorf("sqlite cache init failed: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		a.logger.Info("using sqlite result cache", zap.String("path", a.cfg.Cache.SQLitePath))
		return c, nil
	case config.CachePostgres:
		c, err := pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.Cache.Postgres.DSN,
			Table:    a.cfg.Cache.Postgres.Table,
			TTL:      ttl,
			MaxConns: a.cfg.Cache.Postgres.MaxConns,
		}, a.clock)
		if err != nil {
			return nil, fmt.Errorf("postgres cache init failed: %w", err)
		}
		a.closers = append(a.closers, func() error { c.Close(); return nil })
		if err := c.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres cache migrate failed: %w", err)
		}
		a.logger.Info("using postgres result cache", zap.String("table", a.cfg.Cache.Postgres.Table))
		return c, nil
	default:
		a.logger.Info("using in-memory result cache", zap.Duration("ttl", ttl))
		return cache.NewMemory(ttl, a.clock), nil
	}
}

func (a *App) setupFetcher() (leadership.PageFetcher, error) {
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgents:    a.cfg.Fetch.UserAgents,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Leadership.PerPageTimeout,
		MaxBodyBytes:  a.cfg.Fetch.MaxBodyBytes,
	})

	var browsers leadership.BrowserLauncher = headlessfetcher.NewNoop()
	if a.cfg.Headless.Enabled {
		chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgents:        a.cfg.Fetch.UserAgents,
			NavigationTimeout: a.cfg.Headless.NavTimeout,
			ExecPath:          a.cfg.Headless.ExecPath,
			SettleDelay:       a.cfg.Headless.SettleDelay,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed, continuing without browser rendering", zap.Error(err))
		} else {
			browsers = chrome
			a.closers = append(a.closers, func() error { chrome.Close(); return nil })
			a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Fetch.RPS,
		DefaultBurst: a.cfg.Fetch.Burst,
	})
	a.logger.Info("per-host rate limiter configured",
		zap.Float64("rps", a.cfg.Fetch.RPS),
		zap.Int("burst", a.cfg.Fetch.Burst),
	)

	return adaptive.New(adaptive.Config{
		PerPageTimeout: a.cfg.Leadership.PerPageTimeout,
		RespectRobots:  a.cfg.Fetch.RespectRobots,
		Escalation:     simple.New(a.cfg.Headless.PlainOnlyHosts...),
	}, plain, browsers, detector.NewHeuristic(a.cfg.Headless.PromotionThreshold), limiter, a.logger), nil
}

func (a *App) setupExtractor(ctx context.Context) (*extract.Extractor, error) {
	opts := []extract.Option{extract.WithLogger(a.logger)}
	if a.cfg.Model.Enabled {
		model, err := gemini.New(ctx, gemini.Config{
			APIKey:         a.cfg.Model.APIKey,
			Model:          a.cfg.Model.Name,
			BaseURL:        a.cfg.Model.BaseURL,
			MaxPromptChars: a.cfg.Model.MaxPromptChars,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("model extractor init failed: %w", err)
		}
		opts = append(opts, extract.WithModel(model, extract.Mode(a.cfg.Model.Mode)))
		a.logger.Info("model extraction enabled",
			zap.String("model", a.cfg.Model.Name),
			zap.String("mode", a.cfg.Model.Mode),
		)
	}
	return extract.New(opts...), nil
}

func (a *App) setupClassifier() (*classify.Classifier, error) {
	rules := classify.DefaultRules()
	if path := a.cfg.Leadership.RulesFile; path != "" {
		loaded, err := classify.LoadRules(path)
		if err != nil {
			return nil, fmt.Errorf("load classification rules: %w", err)
		}
		rules = loaded
		a.logger.Info("loaded classification rules", zap.String("path", path), zap.Int("rules", len(rules)))
	}
	c, err := classify.New(rules)
	if err != nil {
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}
	return c, nil
}

func (a *App) setupExporter(ctx context.Context) (*export.Exporter, error) {
	var blobs leadership.BlobStore
	switch a.cfg.Export.Backend {
	case config.ExportGCS:
		gcs, err := gcsstorage.New(ctx, gcsstorage.Config{
			Bucket:   a.cfg.Export.GCSBucket,
			Endpoint: a.cfg.Export.GCSEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		blobs = gcs
		a.logger.Info("using GCS export backend", zap.String("bucket", a.cfg.Export.GCSBucket))
	case config.ExportLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Export.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = local
		a.logger.Info("using local export backend", zap.String("path", a.cfg.Export.LocalDir))
	default:
		a.logger.Info("using in-memory export backend")
		blobs = memorystorage.NewBlobStore()
	}
	exporter, err := export.NewExporter(blobs, sha256.New(), a.cfg.Export.Prefix, a.logger)
	if err != nil {
		return nil, fmt.Errorf("exporter init failed: %w", err)
	}
	return exporter, nil
}

func (a *App) setupPublisher(ctx context.Context) (leadership.Publisher, error) {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	p, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return p, nil
}

func (a *App) setupDispatcher(publisher leadership.Publisher) *dispatcher.Dispatcher {
	queue := queuememory.NewQueue(a.cfg.Batch.QueueDepth)
	store := memorystorage.NewBatchStore(a.clock)
	workerCfg := worker.Config{Topic: a.cfg.PubSub.TopicName}

	workers := make([]*worker.Worker, 0, a.cfg.Batch.Concurrency)
	for i := range a.cfg.Batch.Concurrency {
		workers = append(workers, worker.New(
			queue,
			store,
			a.engine,
			publisher,
			a.clock,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	a.logger.Info("worker pool configured",
		zap.Int("concurrency", a.cfg.Batch.Concurrency),
		zap.Int("queue_depth", a.cfg.Batch.QueueDepth),
		zap.Duration("batch_timeout", a.cfg.Batch.Timeout),
	)
	return dispatcher.New(queue, store, uuid.New(), a.clock, workers, dispatcher.Config{
		BatchTimeout: a.cfg.Batch.Timeout,
		MaxCompanies: a.cfg.Batch.MaxCompanies,
	}, a.logger)
}

func (a *App) cacheReady(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	if _, _, err := a.cache.Get(ctx, readyProbeKey); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Exporter returns the batch report exporter.
func (a *App) Exporter() *export.Exporter {
	return a.exporter
}

// Discover runs one company synchronously.
func (a *App) Discover(ctx context.Context, company leadership.Company) leadership.Result {
	return worker.Guard(ctx, a.engine, company, a.logger)
}

// RunBatch processes companies on the worker pool and waits for the batch to
// finish. A zero budget uses the configured batch timeout.
func (a *App) RunBatch(ctx context.Context, companies []leadership.Company, budget time.Duration) (leadership.Batch, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.dispatch.Run(runCtx) }()

	id, err := a.dispatch.Submit(ctx, companies, budget)
	if err != nil {
		a.dispatch.Close()
		<-done
		return leadership.Batch{}, fmt.Errorf("submit batch: %w", err)
	}
	batch, err := a.dispatch.Await(ctx, id)
	a.dispatch.Close()
	<-done
	if err != nil {
		return leadership.Batch{}, err
	}
	return batch, nil
}

// Run serves the HTTP API and the worker pool until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	workersDone := make(chan error, 1)
	go func() {
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Batch.Concurrency))
		workersDone <- a.dispatch.Run(workersCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	// Stop intake, let workers drain, then cut them off at the deadline.
	a.dispatch.Close()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not drain before shutdown deadline")
		cancelWorkers()
		<-workersDone
	}

	a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close releases every external client. It is safe to call more than once.
func (a *App) Close() {
	if a.dispatch != nil {
		a.dispatch.Close()
	}
	a.release()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
