// Package app builds the ingest service from configuration and owns the
// lifetime of its long-lived clients.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-ingest/internal/api"
	"github.com/JakeFAU/jobpost-ingest/internal/clock/system"
	"github.com/JakeFAU/jobpost-ingest/internal/config"
	"github.com/JakeFAU/jobpost-ingest/internal/fetcher"
	collyfetcher "github.com/JakeFAU/jobpost-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/jobpost-ingest/internal/hash/sha256"
	"github.com/JakeFAU/jobpost-ingest/internal/id/uuid"
	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
	"github.com/JakeFAU/jobpost-ingest/internal/logging"
	"github.com/JakeFAU/jobpost-ingest/internal/normalize"
	"github.com/JakeFAU/jobpost-ingest/internal/parser"
	"github.com/JakeFAU/jobpost-ingest/internal/pipeline"
	"github.com/JakeFAU/jobpost-ingest/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/jobpost-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/jobpost-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/jobpost-ingest/internal/scheduler"
	"github.com/JakeFAU/jobpost-ingest/internal/source"
	gcsstorage "github.com/JakeFAU/jobpost-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/jobpost-ingest/internal/storage/local"
	memorystorage "github.com/JakeFAU/jobpost-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/jobpost-ingest/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/jobpost-ingest/internal/storage/sqlite"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     jobs.Clock
	ids       jobs.IDGenerator
	store     jobs.Store
	blobs     jobs.BlobStore
	publisher jobs.Publisher
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	ready     api.ReadinessCheck
	closers   []closer
}

type closer struct {
	name string
	fn   func() error
}

// Build creates the application's dependencies. On error every client opened
// so far is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.Bool("pubsub", cfg.PubSub.Enabled()),
		zap.Int("sources", len(cfg.Sources.Descriptors)),
	)

	if err := a.build(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	if err := a.setupStore(ctx); err != nil {
		return err
	}
	if err := a.setupArchive(ctx); err != nil {
		return err
	}
	if err := a.setupPublisher(ctx); err != nil {
		return err
	}

	fetch, err := a.setupFetcher()
	if err != nil {
		return err
	}
	registry, err := a.setupParsers()
	if err != nil {
		return err
	}
	normalizer, err := a.setupNormalizer()
	if err != nil {
		return err
	}

	pipelineCfg := pipeline.Config{
		Workers:     a.cfg.Pipeline.Workers,
		ContentType: a.cfg.Archive.ContentType,
		BlobPrefix:  a.cfg.Archive.Prefix,
		Topic:       a.cfg.PubSub.Topic,
	}
	if !a.cfg.PubSub.Enabled() {
		pipelineCfg.Topic = ""
	}
	a.pipeline, err = pipeline.New(pipeline.Deps{
		Reader:     source.NewFileReader(a.cfg.Tabular.RequiredColumns),
		Fetcher:    fetch,
		Extractor:  registry,
		Normalizer: normalizer,
		Store:      a.store,
		Hasher:     sha256.New(),
		Clock:      a.clock,
		IDs:        a.ids,
		Blobs:      a.blobs,
		Publisher:  a.publisher,
	}, pipelineCfg, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.scheduler, err = scheduler.New(a.pipeline, a.ids, a.cfg.Sources.Descriptors, a.cfg.Schedule.Cron, a.logger)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	a.apiServer = api.NewServer(a.scheduler, a.ready, a.cfg, a.logger)
	return nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case "postgres":
		store, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
			DSN:             a.cfg.Storage.DSN,
			Table:           a.cfg.Storage.Table,
			MaxConns:        a.cfg.Storage.MaxConns,
			MaxConnLifetime: 30 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("record store init failed: %w", err)
		}
		a.addCloser("postgres", func() error {
			store.Close()
			return nil
		})
		if a.cfg.Storage.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("record store migrate failed: %w", err)
			}
		}
		a.store = store
		a.ready = store.Ping
		a.logger.Info("using postgres record store", zap.String("table", a.cfg.Storage.Table))
	case "sqlite":
		store, err := sqlitestore.Open(ctx, a.cfg.Storage.SQLitePath, a.cfg.Storage.Table)
		if err != nil {
			return fmt.Errorf("record store init failed: %w", err)
		}
		a.addCloser("sqlite", store.Close)
		a.store = store
		a.ready = store.Ping
		a.logger.Info("using sqlite record store", zap.String("path", a.cfg.Storage.SQLitePath))
	default:
		a.logger.Warn("using in-memory record store; records are lost on exit")
		a.store = memorystorage.NewRecordStore()
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Driver {
	case "gcs":
		blobs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.addCloser("gcs", blobs.Close)
		a.blobs = blobs
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.BaseDir))
	case "memory":
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("archiving pages in memory")
	default:
		a.logger.Debug("page archiving disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Debug("no Pub/Sub topic configured; announcements disabled")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.addCloser("pubsub", pub.Close)
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupFetcher() (*fetcher.Fetcher, error) {
	ceiling, err := ratelimit.NewWindow(a.cfg.Fetch.RateLimit.Requests, a.cfg.Fetch.RateLimit.Window)
	if err != nil {
		return nil, fmt.Errorf("rate ceiling init failed: %w", err)
	}
	transport := collyfetcher.New(collyfetcher.Config{Timeout: a.cfg.Fetch.Timeout})
	opts := []fetcher.Option{fetcher.WithLogger(a.logger.Named("fetcher"))}
	if a.cfg.Fetch.PerHostRPS > 0 {
		opts = append(opts, fetcher.WithHostWaiter(ratelimit.NewHostLimiter(ratelimit.HostConfig{
			RPS:   a.cfg.Fetch.PerHostRPS,
			Burst: a.cfg.Fetch.PerHostBurst,
		})))
	}
	f, err := fetcher.New(transport, ceiling, fetcher.Config{
		Timeout:    a.cfg.Fetch.Timeout,
		UserAgents: a.cfg.Fetch.UserAgents,
		Retry: fetcher.RetryPolicy{
			MaxAttempts: a.cfg.Retry.MaxAttempts,
			Base:        a.cfg.Retry.Base,
			MinWait:     a.cfg.Retry.MinWait,
			MaxWait:     a.cfg.Retry.MaxWait,
		},
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("fetcher init failed: %w", err)
	}
	a.logger.Info("fetcher configured",
		zap.Int("ceiling_requests", a.cfg.Fetch.RateLimit.Requests),
		zap.Duration("ceiling_window", a.cfg.Fetch.RateLimit.Window),
		zap.Float64("per_host_rps", a.cfg.Fetch.PerHostRPS),
		zap.Int("max_attempts", a.cfg.Retry.MaxAttempts),
	)
	return f, nil
}

func (a *App) setupParsers() (*parser.Registry, error) {
	registry := parser.Default(a.clock)
	names := make([]string, 0, len(a.cfg.Sources.HostPatterns))
	for name := range a.cfg.Sources.HostPatterns {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := registry.AddHostPatterns(name, a.cfg.Sources.HostPatterns[name]...); err != nil {
			return nil, fmt.Errorf("sources.host_patterns: %w", err)
		}
	}
	return registry, nil
}

func (a *App) setupNormalizer() (*normalize.Normalizer, error) {
	rules := make([]normalize.RoleRule, 0, len(a.cfg.Roles))
	for _, r := range a.cfg.Roles {
		rules = append(rules, normalize.RoleRule{Role: r.Role, Patterns: r.Patterns})
	}
	roles, err := normalize.NewRoleClassifier(rules)
	if err != nil {
		return nil, fmt.Errorf("role classifier init failed: %w", err)
	}
	return normalize.New(sha256.New(), a.clock, roles), nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the configured record store.
func (a *App) Store() jobs.Store {
	return a.store
}

// Scheduler returns the run scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunOnce processes every configured source one time.
func (a *App) RunOnce(ctx context.Context) (pipeline.Stats, error) {
	stats, err := a.pipeline.Run(ctx, a.cfg.Sources.Descriptors)
	if err != nil {
		return stats, fmt.Errorf("run pipeline: %w", err)
	}
	return stats, nil
}

// Serve starts the schedule and the HTTP server and blocks until ctx is
// canceled. An in-flight run is canceled on shutdown.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	if a.cfg.Schedule.RunOnStart {
		if runID, err := a.scheduler.Trigger(); err != nil {
			a.logger.Warn("startup run not started", zap.Error(err))
		} else {
			a.logger.Info("startup run started", zap.String("run_id", runID))
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client in reverse order of creation and flushes the
// logger.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.closeAll()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("client", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
