package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/storeperf/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/storeperf/internal/adapters/driven/redis"
	"github.com/custodia-labs/storeperf/internal/adapters/driven/woocommerce"
	"github.com/custodia-labs/storeperf/internal/config"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
	"github.com/custodia-labs/storeperf/internal/core/ports/driving"
	"github.com/custodia-labs/storeperf/internal/core/services"
)

// app is the wired process: adapters, the request queue, background tasks
// and the orchestrator on top of them.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	perf      driving.PerformanceService
	stores    driven.StoreRegistry
	scheduler *services.Scheduler
	tasks     *services.TaskRunner
	queue     *services.RequestQueue
	failures  *failureLog
	lockOwner string

	closers []func(ctx context.Context) error
}

func openApp(ctx context.Context, errOut io.Writer) (*app, error) {
	// A local .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger(errOut)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	// ===== PostgreSQL =====
	db, err := postgres.Connect(ctx, postgres.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.onClose(func(context.Context) error { return db.Close() })

	if err := db.InitSchema(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	var cipher *postgres.CredentialCipher
	if cfg.SecretKey != "" {
		key, err := postgres.ParseKey(cfg.SecretKey)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("STOREPERF_SECRET_KEY: %w", err)
		}
		if cipher, err = postgres.NewCredentialCipher(key); err != nil {
			a.Close(ctx)
			return nil, err
		}
	} else {
		logger.Warn("STOREPERF_SECRET_KEY not set, stores with credentials cannot be read or saved")
	}

	registry := postgres.NewStoreRegistry(db, cipher)
	cache := postgres.NewProductCacheStore(db)
	a.stores = registry

	// ===== Distributed lock (Redis if configured, otherwise advisory locks) =====
	var lock driven.DistributedLock
	if cfg.RedisURL != "" {
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.onClose(func(context.Context) error { return client.Close() })
		redisLock := redisadapter.NewLock(client, redisadapter.LockConfig{})
		lock = redisLock
		a.lockOwner = redisLock.OwnerID()
		logger.Info("using redis distributed lock", "owner_id", a.lockOwner)
	} else {
		lock = postgres.NewAdvisoryLock(db)
		logger.Info("using postgres advisory lock")
	}

	// ===== Upstream =====
	woo := woocommerce.NewClient(woocommerce.Config{
		Stores:  registry,
		Timeout: cfg.UpstreamTimeout,
		PerPage: cfg.UpstreamPerPage,
		Logger:  logger,
	})

	maxRetries := cfg.RetryMax
	if maxRetries == 0 {
		maxRetries = -1
	}
	retrier := services.NewRetrier(services.RetrierConfig{
		MaxRetries:   maxRetries,
		InitialDelay: cfg.RetryInitialDelay,
		Logger:       logger,
	})
	fetcher := services.NewOrderFetcher(services.OrderFetcherConfig{
		Client:         woo,
		Retrier:        retrier,
		ChunkSize:      cfg.ChunkSize,
		ChunkThreshold: cfg.ChunkThreshold,
		Logger:         logger,
	})

	requestDelay := cfg.QueueRequestDelay
	if requestDelay == 0 {
		requestDelay = -1
	}
	queue := services.NewRequestQueue(services.RequestQueueConfig{
		Source:        fetcher,
		MaxConcurrent: cfg.QueueMaxConcurrent,
		RequestDelay:  requestDelay,
		Logger:        logger,
	})

	tasks := services.NewTaskRunner(services.TaskRunnerConfig{
		Limit:  cfg.BackgroundTaskLimit,
		Logger: logger,
	})

	a.tasks = tasks
	a.queue = queue
	a.failures = watchFailures(tasks.Failures(), logger)

	// Closed in reverse: tasks drain first, then the last failures are
	// logged, then the queue stops.
	a.onClose(func(context.Context) error {
		queue.Close()
		return nil
	})
	a.onClose(func(context.Context) error {
		a.failures.Stop()
		return nil
	})
	a.onClose(tasks.Shutdown)

	var analytics driven.PerformanceAnalytics
	if cfg.UseAnalytics {
		analytics = woo
	}

	storeSyncDelay := cfg.StoreSyncDelay
	if storeSyncDelay == 0 {
		storeSyncDelay = -1
	}
	orchestrator := services.NewPerformanceOrchestrator(services.PerformanceOrchestratorConfig{
		Cache:             cache,
		Stores:            registry,
		Queue:             queue,
		Analytics:         analytics,
		Tasks:             tasks,
		Logger:            logger,
		FullSyncWindow:    cfg.FullSyncWindow,
		IncrementalWindow: cfg.IncrementalWindow,
		SyncAttempts:      cfg.SyncAttempts,
		StoreSyncDelay:    storeSyncDelay,
	})
	a.perf = orchestrator

	a.scheduler = services.NewScheduler(services.SchedulerConfig{
		Syncer:   orchestrator,
		Lock:     lock,
		Logger:   logger,
		Interval: cfg.ScheduleInterval,
		LockTTL:  cfg.ScheduleLockTTL,
	})

	return a, nil
}

// logStats reports process counters, typically on shutdown.
func (a *app) logStats() {
	attrs := []any{"failures_by_store", a.failures.PerStore()}
	if a.scheduler != nil {
		attrs = append(attrs, "scheduler_runs", a.scheduler.Runs())
	}
	if a.tasks != nil {
		stats := a.tasks.Stats()
		attrs = append(attrs,
			"tasks_started", stats.Started,
			"tasks_failed", stats.Failed,
			"tasks_running", stats.Running,
		)
	}
	if a.queue != nil {
		attrs = append(attrs, "queue_pending", a.queue.Len())
	}
	if a.lockOwner != "" {
		attrs = append(attrs, "lock_owner", a.lockOwner)
	}
	a.logger.Info("worker stats", attrs...)
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
