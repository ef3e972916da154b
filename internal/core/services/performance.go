package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/storeperf/internal/core/domain"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
	"github.com/custodia-labs/storeperf/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.PerformanceService = (*PerformanceOrchestrator)(nil)

const (
	defaultFullSyncWindow    = 30 * 24 * time.Hour
	defaultIncrementalWindow = 7 * 24 * time.Hour
	defaultSyncAttempts      = 3
	defaultSyncRetryDelay    = time.Second
	defaultStoreSyncDelay    = 5 * time.Second
)

// OrderQueue admits upstream-bound work. RequestQueue is the production implementation.
type OrderQueue interface {
	Enqueue(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error)
	Do(ctx context.Context, storeID string, run func(ctx context.Context) error) error
}

// BackgroundRunner starts background tasks. TaskRunner is the production implementation.
type BackgroundRunner interface {
	TryGo(name, storeID string, fn TaskFunc) (string, error)
	Go(ctx context.Context, name, storeID string, fn TaskFunc) (string, error)
}

// PerformanceOrchestrator serves product performance from the cache and
// decides when and how to refresh it.
//
// Read policy per store:
//  1. fresh cache: return it
//  2. nothing cached and never synced: wait for a full sync, then return
//  3. stale and a full sync is due: start one in the background, return cache
//  4. stale otherwise: start an incremental sync in the background, return cache
type PerformanceOrchestrator struct {
	cache     driven.ProductCacheStore
	stores    driven.StoreRegistry
	queue     OrderQueue
	analytics driven.PerformanceAnalytics
	tasks     BackgroundRunner
	logger    *slog.Logger
	now       func() time.Time
	sleep     SleepFunc

	fullWindow        time.Duration
	incrementalWindow time.Duration
	syncAttempts      int
	syncRetryDelay    time.Duration
	storeSyncDelay    time.Duration

	flight     singleflight.Group
	mu         sync.Mutex
	inFlight   map[string]domain.SyncKind
	storeGates map[string]chan struct{}
}

// PerformanceOrchestratorConfig holds dependencies for PerformanceOrchestrator.
type PerformanceOrchestratorConfig struct {
	Cache     driven.ProductCacheStore
	Stores    driven.StoreRegistry
	Queue     OrderQueue
	Analytics driven.PerformanceAnalytics // Optional: preferred aggregation path
	Tasks     BackgroundRunner
	Logger    *slog.Logger
	Now       func() time.Time
	Sleep     SleepFunc

	FullSyncWindow    time.Duration // Lookback of a full sync (default: 30 days)
	IncrementalWindow time.Duration // Lookback of an incremental sync (default: 7 days)
	SyncAttempts      int           // Attempts per sync before giving up (default: 3)
	SyncRetryDelay    time.Duration // First delay between sync attempts, doubled each time (default: 1s)
	StoreSyncDelay    time.Duration // Pause between stores in SyncAllStores (default: 5s)
}

// NewPerformanceOrchestrator creates a new orchestrator.
func NewPerformanceOrchestrator(cfg PerformanceOrchestratorConfig) *PerformanceOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	tasks := cfg.Tasks
	if tasks == nil {
		tasks = NewTaskRunner(TaskRunnerConfig{Logger: logger})
	}

	o := &PerformanceOrchestrator{
		cache:             cfg.Cache,
		stores:            cfg.Stores,
		queue:             cfg.Queue,
		analytics:         cfg.Analytics,
		tasks:             tasks,
		logger:            logger,
		now:               now,
		sleep:             sleep,
		fullWindow:        orDefault(cfg.FullSyncWindow, defaultFullSyncWindow),
		incrementalWindow: orDefault(cfg.IncrementalWindow, defaultIncrementalWindow),
		syncAttempts:      cfg.SyncAttempts,
		syncRetryDelay:    orDefault(cfg.SyncRetryDelay, defaultSyncRetryDelay),
		storeSyncDelay:    cfg.StoreSyncDelay,
		inFlight:          make(map[string]domain.SyncKind),
		storeGates:        make(map[string]chan struct{}),
	}
	if o.syncAttempts <= 0 {
		o.syncAttempts = defaultSyncAttempts
	}
	if o.storeSyncDelay == 0 {
		o.storeSyncDelay = defaultStoreSyncDelay
	} else if o.storeSyncDelay < 0 {
		o.storeSyncDelay = 0
	}
	return o
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// GetProductPerformance returns the store's cached product performance.
func (o *PerformanceOrchestrator) GetProductPerformance(ctx context.Context, storeID string, params domain.PerformanceParams) ([]*domain.ProductCacheEntry, error) {
	if storeID == "" {
		return nil, fmt.Errorf("store id is required: %w", domain.ErrInvalidInput)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cfg, err := o.cache.GetSyncConfig(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync config: %w", err)
	}
	entries, err := o.cache.GetByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached entries: %w", err)
	}

	now := o.now()
	switch {
	case cfg.IsFresh(now):
		return params.Arrange(entries), nil

	case len(entries) == 0 && cfg.LastSync() == nil:
		o.logger.Info("no cached performance, syncing before read", "store_id", storeID)
		if err := o.syncBeforeRead(ctx, storeID); err != nil {
			return nil, err
		}
		entries, err = o.cache.GetByStore(ctx, storeID)
		if err != nil {
			return nil, fmt.Errorf("failed to get cached entries: %w", err)
		}

	case cfg.NeedsFullSync(now):
		o.startBackgroundSync(ctx, storeID, domain.SyncKindFull, domain.SyncModeDuringSync, false)

	default:
		o.startBackgroundSync(ctx, storeID, domain.SyncKindIncremental, domain.SyncModeDuringSync, false)
	}

	return params.Arrange(entries), nil
}

// syncBeforeRead runs one full sync for a store with no cache. Concurrent
// readers of the same store share it; each may stop waiting when its ctx ends.
func (o *PerformanceOrchestrator) syncBeforeRead(ctx context.Context, storeID string) error {
	shared := context.WithoutCancel(ctx)
	ch := o.flight.DoChan("full:"+storeID, func() (any, error) {
		return o.runSync(shared, storeID, domain.SyncKindFull, domain.SyncParams{Mode: domain.SyncModeDuringSync})
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startBackgroundSync spawns a sync unless one is already running for the
// store. When wait is false a saturated runner drops the request.
func (o *PerformanceOrchestrator) startBackgroundSync(ctx context.Context, storeID string, kind domain.SyncKind, mode domain.SyncMode, wait bool) (string, error) {
	o.mu.Lock()
	if running, ok := o.inFlight[storeID]; ok {
		o.mu.Unlock()
		o.logger.Debug("sync already in flight", "store_id", storeID, "kind", running)
		return "", domain.ErrSyncInProgress
	}
	o.inFlight[storeID] = kind
	o.mu.Unlock()

	release := func() {
		o.mu.Lock()
		delete(o.inFlight, storeID)
		o.mu.Unlock()
	}

	run := func(taskCtx context.Context) error {
		defer release()
		_, err := o.runSync(taskCtx, storeID, kind, domain.SyncParams{Mode: mode})
		return err
	}

	name := string(kind) + "_sync"
	var taskID string
	var err error
	if wait {
		taskID, err = o.tasks.Go(ctx, name, storeID, run)
	} else {
		taskID, err = o.tasks.TryGo(name, storeID, run)
	}
	if err != nil {
		release()
		o.logger.Warn("failed to start background sync", "store_id", storeID, "kind", kind, "error", err)
		return "", err
	}

	o.logger.Info("background sync started", "store_id", storeID, "kind", kind, "task_id", taskID)
	return taskID, nil
}

// SyncStore replaces the store's cache with totals for the full sync window.
func (o *PerformanceOrchestrator) SyncStore(ctx context.Context, storeID string, params domain.SyncParams) (*domain.SyncResult, error) {
	if storeID == "" {
		return nil, fmt.Errorf("store id is required: %w", domain.ErrInvalidInput)
	}
	return o.runSync(ctx, storeID, domain.SyncKindFull, params)
}

// IncrementalUpdate merges activity since the store's last sync into the cache.
// The window start is never earlier than the last sync, so totals are not
// counted twice.
func (o *PerformanceOrchestrator) IncrementalUpdate(ctx context.Context, storeID string, params domain.SyncParams) (*domain.SyncResult, error) {
	if storeID == "" {
		return nil, fmt.Errorf("store id is required: %w", domain.ErrInvalidInput)
	}
	return o.runSync(ctx, storeID, domain.SyncKindIncremental, params)
}

// acquireStore waits until no other sync runs for the store. The returned
// func releases it.
func (o *PerformanceOrchestrator) acquireStore(ctx context.Context, storeID string) (func(), error) {
	o.mu.Lock()
	gate, ok := o.storeGates[storeID]
	if !ok {
		gate = make(chan struct{}, 1)
		o.storeGates[storeID] = gate
	}
	o.mu.Unlock()

	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	default:
	}

	o.logger.Debug("waiting for running sync", "store_id", storeID)
	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runSync fetches, aggregates and persists one sync, retrying the whole
// sync with exponential backoff. Syncs of one store never overlap, and the
// window is resolved only once the store is held, so an incremental sync
// sees the watermark left by the sync before it.
func (o *PerformanceOrchestrator) runSync(ctx context.Context, storeID string, kind domain.SyncKind, params domain.SyncParams) (*domain.SyncResult, error) {
	release, err := o.acquireStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	defer release()

	startTime := time.Now()

	window, err := o.syncWindow(ctx, storeID, kind, params, o.now())
	if err != nil {
		return nil, err
	}
	// Stamping the window end lets consecutive incremental windows tile
	syncedAt := window.Before

	result := &domain.SyncResult{
		StoreID: storeID,
		Kind:    kind,
		Mode:    params.Mode.String(),
		Window:  window,
	}

	if !window.After.Before(window.Before) {
		o.logger.Info("incremental window already covered, nothing to merge",
			"store_id", storeID,
			"window_after", window.After,
			"window_before", window.Before,
		)
		result.Kind = domain.SyncKindSkipped
		return result, nil
	}

	query := domain.OrderQuery{
		After:    &window.After,
		Before:   &window.Before,
		Statuses: params.Statuses,
	}

	var lastErr error
	for attempt := 1; attempt <= o.syncAttempts; attempt++ {
		result.Attempts = attempt

		entries, source, orderCount, err := o.aggregate(ctx, storeID, query, params.Mode)
		if err == nil {
			err = o.persist(ctx, storeID, kind, entries, syncedAt)
		}
		if err == nil {
			result.Source = source
			result.Orders = orderCount
			result.Products = len(entries)
			result.Duration = time.Since(startTime).Seconds()

			o.logger.Info("sync completed",
				"store_id", storeID,
				"kind", kind,
				"mode", params.Mode,
				"source", source,
				"orders", orderCount,
				"products", len(entries),
				"attempts", attempt,
				"duration_seconds", result.Duration,
			)
			return result, nil
		}

		lastErr = err
		if ctx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
			break
		}
		if attempt == o.syncAttempts {
			break
		}

		delay := o.syncRetryDelay << (attempt - 1)
		o.logger.Warn("sync attempt failed, retrying",
			"store_id", storeID,
			"kind", kind,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := o.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	o.logger.Error("sync failed",
		"store_id", storeID,
		"kind", kind,
		"attempts", result.Attempts,
		"duration_seconds", time.Since(startTime).Seconds(),
		"error", lastErr,
	)
	return nil, fmt.Errorf("%s sync of store %s: %w: %w", kind, storeID, domain.ErrSyncExhausted, lastErr)
}

// syncWindow resolves the fetch window for a sync. Incremental windows start
// at the store's sync watermark if that is later than the requested start.
func (o *PerformanceOrchestrator) syncWindow(ctx context.Context, storeID string, kind domain.SyncKind, params domain.SyncParams, now time.Time) (domain.Window, error) {
	before := now
	if params.Before != nil {
		before = *params.Before
	}

	lookback := o.fullWindow
	if kind == domain.SyncKindIncremental {
		lookback = o.incrementalWindow
	}
	after := before.Add(-lookback)
	if params.After != nil {
		after = *params.After
	}

	if !after.Before(before) {
		return domain.Window{}, fmt.Errorf("sync window must end after it starts: %w", domain.ErrInvalidInput)
	}

	if kind == domain.SyncKindIncremental {
		cfg, err := o.cache.GetSyncConfig(ctx, storeID)
		if err != nil {
			return domain.Window{}, fmt.Errorf("failed to get sync config: %w", err)
		}
		if watermark := cfg.LastSync(); watermark != nil && watermark.After(after) {
			o.logger.Debug("incremental window clamped to sync watermark",
				"store_id", storeID,
				"requested_after", after,
				"watermark", *watermark,
			)
			after = *watermark
			if after.After(before) {
				after = before
			}
		}
	}

	return domain.Window{After: after, Before: before}, nil
}

// aggregate produces per-product totals for the query. Normal-mode syncs
// try the analytics report first; anything unusable from it falls back to
// summing line items of the raw orders.
func (o *PerformanceOrchestrator) aggregate(ctx context.Context, storeID string, query domain.OrderQuery, mode domain.SyncMode) ([]*domain.ProductCacheEntry, domain.AggregationSource, int, error) {
	if mode == domain.SyncModeNormal && o.analytics != nil {
		var totals []*domain.ProductCacheEntry
		err := o.queue.Do(ctx, storeID, func(ctx context.Context) error {
			var err error
			totals, err = o.analytics.ProductTotals(ctx, storeID, query)
			return err
		})

		switch {
		case err == nil && totals != nil:
			for _, entry := range totals {
				entry.StoreID = storeID
			}
			return totals, domain.AggregationAnalytics, 0, nil
		case ctx.Err() != nil:
			return nil, "", 0, ctx.Err()
		case errors.Is(err, domain.ErrQueueClosed):
			return nil, "", 0, err
		case err != nil:
			o.logger.Warn("analytics aggregation failed, computing from orders", "store_id", storeID, "error", err)
		default:
			o.logger.Warn("analytics returned no data, computing from orders", "store_id", storeID)
		}
	}

	orders, err := o.queue.Enqueue(ctx, storeID, query)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return domain.AggregateOrders(storeID, orders), domain.AggregationOrders, len(orders), nil
}

func (o *PerformanceOrchestrator) persist(ctx context.Context, storeID string, kind domain.SyncKind, entries []*domain.ProductCacheEntry, syncedAt time.Time) error {
	if kind == domain.SyncKindIncremental {
		if err := o.cache.MergeIncremental(ctx, storeID, entries, syncedAt); err != nil {
			return fmt.Errorf("failed to merge cache entries: %w", err)
		}
		return nil
	}
	if err := o.cache.ReplaceAll(ctx, storeID, entries, syncedAt); err != nil {
		return fmt.Errorf("failed to replace cache entries: %w", err)
	}
	return nil
}

// SyncAllStores starts a background sync for every enabled store, choosing
// full or incremental per store, and pauses between stores to spread load.
func (o *PerformanceOrchestrator) SyncAllStores(ctx context.Context) ([]*domain.SyncPlan, error) {
	stores, err := o.stores.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	plans := make([]*domain.SyncPlan, 0, len(stores))
	for i, store := range stores {
		if i > 0 && o.storeSyncDelay > 0 {
			if err := o.sleep(ctx, o.storeSyncDelay); err != nil {
				return plans, err
			}
		}

		plan := o.planStoreSync(ctx, store)
		plans = append(plans, plan)
	}

	o.logger.Info("all-store sync scheduled", "stores", len(stores))
	return plans, nil
}

func (o *PerformanceOrchestrator) planStoreSync(ctx context.Context, store *domain.Store) *domain.SyncPlan {
	plan := &domain.SyncPlan{StoreID: store.ID, Kind: domain.SyncKindSkipped}
	if !store.Enabled {
		plan.Reason = domain.ErrStoreDisabled.Error()
		return plan
	}

	cfg, err := o.cache.GetSyncConfig(ctx, store.ID)
	if err != nil {
		o.logger.Error("failed to get sync config", "store_id", store.ID, "error", err)
		plan.Reason = err.Error()
		return plan
	}

	kind := domain.SyncKindIncremental
	if cfg.NeedsFullSync(o.now()) {
		kind = domain.SyncKindFull
	}

	taskID, err := o.startBackgroundSync(ctx, store.ID, kind, domain.SyncModeNormal, true)
	if err != nil {
		plan.Reason = err.Error()
		return plan
	}

	plan.Kind = kind
	plan.TaskID = taskID
	return plan
}

// ClearCache drops a store's cached rows and sync timestamps.
func (o *PerformanceOrchestrator) ClearCache(ctx context.Context, storeID string) error {
	if storeID == "" {
		return fmt.Errorf("store id is required: %w", domain.ErrInvalidInput)
	}
	if err := o.cache.Clear(ctx, storeID); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	o.logger.Info("cache cleared", "store_id", storeID)
	return nil
}

// GetCacheConfig returns the store's sync config, creating defaults if needed.
func (o *PerformanceOrchestrator) GetCacheConfig(ctx context.Context, storeID string) (*domain.SyncConfig, error) {
	if storeID == "" {
		return nil, fmt.Errorf("store id is required: %w", domain.ErrInvalidInput)
	}
	return o.cache.GetSyncConfig(ctx, storeID)
}

// UpdateCacheConfig changes the store's TTL and/or sync frequency.
func (o *PerformanceOrchestrator) UpdateCacheConfig(ctx context.Context, storeID string, update domain.SyncConfigUpdate) (*domain.SyncConfig, error) {
	if storeID == "" {
		return nil, fmt.Errorf("store id is required: %w", domain.ErrInvalidInput)
	}
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("cache ttl and sync frequency must be positive: %w", err)
	}

	cfg, err := o.cache.GetSyncConfig(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync config: %w", err)
	}
	update.Apply(cfg)

	if err := o.cache.SaveSyncConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save sync config: %w", err)
	}
	return cfg, nil
}

// IsFresh reports whether the store's cache may be served without refresh.
func (o *PerformanceOrchestrator) IsFresh(ctx context.Context, storeID string) (bool, error) {
	cfg, err := o.cache.GetSyncConfig(ctx, storeID)
	if err != nil {
		return false, err
	}
	return cfg.IsFresh(o.now()), nil
}

// NeedsFullSync reports whether the store's next refresh must be a full sync.
func (o *PerformanceOrchestrator) NeedsFullSync(ctx context.Context, storeID string) (bool, error) {
	cfg, err := o.cache.GetSyncConfig(ctx, storeID)
	if err != nil {
		return false, err
	}
	return cfg.NeedsFullSync(o.now()), nil
}
