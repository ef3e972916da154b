package driving

import (
	"context"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// PerformanceService serves cached product performance and keeps it fresh
type PerformanceService interface {
	// GetProductPerformance returns cached rows, refreshing stale data in the
	// background. Only a store with no cache at all waits for upstream.
	GetProductPerformance(ctx context.Context, storeID string, params domain.PerformanceParams) ([]*domain.ProductCacheEntry, error)

	// SyncStore replaces a store's cache from a fresh upstream fetch
	SyncStore(ctx context.Context, storeID string, params domain.SyncParams) (*domain.SyncResult, error)

	// IncrementalUpdate merges newly observed activity into a store's cache
	IncrementalUpdate(ctx context.Context, storeID string, params domain.SyncParams) (*domain.SyncResult, error)

	// SyncAllStores schedules a background full or incremental sync per store
	SyncAllStores(ctx context.Context) ([]*domain.SyncPlan, error)

	// ClearCache drops a store's cached rows
	ClearCache(ctx context.Context, storeID string) error

	// GetCacheConfig returns a store's freshness policy
	GetCacheConfig(ctx context.Context, storeID string) (*domain.SyncConfig, error)

	// UpdateCacheConfig changes a store's TTL and/or sync frequency
	UpdateCacheConfig(ctx context.Context, storeID string, update domain.SyncConfigUpdate) (*domain.SyncConfig, error)
}
