package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// ProductCacheStore persists per-store product aggregates and the store's
// sync bookkeeping (PostgreSQL)
type ProductCacheStore interface {
	// GetByStore returns every cached entry for a store
	GetByStore(ctx context.Context, storeID string) ([]*domain.ProductCacheEntry, error)

	// ReplaceAll atomically deletes the store's entries, inserts the given set
	// and stamps last_full_sync. On failure the previous rows remain.
	ReplaceAll(ctx context.Context, storeID string, entries []*domain.ProductCacheEntry, syncedAt time.Time) error

	// MergeIncremental adds quantity and revenue of each entry onto the
	// existing row (inserting unseen products) and stamps last_incremental_sync.
	// Entries must be deltas, not historical totals.
	MergeIncremental(ctx context.Context, storeID string, entries []*domain.ProductCacheEntry, syncedAt time.Time) error

	// GetSyncConfig returns the store's sync config, creating it with
	// defaults on first access
	GetSyncConfig(ctx context.Context, storeID string) (*domain.SyncConfig, error)

	// SaveSyncConfig updates the TTL and frequency of a store's config
	SaveSyncConfig(ctx context.Context, cfg *domain.SyncConfig) error

	// Clear deletes the store's entries and resets its sync timestamps.
	// TTL and frequency settings are kept.
	Clear(ctx context.Context, storeID string) error
}
