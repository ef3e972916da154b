package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/storeperf/internal/core/domain"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ProductCacheStore = (*ProductCacheStore)(nil)

// ProductCacheStore implements driven.ProductCacheStore using PostgreSQL
type ProductCacheStore struct {
	db *DB
}

// NewProductCacheStore creates a new ProductCacheStore
func NewProductCacheStore(db *DB) *ProductCacheStore {
	return &ProductCacheStore{db: db}
}

// insertEntries writes a batch of rows with one statement. The arrays are
// unnested server side, so a batch costs one round trip.
const insertEntries = `
	INSERT INTO product_cache (store_id, product_id, name, sku, quantity, revenue, created_at, last_updated)
	SELECT $1, u.product_id, u.name, u.sku, u.quantity, u.revenue, $7, $7
	FROM unnest($2::bigint[], $3::text[], $4::text[], $5::bigint[], $6::numeric[])
		AS u(product_id, name, sku, quantity, revenue)
`

const mergeEntries = insertEntries + `
	ON CONFLICT (store_id, product_id) DO UPDATE SET
		quantity = product_cache.quantity + EXCLUDED.quantity,
		revenue = product_cache.revenue + EXCLUDED.revenue,
		name = EXCLUDED.name,
		sku = EXCLUDED.sku,
		last_updated = EXCLUDED.last_updated
`

// GetByStore returns every cached entry for a store
func (s *ProductCacheStore) GetByStore(ctx context.Context, storeID string) ([]*domain.ProductCacheEntry, error) {
	query := `
		SELECT store_id, product_id, name, sku, quantity, revenue, created_at, last_updated
		FROM product_cache
		WHERE store_id = $1
		ORDER BY product_id
	`

	rows, err := s.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.ProductCacheEntry, 0)
	for rows.Next() {
		var entry domain.ProductCacheEntry
		err := rows.Scan(
			&entry.StoreID,
			&entry.ProductID,
			&entry.Name,
			&entry.SKU,
			&entry.Quantity,
			&entry.Revenue,
			&entry.CreatedAt,
			&entry.LastUpdated,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// ReplaceAll swaps the store's rows for entries in one transaction and
// stamps last_full_sync
func (s *ProductCacheStore) ReplaceAll(ctx context.Context, storeID string, entries []*domain.ProductCacheEntry, syncedAt time.Time) error {
	return s.db.inTx(ctx, "replace cache", storeID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_cache WHERE store_id = $1`, storeID); err != nil {
			return fmt.Errorf("delete cached entries: %w", err)
		}

		if len(entries) > 0 {
			if _, err := tx.ExecContext(ctx, insertEntries, batchArgs(storeID, entries, syncedAt)...); err != nil {
				return fmt.Errorf("insert cached entries: %w", err)
			}
		}

		return stampSync(ctx, tx, storeID, "last_full_sync", syncedAt)
	})
}

// MergeIncremental adds the deltas onto existing rows and stamps
// last_incremental_sync
func (s *ProductCacheStore) MergeIncremental(ctx context.Context, storeID string, entries []*domain.ProductCacheEntry, syncedAt time.Time) error {
	return s.db.inTx(ctx, "merge cache", storeID, func(tx *sql.Tx) error {
		if len(entries) > 0 {
			if _, err := tx.ExecContext(ctx, mergeEntries, batchArgs(storeID, entries, syncedAt)...); err != nil {
				return fmt.Errorf("merge cached entries: %w", err)
			}
		}

		return stampSync(ctx, tx, storeID, "last_incremental_sync", syncedAt)
	})
}

// stampSync records a sync time, creating the store's config if needed.
// column is one of the two sync timestamp columns.
func stampSync(ctx context.Context, tx *sql.Tx, storeID, column string, syncedAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO sync_configs (store_id, cache_ttl_hours, sync_frequency_hours, %[1]s)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id) DO UPDATE SET
			%[1]s = EXCLUDED.%[1]s,
			updated_at = NOW()
	`, column)

	_, err := tx.ExecContext(ctx, query,
		storeID,
		domain.DefaultCacheTTLHours,
		domain.DefaultSyncFrequencyHours,
		syncedAt,
	)
	if err != nil {
		return fmt.Errorf("stamp %s: %w", column, err)
	}
	return nil
}

// batchArgs builds the column arrays for insertEntries. Rows for the same
// product are summed first; an upsert may touch each row only once.
func batchArgs(storeID string, entries []*domain.ProductCacheEntry, syncedAt time.Time) []any {
	index := make(map[int64]int, len(entries))
	var (
		ids        []int64
		names      []string
		skus       []string
		quantities []int64
		revenues   []string
	)

	merged := make([]domain.ProductCacheEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		if i, ok := index[e.ProductID]; ok {
			merged[i].Quantity += e.Quantity
			merged[i].Revenue = merged[i].Revenue.Add(e.Revenue)
			merged[i].Name = e.Name
			merged[i].SKU = e.SKU
			continue
		}
		index[e.ProductID] = len(merged)
		merged = append(merged, *e)
	}

	for _, e := range merged {
		ids = append(ids, e.ProductID)
		names = append(names, e.Name)
		skus = append(skus, e.SKU)
		quantities = append(quantities, e.Quantity)
		revenues = append(revenues, e.Revenue.String())
	}

	return []any{
		storeID,
		pq.Array(ids),
		pq.Array(names),
		pq.Array(skus),
		pq.Array(quantities),
		pq.Array(revenues),
		syncedAt,
	}
}

// GetSyncConfig returns the store's config, inserting defaults on first access
func (s *ProductCacheStore) GetSyncConfig(ctx context.Context, storeID string) (*domain.SyncConfig, error) {
	ensure := `
		INSERT INTO sync_configs (store_id, cache_ttl_hours, sync_frequency_hours)
		VALUES ($1, $2, $3)
		ON CONFLICT (store_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, ensure, storeID, domain.DefaultCacheTTLHours, domain.DefaultSyncFrequencyHours); err != nil {
		return nil, err
	}

	query := `
		SELECT store_id, cache_ttl_hours, sync_frequency_hours, last_full_sync, last_incremental_sync
		FROM sync_configs
		WHERE store_id = $1
	`

	var cfg domain.SyncConfig
	var lastFull, lastIncremental sql.NullTime
	err := s.db.QueryRowContext(ctx, query, storeID).Scan(
		&cfg.StoreID,
		&cfg.CacheTTLHours,
		&cfg.SyncFrequencyHours,
		&lastFull,
		&lastIncremental,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.LastFullSync = timePtr(lastFull)
	cfg.LastIncrementalSync = timePtr(lastIncremental)
	return &cfg, nil
}

// SaveSyncConfig updates the TTL and frequency. Sync timestamps are owned
// by ReplaceAll, MergeIncremental and Clear and are not written here.
func (s *ProductCacheStore) SaveSyncConfig(ctx context.Context, cfg *domain.SyncConfig) error {
	query := `
		INSERT INTO sync_configs (store_id, cache_ttl_hours, sync_frequency_hours)
		VALUES ($1, $2, $3)
		ON CONFLICT (store_id) DO UPDATE SET
			cache_ttl_hours = EXCLUDED.cache_ttl_hours,
			sync_frequency_hours = EXCLUDED.sync_frequency_hours,
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, cfg.StoreID, cfg.CacheTTLHours, cfg.SyncFrequencyHours)
	return err
}

// Clear deletes the store's rows and resets both sync timestamps
func (s *ProductCacheStore) Clear(ctx context.Context, storeID string) error {
	return s.db.inTx(ctx, "clear cache", storeID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_cache WHERE store_id = $1`, storeID); err != nil {
			return fmt.Errorf("delete cached entries: %w", err)
		}

		reset := `
			UPDATE sync_configs
			SET last_full_sync = NULL, last_incremental_sync = NULL, updated_at = NOW()
			WHERE store_id = $1
		`
		if _, err := tx.ExecContext(ctx, reset, storeID); err != nil {
			return fmt.Errorf("reset sync timestamps: %w", err)
		}
		return nil
	})
}
