package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultCacheTTLHours is how long cached rows are served without a refresh
	DefaultCacheTTLHours = 72

	// DefaultSyncFrequencyHours is the age after which a full resync is required
	DefaultSyncFrequencyHours = 24
)

// ProductCacheEntry is the cached sales aggregate for one product of one store.
type ProductCacheEntry struct {
	StoreID     string          `json:"store_id"`
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku,omitempty"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
}

// SyncConfig holds the freshness policy and sync bookkeeping for a store.
type SyncConfig struct {
	StoreID             string     `json:"store_id"`
	CacheTTLHours       int        `json:"cache_ttl_hours"`
	SyncFrequencyHours  int        `json:"sync_frequency_hours"`
	LastFullSync        *time.Time `json:"last_full_sync,omitempty"`
	LastIncrementalSync *time.Time `json:"last_incremental_sync,omitempty"`
}

// NewSyncConfig returns the default configuration for a store that has none.
func NewSyncConfig(storeID string) *SyncConfig {
	return &SyncConfig{
		StoreID:            storeID,
		CacheTTLHours:      DefaultCacheTTLHours,
		SyncFrequencyHours: DefaultSyncFrequencyHours,
	}
}

// CacheTTL returns the TTL as a duration.
func (c *SyncConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// SyncFrequency returns the full sync cadence as a duration.
func (c *SyncConfig) SyncFrequency() time.Duration {
	return time.Duration(c.SyncFrequencyHours) * time.Hour
}

// LastSync returns the most recent of the full and incremental sync times,
// or nil if the store was never synced.
func (c *SyncConfig) LastSync() *time.Time {
	if c == nil {
		return nil
	}
	switch {
	case c.LastFullSync == nil:
		return c.LastIncrementalSync
	case c.LastIncrementalSync == nil:
		return c.LastFullSync
	case c.LastIncrementalSync.After(*c.LastFullSync):
		return c.LastIncrementalSync
	default:
		return c.LastFullSync
	}
}

// IsFresh reports whether cached rows may be served without a refresh.
func (c *SyncConfig) IsFresh(now time.Time) bool {
	last := c.LastSync()
	if last == nil {
		return false
	}
	return now.Sub(*last) < c.CacheTTL()
}

// NeedsFullSync reports whether the next refresh must replace the cache
// rather than merge into it.
func (c *SyncConfig) NeedsFullSync(now time.Time) bool {
	if c == nil || c.LastFullSync == nil {
		return true
	}
	return now.Sub(*c.LastFullSync) >= c.SyncFrequency()
}

// SyncConfigUpdate carries optional changes to a store's freshness policy.
type SyncConfigUpdate struct {
	CacheTTLHours      *int `json:"cache_ttl_hours,omitempty"`
	SyncFrequencyHours *int `json:"sync_frequency_hours,omitempty"`
}

// Validate rejects non-positive durations.
func (u SyncConfigUpdate) Validate() error {
	if u.CacheTTLHours != nil && *u.CacheTTLHours <= 0 {
		return ErrInvalidInput
	}
	if u.SyncFrequencyHours != nil && *u.SyncFrequencyHours <= 0 {
		return ErrInvalidInput
	}
	return nil
}

// Apply copies the set fields onto cfg.
func (u SyncConfigUpdate) Apply(cfg *SyncConfig) {
	if u.CacheTTLHours != nil {
		cfg.CacheTTLHours = *u.CacheTTLHours
	}
	if u.SyncFrequencyHours != nil {
		cfg.SyncFrequencyHours = *u.SyncFrequencyHours
	}
}

// AggregateOrders sums line item quantities and totals per product id.
// Name and SKU come from the last line item seen for the product.
func AggregateOrders(storeID string, orders []*Order) []*ProductCacheEntry {
	byProduct := make(map[int64]*ProductCacheEntry)
	for _, order := range orders {
		if order == nil {
			continue
		}
		for _, item := range order.LineItems {
			entry, ok := byProduct[item.ProductID]
			if !ok {
				entry = &ProductCacheEntry{
					StoreID:   storeID,
					ProductID: item.ProductID,
					Revenue:   decimal.Zero,
				}
				byProduct[item.ProductID] = entry
			}
			entry.Name = item.Name
			if item.SKU != "" {
				entry.SKU = item.SKU
			}
			entry.Quantity += item.Quantity
			entry.Revenue = entry.Revenue.Add(item.Total)
		}
	}

	entries := make([]*ProductCacheEntry, 0, len(byProduct))
	for _, entry := range byProduct {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProductID < entries[j].ProductID })
	return entries
}

// SortField selects the ordering of performance rows.
type SortField string

const (
	SortByRevenue  SortField = "revenue"
	SortByQuantity SortField = "quantity"
)

// PerformanceParams shapes a product performance read.
type PerformanceParams struct {
	SortBy SortField `json:"sort_by,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// Validate checks the sort field and limit.
func (p PerformanceParams) Validate() error {
	switch p.SortBy {
	case "", SortByRevenue, SortByQuantity:
	default:
		return ErrInvalidInput
	}
	if p.Limit < 0 {
		return ErrInvalidInput
	}
	return nil
}

// Arrange sorts entries (descending, product id tie-break) and applies Limit.
// The input slice is not modified.
func (p PerformanceParams) Arrange(entries []*ProductCacheEntry) []*ProductCacheEntry {
	out := make([]*ProductCacheEntry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if p.SortBy == SortByQuantity {
			if a.Quantity != b.Quantity {
				return a.Quantity > b.Quantity
			}
		} else if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.ProductID < b.ProductID
	})

	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}
