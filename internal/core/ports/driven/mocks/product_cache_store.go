package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// MockProductCacheStore is an in-memory ProductCacheStore for testing.
// ReplaceAll and MergeIncremental are atomic under the store mutex.
type MockProductCacheStore struct {
	mu      sync.RWMutex
	entries map[string]map[int64]*domain.ProductCacheEntry
	configs map[string]*domain.SyncConfig

	// FailInsertAfter makes ReplaceAll fail after inserting this many rows
	// (zero disables). The store is rolled back to its previous state.
	FailInsertAfter int

	// GetErr, when set, is returned by GetByStore and GetSyncConfig
	GetErr error

	replaceCalls int
	mergeCalls   int
}

// NewMockProductCacheStore creates an empty store.
func NewMockProductCacheStore() *MockProductCacheStore {
	return &MockProductCacheStore{
		entries: make(map[string]map[int64]*domain.ProductCacheEntry),
		configs: make(map[string]*domain.SyncConfig),
	}
}

func (m *MockProductCacheStore) GetByStore(ctx context.Context, storeID string) ([]*domain.ProductCacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}

	rows := m.entries[storeID]
	result := make([]*domain.ProductCacheEntry, 0, len(rows))
	for _, entry := range rows {
		cp := *entry
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result, nil
}

func (m *MockProductCacheStore) ReplaceAll(ctx context.Context, storeID string, entries []*domain.ProductCacheEntry, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceCalls++

	staged := make(map[int64]*domain.ProductCacheEntry, len(entries))
	for i, entry := range entries {
		if m.FailInsertAfter > 0 && i >= m.FailInsertAfter {
			return ErrInjected
		}
		cp := *entry
		cp.StoreID = storeID
		cp.CreatedAt = syncedAt
		cp.LastUpdated = syncedAt
		staged[cp.ProductID] = &cp
	}

	m.entries[storeID] = staged
	cfg := m.configLocked(storeID)
	t := syncedAt
	cfg.LastFullSync = &t
	return nil
}

func (m *MockProductCacheStore) MergeIncremental(ctx context.Context, storeID string, entries []*domain.ProductCacheEntry, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeCalls++

	rows, ok := m.entries[storeID]
	if !ok {
		rows = make(map[int64]*domain.ProductCacheEntry)
		m.entries[storeID] = rows
	}

	for _, entry := range entries {
		existing, ok := rows[entry.ProductID]
		if !ok {
			cp := *entry
			cp.StoreID = storeID
			cp.CreatedAt = syncedAt
			cp.LastUpdated = syncedAt
			rows[cp.ProductID] = &cp
			continue
		}
		existing.Quantity += entry.Quantity
		existing.Revenue = existing.Revenue.Add(entry.Revenue)
		existing.Name = entry.Name
		existing.SKU = entry.SKU
		existing.LastUpdated = syncedAt
	}

	cfg := m.configLocked(storeID)
	t := syncedAt
	cfg.LastIncrementalSync = &t
	return nil
}

func (m *MockProductCacheStore) GetSyncConfig(ctx context.Context, storeID string) (*domain.SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	cp := *m.configLocked(storeID)
	return &cp, nil
}

func (m *MockProductCacheStore) SaveSyncConfig(ctx context.Context, cfg *domain.SyncConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.configLocked(cfg.StoreID)
	existing.CacheTTLHours = cfg.CacheTTLHours
	existing.SyncFrequencyHours = cfg.SyncFrequencyHours
	return nil
}

func (m *MockProductCacheStore) Clear(ctx context.Context, storeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, storeID)
	if cfg, ok := m.configs[storeID]; ok {
		cfg.LastFullSync = nil
		cfg.LastIncrementalSync = nil
	}
	return nil
}

func (m *MockProductCacheStore) configLocked(storeID string) *domain.SyncConfig {
	cfg, ok := m.configs[storeID]
	if !ok {
		cfg = domain.NewSyncConfig(storeID)
		m.configs[storeID] = cfg
	}
	return cfg
}

// Helper methods for testing

// SetSyncTimes overwrites a store's sync timestamps.
func (m *MockProductCacheStore) SetSyncTimes(storeID string, full, incremental *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.configLocked(storeID)
	cfg.LastFullSync = full
	cfg.LastIncrementalSync = incremental
}

// Seed inserts entries without touching sync timestamps.
func (m *MockProductCacheStore) Seed(storeID string, entries ...*domain.ProductCacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.entries[storeID]
	if !ok {
		rows = make(map[int64]*domain.ProductCacheEntry)
		m.entries[storeID] = rows
	}
	for _, entry := range entries {
		cp := *entry
		cp.StoreID = storeID
		rows[cp.ProductID] = &cp
	}
}

// Calls returns how many times ReplaceAll and MergeIncremental ran.
func (m *MockProductCacheStore) Calls() (replace, merge int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replaceCalls, m.mergeCalls
}
