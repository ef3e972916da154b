package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// MockStoreRegistry is a mock implementation of StoreRegistry for testing
type MockStoreRegistry struct {
	mu      sync.RWMutex
	stores  map[string]*domain.Store
	ListErr error
}

// NewMockStoreRegistry creates a registry holding the given stores.
func NewMockStoreRegistry(stores ...*domain.Store) *MockStoreRegistry {
	m := &MockStoreRegistry{stores: make(map[string]*domain.Store)}
	for _, s := range stores {
		m.stores[s.ID] = s
	}
	return m
}

func (m *MockStoreRegistry) Get(ctx context.Context, id string) (*domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.stores[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return store, nil
}

func (m *MockStoreRegistry) List(ctx context.Context) ([]*domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	result := make([]*domain.Store, 0, len(m.stores))
	for _, s := range m.stores {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockStoreRegistry) Save(ctx context.Context, store *domain.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[store.ID] = store
	return nil
}

func (m *MockStoreRegistry) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, id)
	return nil
}
