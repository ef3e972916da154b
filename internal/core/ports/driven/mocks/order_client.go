package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// OrderCall records one FetchOrders invocation.
type OrderCall struct {
	StoreID string
	Query   domain.OrderQuery
	Started time.Time
}

// MockOrderClient is a scriptable OrderClient that records calls and tracks
// how many are in flight at once.
type MockOrderClient struct {
	mu          sync.Mutex
	calls       []OrderCall
	inFlight    int
	maxInFlight int

	// FetchFn computes the response when set; otherwise Orders is returned
	FetchFn func(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error)

	// Orders is returned per store when FetchFn is nil
	Orders map[string][]*domain.Order

	// Latency is slept on every call
	Latency time.Duration
}

// NewMockOrderClient creates an empty client.
func NewMockOrderClient() *MockOrderClient {
	return &MockOrderClient{Orders: make(map[string][]*domain.Order)}
}

func (m *MockOrderClient) FetchOrders(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error) {
	m.mu.Lock()
	m.calls = append(m.calls, OrderCall{StoreID: storeID, Query: query, Started: time.Now()})
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	fn := m.FetchFn
	orders := m.Orders[storeID]
	latency := m.Latency
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	}

	if fn != nil {
		return fn(ctx, storeID, query)
	}
	return orders, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockOrderClient) Calls() []OrderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of FetchOrders calls.
func (m *MockOrderClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (m *MockOrderClient) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// MockAnalytics is a scriptable PerformanceAnalytics.
type MockAnalytics struct {
	mu    sync.Mutex
	calls int

	TotalsFn func(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.ProductCacheEntry, error)
}

func (m *MockAnalytics) ProductTotals(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.ProductCacheEntry, error) {
	m.mu.Lock()
	m.calls++
	fn := m.TotalsFn
	m.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, storeID, query)
}

// CallCount returns the number of ProductTotals calls.
func (m *MockAnalytics) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
