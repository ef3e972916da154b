package mocks

import (
	"context"
	"sync"
	"time"
)

// MockDistributedLock is an in-memory DistributedLock with TTL expiry.
type MockDistributedLock struct {
	mu    sync.Mutex
	locks  map[string]time.Time
	owners map[string]string

	// AcquireFn overrides Acquire when set
	AcquireFn func(name string, ttl time.Duration) (bool, error)

	acquireCalls int
	releaseCalls int
}

// NewMockDistributedLock creates a new mock distributed lock.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		locks:  make(map[string]time.Time),
		owners: make(map[string]string),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	m.acquireCalls++
	fn := m.AcquireFn
	m.mu.Unlock()

	if fn != nil {
		return fn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, held := m.locks[name]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[name] = time.Now().Add(ttl)
	delete(m.owners, name)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	delete(m.locks, name)
	delete(m.owners, name)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return nil
}

// SetLockHeld forces a lock to be held by someone else (for test setup).
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[name] = time.Now().Add(ttl)
	m.owners[name] = "other-instance"
}

// Holder names the owner of a held lock. Locks taken through SetLockHeld
// belong to "other-instance" and locks won through Acquire to "mock".
func (m *MockDistributedLock) Holder(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, held := m.locks[name]
	if !held || !time.Now().Before(expiry) {
		return "", nil
	}
	if owner, ok := m.owners[name]; ok {
		return owner, nil
	}
	return "mock", nil
}

// IsHeld reports whether the lock is currently held.
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, held := m.locks[name]
	return held && time.Now().Before(expiry)
}

// Calls returns the number of Acquire and Release calls.
func (m *MockDistributedLock) Calls() (acquire, release int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireCalls, m.releaseCalls
}
