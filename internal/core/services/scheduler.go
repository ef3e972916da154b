package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/storeperf/internal/core/domain"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
)

// schedulerLockName is the distributed lock guarding an all-store sync run.
const schedulerLockName = "sync-all-stores"

// StoreSyncer is the part of the performance service the scheduler drives.
type StoreSyncer interface {
	SyncAllStores(ctx context.Context) ([]*domain.SyncPlan, error)
}

// lockHolder is implemented by locks that can name the instance holding a lock.
type lockHolder interface {
	Holder(ctx context.Context, name string) (string, error)
}

// Scheduler runs SyncAllStores on a fixed interval.
//
// For multi-instance deployments, configure a DistributedLock so only one
// instance performs each run.
type Scheduler struct {
	syncer StoreSyncer
	lock   driven.DistributedLock
	logger *slog.Logger

	// Internal state
	mu       sync.RWMutex
	running  bool
	runs     int
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	// Lock configuration
	lockTTL      time.Duration
	lockRequired bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Syncer       StoreSyncer
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	Interval     time.Duration // Time between all-store syncs (default: 24h)
	LockTTL      time.Duration // TTL for the distributed lock (default: 1h)
	LockRequired bool          // Skip the run when the lock backend fails (forced on when Lock is set)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = 24 * time.Hour
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = time.Hour
	}

	// A configured lock is always required
	lockRequired := cfg.LockRequired || cfg.Lock != nil

	return &Scheduler{
		syncer:       cfg.Syncer,
		lock:         cfg.Lock,
		logger:       logger,
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: lockRequired,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler and waits for an in-progress run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// Runs returns how many all-store syncs this instance has performed.
func (s *Scheduler) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one all-store sync if this instance wins the lock.
// It reports whether the sync was attempted.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			if s.lockRequired {
				return false
			}
		} else if !acquired {
			s.logger.Info("scheduler lock held by another instance, skipping run", "holder", s.lockOwner(ctx))
			return false
		} else {
			defer func() {
				if err := s.lock.Release(context.WithoutCancel(ctx), schedulerLockName); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	plans, err := s.syncer.SyncAllStores(ctx)
	if err != nil {
		s.logger.Error("all-store sync failed", "error", err, "planned", len(plans))
		return true
	}

	var full, incremental, skipped int
	for _, plan := range plans {
		switch plan.Kind {
		case domain.SyncKindFull:
			full++
		case domain.SyncKindIncremental:
			incremental++
		default:
			skipped++
		}
	}
	s.logger.Info("all-store sync dispatched",
		"full", full,
		"incremental", incremental,
		"skipped", skipped,
	)
	return true
}

// lockOwner names the current holder of the scheduler lock when the lock
// backend can report it.
func (s *Scheduler) lockOwner(ctx context.Context) string {
	h, ok := s.lock.(lockHolder)
	if !ok {
		return "unknown"
	}
	owner, err := h.Holder(ctx, schedulerLockName)
	if err != nil {
		s.logger.Debug("failed to read scheduler lock holder", "error", err)
		return "unknown"
	}
	return owner
}
