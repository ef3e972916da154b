package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// TaskFunc is the body of a background task.
type TaskFunc func(ctx context.Context) error

// TaskRunner runs fire-and-forget background work with a concurrency limit.
// Failures are logged and published on Failures() so they can be monitored.
type TaskRunner struct {
	logger    *slog.Logger
	onFailure func(domain.TaskFailure)

	sem      chan struct{}
	failures chan domain.TaskFailure
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running int
	started int64
	failed  int64
}

// TaskRunnerConfig holds configuration for the task runner.
type TaskRunnerConfig struct {
	Limit         int // Max concurrently running tasks (default: 8)
	FailureBuffer int // Capacity of the failure channel (default: 64)
	OnFailure     func(domain.TaskFailure)
	Logger        *slog.Logger
}

// TaskStats is a snapshot of runner counters.
type TaskStats struct {
	Running int   `json:"running"`
	Started int64 `json:"started"`
	Failed  int64 `json:"failed"`
}

// NewTaskRunner creates a new task runner.
func NewTaskRunner(cfg TaskRunnerConfig) *TaskRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = 8
	}

	buffer := cfg.FailureBuffer
	if buffer <= 0 {
		buffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		logger:    logger,
		onFailure: cfg.OnFailure,
		sem:       make(chan struct{}, limit),
		failures:  make(chan domain.TaskFailure, buffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// TryGo starts fn if a slot is free, otherwise returns ErrTaskLimitReached.
func (r *TaskRunner) TryGo(name, storeID string, fn TaskFunc) (string, error) {
	select {
	case r.sem <- struct{}{}:
	default:
		return "", domain.ErrTaskLimitReached
	}
	return r.start(name, storeID, fn)
}

// Go waits for a free slot (or ctx) and starts fn.
func (r *TaskRunner) Go(ctx context.Context, name, storeID string, fn TaskFunc) (string, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.ctx.Done():
		return "", domain.ErrShuttingDown
	}
	return r.start(name, storeID, fn)
}

// start runs fn on the runner's context. The caller holds a slot.
func (r *TaskRunner) start(name, storeID string, fn TaskFunc) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.sem
		return "", domain.ErrShuttingDown
	}
	r.running++
	r.started++
	r.wg.Add(1)
	r.mu.Unlock()

	id := uuid.NewString()
	logger := r.logger.With("task_id", id, "task", name, "store_id", storeID)

	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()

		startTime := time.Now()
		err := r.safeRun(fn)
		duration := time.Since(startTime)

		r.mu.Lock()
		r.running--
		if err != nil {
			r.failed++
		}
		r.mu.Unlock()

		if err == nil {
			logger.Debug("background task completed", "duration", duration)
			return
		}

		logger.Error("background task failed", "duration", duration, "error", err)
		r.report(domain.TaskFailure{
			TaskID:   id,
			Name:     name,
			StoreID:  storeID,
			Err:      err,
			Duration: duration,
			FailedAt: time.Now(),
		})
	}()

	return id, nil
}

func (r *TaskRunner) safeRun(fn TaskFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(r.ctx)
}

// report publishes a failure without blocking; when the channel is full the
// failure is only logged.
func (r *TaskRunner) report(failure domain.TaskFailure) {
	if r.onFailure != nil {
		r.onFailure(failure)
	}
	select {
	case r.failures <- failure:
	default:
		r.logger.Warn("task failure channel full, dropping report", "task_id", failure.TaskID)
	}
}

// Failures returns the channel on which task failures are published.
func (r *TaskRunner) Failures() <-chan domain.TaskFailure {
	return r.failures
}

// Stats returns a snapshot of the runner counters.
func (r *TaskRunner) Stats() TaskStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return TaskStats{Running: r.running, Started: r.started, Failed: r.failed}
}

// Wait blocks until all started tasks have returned.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones. If ctx ends
// first the running tasks are cancelled and Shutdown returns ctx.Err().
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
