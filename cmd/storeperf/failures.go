package main

import (
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// failureLog consumes background task failures and keeps per-store counts
// for the lifetime of the process.
type failureLog struct {
	source <-chan domain.TaskFailure
	logger *slog.Logger

	mu       sync.Mutex
	failures []domain.TaskFailure
	perStore map[string]int

	stop chan struct{}
	done chan struct{}
}

// watchFailures starts draining source until Stop is called.
func watchFailures(source <-chan domain.TaskFailure, logger *slog.Logger) *failureLog {
	l := &failureLog{
		source:   source,
		logger:   logger,
		perStore: make(map[string]int),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *failureLog) run() {
	defer close(l.done)
	for {
		select {
		case f := <-l.source:
			l.record(f)
		case <-l.stop:
			l.drain()
			return
		}
	}
}

// drain records whatever is buffered on source without blocking.
func (l *failureLog) drain() {
	for {
		select {
		case f := <-l.source:
			l.record(f)
		default:
			return
		}
	}
}

func (l *failureLog) record(f domain.TaskFailure) {
	l.mu.Lock()
	l.failures = append(l.failures, f)
	l.perStore[f.StoreID]++
	total, forStore := len(l.failures), l.perStore[f.StoreID]
	l.mu.Unlock()

	l.logger.Warn("store sync failure recorded",
		"task_id", f.TaskID,
		"task", f.Name,
		"store_id", f.StoreID,
		"error", f.Err,
		"store_failures", forStore,
		"failures_total", total,
	)
}

// Failures returns every failure seen so far, including ones still buffered
// on the source channel.
func (l *failureLog) Failures() []domain.TaskFailure {
	if l == nil {
		return nil
	}
	l.drain()
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.TaskFailure(nil), l.failures...)
}

// PerStore returns failure counts keyed by store ID.
func (l *failureLog) PerStore() map[string]int {
	if l == nil {
		return nil
	}
	l.drain()
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Assign(l.perStore)
}

// Stop drains the remaining failures and ends the watcher.
func (l *failureLog) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	<-l.done
}
