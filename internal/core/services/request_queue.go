package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// OrderSource fetches orders for a store. OrderFetcher is the production implementation.
type OrderSource interface {
	Fetch(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error)
}

// RequestQueue is the single admission point for upstream-bound work across
// every store. Items start in enqueue order, at most maxConcurrent at a
// time, and each slot is held for requestDelay after its item completes.
type RequestQueue struct {
	source        OrderSource
	maxConcurrent int
	requestDelay  time.Duration
	logger        *slog.Logger

	// Internal state
	mu       sync.Mutex
	pending  []*queuedRequest
	draining bool
	closed   bool
	slots    chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// RequestQueueConfig holds configuration for the request queue.
type RequestQueueConfig struct {
	Source        OrderSource
	MaxConcurrent int           // Upstream calls allowed in flight (default: 1)
	RequestDelay  time.Duration // Pause after each completed item (default: 1s)
	Logger        *slog.Logger
}

type queuedRequest struct {
	ctx     context.Context
	storeID string
	run     func(ctx context.Context) error
	queued  time.Time
	done    chan struct{}
	err     error
}

func (r *queuedRequest) finish(err error) {
	r.err = err
	close(r.done)
}

// NewRequestQueue creates a new request queue.
func NewRequestQueue(cfg RequestQueueConfig) *RequestQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	requestDelay := cfg.RequestDelay
	if requestDelay < 0 {
		requestDelay = 0
	} else if requestDelay == 0 {
		requestDelay = time.Second
	}

	return &RequestQueue{
		source:        cfg.Source,
		maxConcurrent: maxConcurrent,
		requestDelay:  requestDelay,
		logger:        logger,
		slots:         make(chan struct{}, maxConcurrent),
		stopCh:        make(chan struct{}),
	}
}

// Enqueue queues an order fetch and waits for its result.
func (q *RequestQueue) Enqueue(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := q.Do(ctx, storeID, func(ctx context.Context) error {
		var err error
		orders, err = q.source.Fetch(ctx, storeID, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Do queues an arbitrary upstream-bound unit of work and waits for it.
// If ctx ends first, Do returns ctx.Err(); a still-pending item is then
// dropped when it reaches the head of the queue.
func (q *RequestQueue) Do(ctx context.Context, storeID string, run func(ctx context.Context) error) error {
	req := &queuedRequest{
		ctx:     ctx,
		storeID: storeID,
		run:     run,
		queued:  time.Now(),
		done:    make(chan struct{}),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	q.pending = append(q.pending, req)
	if !q.draining {
		q.draining = true
		go q.drain()
	}
	q.mu.Unlock()

	select {
	case <-req.done:
		return req.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain starts pending items in FIFO order until the queue is empty. A slot
// is taken before the head is popped, so Len counts every waiting item.
func (q *RequestQueue) drain() {
	for {
		select {
		case q.slots <- struct{}{}:
		case <-q.stopCh:
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
			return
		}

		q.mu.Lock()
		if len(q.pending) == 0 || q.closed {
			q.draining = false
			q.mu.Unlock()
			<-q.slots
			return
		}
		req := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]

		if err := req.ctx.Err(); err != nil {
			q.mu.Unlock()
			<-q.slots
			req.finish(err)
			continue
		}
		q.wg.Add(1)
		q.mu.Unlock()

		go q.execute(req)
	}
}

// execute runs one item and holds its slot through the request delay.
func (q *RequestQueue) execute(req *queuedRequest) {
	defer q.wg.Done()
	defer func() { <-q.slots }()

	q.logger.Debug("request started",
		"store_id", req.storeID,
		"wait", time.Since(req.queued),
	)

	req.finish(q.safeRun(req))

	timer := time.NewTimer(q.requestDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-q.stopCh:
	}
}

func (q *RequestQueue) safeRun(req *queuedRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued request panicked", "store_id", req.storeID, "panic", r)
			err = fmt.Errorf("queued request panicked: %v", r)
		}
	}()
	return req.run(req.ctx)
}

// Len returns the number of items waiting to start.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting work, fails pending items with ErrQueueClosed and
// waits for running items to finish.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	close(q.stopCh)
	q.mu.Unlock()

	for _, req := range pending {
		req.finish(domain.ErrQueueClosed)
	}
	q.wg.Wait()

	q.logger.Info("request queue closed", "dropped", len(pending))
}
