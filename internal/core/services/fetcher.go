package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/custodia-labs/storeperf/internal/core/domain"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
)

const (
	defaultChunkSize      = 7 * 24 * time.Hour
	defaultChunkThreshold = 14 * 24 * time.Hour
)

// OrderFetcher fetches orders for one query, splitting wide date ranges
// into fixed windows. Each upstream call goes through the Retrier.
type OrderFetcher struct {
	client    driven.OrderClient
	retrier   *Retrier
	chunkSize time.Duration
	threshold time.Duration
	pause     time.Duration
	sleep     SleepFunc
	logger    *slog.Logger
}

// OrderFetcherConfig holds dependencies for OrderFetcher.
type OrderFetcherConfig struct {
	Client         driven.OrderClient
	Retrier        *Retrier
	ChunkSize      time.Duration // Width of each window (default: 7 days)
	ChunkThreshold time.Duration // Spans above this are chunked (default: 14 days)
	ChunkPause     time.Duration // Pause between windows (default: none)
	Sleep          SleepFunc
	Logger         *slog.Logger
}

// NewOrderFetcher creates a new order fetcher.
func NewOrderFetcher(cfg OrderFetcherConfig) *OrderFetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retrier := cfg.Retrier
	if retrier == nil {
		retrier = NewRetrier(RetrierConfig{Logger: logger})
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	threshold := cfg.ChunkThreshold
	if threshold <= 0 {
		threshold = defaultChunkThreshold
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &OrderFetcher{
		client:    cfg.Client,
		retrier:   retrier,
		chunkSize: chunkSize,
		threshold: threshold,
		pause:     cfg.ChunkPause,
		sleep:     sleep,
		logger:    logger,
	}
}

// Fetch returns the orders matching query. Ranges wider than the chunk
// threshold are fetched window by window; a failed single call over a
// bounded range is retried as a chunked fetch.
func (f *OrderFetcher) Fetch(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error) {
	if query.Bounded() && query.Span() > f.threshold {
		return f.FetchChunked(ctx, storeID, query)
	}

	orders, err := f.retrier.Execute(ctx, func(ctx context.Context) ([]*domain.Order, error) {
		return f.client.FetchOrders(ctx, storeID, query)
	})
	if err == nil {
		return orders, nil
	}
	if ctx.Err() != nil || !query.Bounded() {
		return nil, err
	}

	f.logger.Warn("order fetch failed, falling back to chunked fetch",
		"store_id", storeID,
		"error", err,
	)
	return f.FetchChunked(ctx, storeID, query)
}

// FetchChunked splits the query window into chunks and merges the results,
// de-duplicated by order id. A failing window is logged and skipped; the
// fetch only fails when every window failed.
func (f *OrderFetcher) FetchChunked(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error) {
	if !query.Bounded() {
		return nil, fmt.Errorf("chunked fetch needs after and before: %w", domain.ErrInvalidInput)
	}

	windows := domain.SplitWindow(*query.After, *query.Before, f.chunkSize)
	byID := make(map[int64]*domain.Order)
	var failed int
	var lastErr error

	for i, w := range windows {
		if i > 0 && f.pause > 0 {
			if err := f.sleep(ctx, f.pause); err != nil {
				return nil, err
			}
		}

		windowQuery := query.WithWindow(w.After, w.Before)
		orders, err := f.retrier.Execute(ctx, func(ctx context.Context) ([]*domain.Order, error) {
			return f.client.FetchOrders(ctx, storeID, windowQuery)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			lastErr = err
			f.logger.Warn("order window failed, skipping",
				"store_id", storeID,
				"window_after", w.After,
				"window_before", w.Before,
				"error", err,
			)
			continue
		}

		for _, order := range orders {
			if order != nil {
				byID[order.ID] = order
			}
		}
	}

	if failed == len(windows) {
		return nil, fmt.Errorf("all %d order windows failed: %w", failed, lastErr)
	}

	merged := make([]*domain.Order, 0, len(byID))
	for _, order := range byID {
		merged = append(merged, order)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].DateCreated.Equal(merged[j].DateCreated) {
			return merged[i].DateCreated.Before(merged[j].DateCreated)
		}
		return merged[i].ID < merged[j].ID
	})

	f.logger.Debug("chunked order fetch complete",
		"store_id", storeID,
		"windows", len(windows),
		"failed_windows", failed,
		"orders", len(merged),
	)
	return merged, nil
}
