package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/storeperf/internal/core/domain"
	"github.com/custodia-labs/storeperf/internal/core/ports/driven/mocks"
)

var fetchBase = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// windowedOrders answers each call with the orders created inside its window,
// plus any order listed in overlap regardless of the window.
func windowedOrders(all []*domain.Order, overlap ...*domain.Order) func(ctx context.Context, storeID string, q domain.OrderQuery) ([]*domain.Order, error) {
	return func(ctx context.Context, storeID string, q domain.OrderQuery) ([]*domain.Order, error) {
		var out []*domain.Order
		for _, o := range all {
			if q.After != nil && o.DateCreated.Before(*q.After) {
				continue
			}
			if q.Before != nil && !o.DateCreated.Before(*q.Before) {
				continue
			}
			out = append(out, o)
		}
		return append(out, overlap...), nil
	}
}

func newTestFetcher(client *mocks.MockOrderClient) *OrderFetcher {
	sleep := &recordingSleep{}
	return NewOrderFetcher(OrderFetcherConfig{
		Client:  client,
		Retrier: newTestRetrier(sleep, 1),
		Sleep:   sleep.Sleep,
		Logger:  discardLogger(),
	})
}

func TestOrderFetcher_ShortRangeSingleCall(t *testing.T) {
	client := mocks.NewMockOrderClient()
	client.Orders["s1"] = []*domain.Order{{ID: 1}}
	f := newTestFetcher(client)

	q := domain.OrderQuery{After: timePtr(fetchBase), Before: timePtr(fetchBase.Add(5 * 24 * time.Hour))}
	got, err := f.Fetch(context.Background(), "s1", q)

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, client.CallCount())
}

func TestOrderFetcher_ChunkedMatchesUnchunked(t *testing.T) {
	var all []*domain.Order
	for day := 0; day < 20; day++ {
		all = append(all, order(int64(day+1), fetchBase.Add(time.Duration(day)*24*time.Hour+time.Hour)))
	}

	// Unchunked reference
	ref := mocks.NewMockOrderClient()
	ref.FetchFn = windowedOrders(all)
	q := domain.OrderQuery{After: timePtr(fetchBase), Before: timePtr(fetchBase.Add(20 * 24 * time.Hour))}
	want, err := ref.FetchOrders(context.Background(), "s1", q)
	require.NoError(t, err)

	// Every window also returns order 5, which must appear once
	client := mocks.NewMockOrderClient()
	client.FetchFn = windowedOrders(all, all[4])
	f := newTestFetcher(client)

	got, err := f.Fetch(context.Background(), "s1", q)
	require.NoError(t, err)

	assert.Equal(t, 3, client.CallCount(), "20 days in 7 day windows")
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
	}

	calls := client.Calls()
	assert.Equal(t, fetchBase, *calls[0].Query.After)
	assert.Equal(t, fetchBase.Add(20*24*time.Hour), *calls[2].Query.Before)
	assert.Equal(t, *calls[0].Query.Before, *calls[1].Query.After, "windows are contiguous")
}

func TestOrderFetcher_FailedWindowIsSkipped(t *testing.T) {
	all := []*domain.Order{
		order(1, fetchBase.Add(24*time.Hour)),
		order(2, fetchBase.Add(8*24*time.Hour)),
		order(3, fetchBase.Add(15*24*time.Hour)),
	}
	client := mocks.NewMockOrderClient()
	inner := windowedOrders(all)
	client.FetchFn = func(ctx context.Context, storeID string, q domain.OrderQuery) ([]*domain.Order, error) {
		if q.After.Equal(fetchBase.Add(7 * 24 * time.Hour)) {
			return nil, &domain.UpstreamError{StatusCode: 500}
		}
		return inner(ctx, storeID, q)
	}
	f := newTestFetcher(client)

	q := domain.OrderQuery{After: timePtr(fetchBase), Before: timePtr(fetchBase.Add(20 * 24 * time.Hour))}
	got, err := f.Fetch(context.Background(), "s1", q)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestOrderFetcher_AllWindowsFail(t *testing.T) {
	client := mocks.NewMockOrderClient()
	client.FetchFn = func(ctx context.Context, storeID string, q domain.OrderQuery) ([]*domain.Order, error) {
		return nil, &domain.UpstreamError{StatusCode: 502}
	}
	f := newTestFetcher(client)

	q := domain.OrderQuery{After: timePtr(fetchBase), Before: timePtr(fetchBase.Add(20 * 24 * time.Hour))}
	_, err := f.Fetch(context.Background(), "s1", q)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 order windows failed")
}

func TestOrderFetcher_FallsBackToChunks(t *testing.T) {
	all := []*domain.Order{
		order(1, fetchBase.Add(time.Hour)),
		order(2, fetchBase.Add(9*24*time.Hour)),
	}
	client := mocks.NewMockOrderClient()
	inner := windowedOrders(all)
	span := 10 * 24 * time.Hour
	client.FetchFn = func(ctx context.Context, storeID string, q domain.OrderQuery) ([]*domain.Order, error) {
		if q.Span() == span {
			return nil, &domain.UpstreamError{StatusCode: 504}
		}
		return inner(ctx, storeID, q)
	}
	f := newTestFetcher(client)

	q := domain.OrderQuery{After: timePtr(fetchBase), Before: timePtr(fetchBase.Add(span))}
	got, err := f.Fetch(context.Background(), "s1", q)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	// 2 attempts of the whole range, then 2 windows
	assert.Equal(t, 4, client.CallCount())
}

func TestOrderFetcher_UnboundedFailureNoFallback(t *testing.T) {
	client := mocks.NewMockOrderClient()
	client.FetchFn = func(ctx context.Context, storeID string, q domain.OrderQuery) ([]*domain.Order, error) {
		return nil, &domain.UpstreamError{StatusCode: 500}
	}
	f := newTestFetcher(client)

	_, err := f.Fetch(context.Background(), "s1", domain.OrderQuery{})
	require.Error(t, err)
	assert.Equal(t, 2, client.CallCount())
}

func TestOrderFetcher_ChunkedRequiresBounds(t *testing.T) {
	f := newTestFetcher(mocks.NewMockOrderClient())

	_, err := f.FetchChunked(context.Background(), "s1", domain.OrderQuery{After: timePtr(fetchBase)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
