package driven

import (
	"context"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// OrderClient fetches orders from a store's upstream API.
//
// Non-2xx responses are returned as *domain.UpstreamError. Payloads that
// cannot be decoded wrap domain.ErrMalformedResponse. A successful call with
// no data returns an empty slice.
type OrderClient interface {
	FetchOrders(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.Order, error)
}

// PerformanceAnalytics is the preferred aggregation path: a report computed
// by the upstream that yields per-product totals for a window without
// downloading every order. A nil result means no usable data.
type PerformanceAnalytics interface {
	ProductTotals(ctx context.Context, storeID string, query domain.OrderQuery) ([]*domain.ProductCacheEntry, error)
}
