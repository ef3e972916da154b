package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

func fixedRandom(v float64) func() float64 {
	return func() float64 { return v }
}

func order(id int64, created time.Time, items ...domain.LineItem) *domain.Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return &domain.Order{
		ID:          id,
		Status:      "completed",
		DateCreated: created,
		Total:       total,
		LineItems:   items,
	}
}

func item(productID int64, name string, qty int64, total string) domain.LineItem {
	return domain.LineItem{
		ProductID: productID,
		Name:      name,
		SKU:       "SKU-" + name,
		Quantity:  qty,
		Total:     decimal.RequireFromString(total),
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
