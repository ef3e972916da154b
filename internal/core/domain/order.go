package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an upstream order record. Only the fields the performance cache
// needs are decoded.
type Order struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	DateCreated time.Time       `json:"date_created"`
	Total       decimal.Decimal `json:"total"`
	LineItems   []LineItem      `json:"line_items"`
}

// LineItem is one product line of an order.
type LineItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int64           `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

// DefaultOrderStatuses are the statuses counted as sales when a query
// does not specify any.
var DefaultOrderStatuses = []string{"completed", "processing", "on-hold"}

// OrderQuery filters an upstream order fetch. Nil bounds are open.
type OrderQuery struct {
	After    *time.Time
	Before   *time.Time
	Statuses []string
	PerPage  int
}

// Span returns the width of the query window, or zero when either bound is open.
func (q OrderQuery) Span() time.Duration {
	if q.After == nil || q.Before == nil {
		return 0
	}
	return q.Before.Sub(*q.After)
}

// Bounded reports whether both window bounds are set.
func (q OrderQuery) Bounded() bool {
	return q.After != nil && q.Before != nil
}

// WithWindow returns a copy of q scoped to [after, before].
func (q OrderQuery) WithWindow(after, before time.Time) OrderQuery {
	q.After = &after
	q.Before = &before
	return q
}

// Window is a closed time range.
type Window struct {
	After  time.Time `json:"after"`
	Before time.Time `json:"before"`
}

// SplitWindow divides [after, before] into consecutive windows of size,
// truncating the last one to before.
func SplitWindow(after, before time.Time, size time.Duration) []Window {
	if size <= 0 || !before.After(after) {
		return []Window{{After: after, Before: before}}
	}

	var windows []Window
	for start := after; start.Before(before); start = start.Add(size) {
		end := start.Add(size)
		if end.After(before) {
			end = before
		}
		windows = append(windows, Window{After: start, Before: end})
	}
	return windows
}
