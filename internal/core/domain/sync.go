package domain

import "time"

// SyncMode tells the aggregation step where a sync was started from.
type SyncMode int

const (
	// SyncModeNormal syncs were requested by a scheduler or an operator.
	// They may use the analytics report, falling back to raw orders.
	SyncModeNormal SyncMode = iota

	// SyncModeDuringSync syncs were started from inside a performance read.
	// They must aggregate raw orders directly, because the analytics path
	// reads performance and would recurse into the same cache.
	SyncModeDuringSync
)

func (m SyncMode) String() string {
	switch m {
	case SyncModeNormal:
		return "normal"
	case SyncModeDuringSync:
		return "during_sync"
	default:
		return "unknown"
	}
}

// SyncKind distinguishes a full replace from an additive merge.
type SyncKind string

const (
	SyncKindFull        SyncKind = "full"
	SyncKindIncremental SyncKind = "incremental"
	SyncKindSkipped     SyncKind = "skipped"
)

// AggregationSource records which path produced a sync's totals.
type AggregationSource string

const (
	AggregationAnalytics AggregationSource = "analytics"
	AggregationOrders    AggregationSource = "orders"
)

// SyncParams configures a full or incremental sync. Nil bounds take the
// orchestrator's default window ending now.
type SyncParams struct {
	After    *time.Time `json:"after,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
	Statuses []string   `json:"statuses,omitempty"`
	Mode     SyncMode   `json:"-"`
}

// SyncResult describes a completed sync.
type SyncResult struct {
	StoreID  string            `json:"store_id"`
	Kind     SyncKind          `json:"kind"`
	Mode     string            `json:"mode"`
	Window   Window            `json:"window"`
	Source   AggregationSource `json:"source,omitempty"`
	Orders   int               `json:"orders"`
	Products int               `json:"products"`
	Attempts int               `json:"attempts"`
	Duration float64           `json:"duration_seconds"`
}

// SyncPlan is the decision taken for one store during an all-store sync.
type SyncPlan struct {
	StoreID string   `json:"store_id"`
	Kind    SyncKind `json:"kind"`
	TaskID  string   `json:"task_id,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}
