// Package metrics provides Prometheus instrumentation for the loading
// engine: per-table load counters, dedup accounting and latency
// histograms. Metrics register on the default registry at package
// initialization; callers expose them however their pipeline runner
// serves /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons recorded on RowsSkipped.
const (
	ReasonExcluded  = "excluded"   // key already present downstream
	ReasonNullKey   = "null_key"   // natural key contains NULL
	ReasonDuplicate = "duplicate"  // exact duplicate within the batch
	ReasonCollapsed = "aggregated" // collapsed by the entity aggregator
)

var (
	// RowsLoaded counts rows committed to the warehouse.
	RowsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adlake",
		Subsystem: "loader",
		Name:      "rows_loaded_total",
		Help:      "Total rows committed to the destination table",
	}, []string{"table", "mode"})

	// RowsSkipped counts rows removed before the bulk commit.
	RowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adlake",
		Subsystem: "loader",
		Name:      "rows_skipped_total",
		Help:      "Rows dropped before load, by reason",
	}, []string{"table", "reason"})

	// RowsDeleted counts rows removed by delete and upsert paths.
	RowsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adlake",
		Subsystem: "loader",
		Name:      "rows_deleted_total",
		Help:      "Rows deleted from the destination table",
	}, []string{"table", "mode"})

	// LoadDuration observes end-to-end load call latency.
	LoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "adlake",
		Subsystem: "loader",
		Name:      "load_duration_seconds",
		Help:      "End-to-end duration of one load call",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"table", "mode"})

	// LoadErrors counts failed load calls by error type.
	LoadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adlake",
		Subsystem: "loader",
		Name:      "load_errors_total",
		Help:      "Load calls that failed and rolled back",
	}, []string{"table", "mode", "error_type"})
)

// Timer measures one load call's duration.
type Timer struct {
	table string
	mode  string
	start time.Time
}

// NewTimer starts a timer for a table and mode.
func NewTimer(table, mode string) *Timer {
	return &Timer{table: table, mode: mode, start: time.Now()}
}

// Stop records the elapsed duration and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	LoadDuration.WithLabelValues(t.table, t.mode).Observe(elapsed.Seconds())
	return elapsed
}
