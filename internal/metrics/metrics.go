// Package metrics provides Prometheus metrics for the worksite storage tiers
// and import pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the counters below.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultQuota   = "quota_exceeded"
	ResultSkipped = "skipped"
)

var (
	// Cache metrics
	CacheSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worksite_cache_snapshots_total",
			Help: "Cache snapshot attempts by backend and result",
		},
		[]string{"backend", "result"},
	)

	CacheSnapshotBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worksite_cache_snapshot_bytes",
			Help:    "Serialized size of cache snapshots",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"backend"},
	)

	// Directory metrics
	DirectoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worksite_directory_operations_total",
			Help: "Directory reads and writes by driver, operation and result",
		},
		[]string{"driver", "operation", "result"},
	)

	PermissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worksite_directory_permission_transitions_total",
			Help: "Directory permission state transitions",
		},
		[]string{"from", "to"},
	)

	ReconcileRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worksite_reconcile_records_total",
			Help: "Records touched by reconciliation by outcome",
		},
		[]string{"outcome"},
	)

	// Import metrics
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worksite_import_rows_total",
			Help: "Spreadsheet rows processed by outcome",
		},
		[]string{"outcome"},
	)

	ImportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worksite_import_runs_total",
			Help: "Import runs by result",
		},
		[]string{"result"},
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worksite_import_duration_seconds",
			Help:    "Time taken for a full import run",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
)

// RecordCacheSnapshot records one snapshot attempt.
func RecordCacheSnapshot(backend, result string, size int) {
	CacheSnapshots.WithLabelValues(backend, result).Inc()
	if result == ResultSuccess {
		CacheSnapshotBytes.WithLabelValues(backend).Observe(float64(size))
	}
}

// RecordDirectoryOperation records one directory read or write.
func RecordDirectoryOperation(driver, operation string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	DirectoryOperations.WithLabelValues(driver, operation, result).Inc()
}

// RecordPermissionTransition records a permission state change.
func RecordPermissionTransition(from, to string) {
	PermissionTransitions.WithLabelValues(from, to).Inc()
}

// RecordImportRows adds n rows with the given outcome.
func RecordImportRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	ImportRows.WithLabelValues(outcome).Add(float64(n))
}

// RecordReconcile adds n records with the given outcome.
func RecordReconcile(outcome string, n int) {
	if n <= 0 {
		return
	}
	ReconcileRecords.WithLabelValues(outcome).Add(float64(n))
}
