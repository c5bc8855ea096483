package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CatalogScanOK               = "ok"
	CatalogScanDirectoryMissing = "directory_missing"
	CatalogScanNoMatches        = "no_matches"
	CatalogScanError            = "error"
)

var (
	catalogScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phenoquery_catalog_scans_total",
			Help: "Total number of dataset directory scans by outcome.",
		},
		[]string{"outcome"},
	)
	introspectionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "phenoquery_schema_introspection_failures_total",
			Help: "Total number of dataset files whose schema could not be read.",
		},
	)
	sampleFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "phenoquery_sample_failures_total",
			Help: "Total number of column discovery requests that returned without a sample row.",
		},
	)
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phenoquery_operations_total",
			Help: "Total number of core operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	operationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phenoquery_operation_duration_seconds",
			Help:    "Core operation latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)
	fetchedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "phenoquery_fetched_rows_total",
			Help: "Total number of rows materialized by discovery samples and data fetches.",
		},
	)
	mirrorObjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phenoquery_mirror_objects_total",
			Help: "Total number of object store entries seen by the dataset mirror, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		catalogScansTotal,
		introspectionFailuresTotal,
		sampleFailuresTotal,
		operationsTotal,
		operationDurationSeconds,
		fetchedRowsTotal,
		mirrorObjectsTotal,
	)
}

func ObserveCatalogScan(outcome string) {
	catalogScansTotal.WithLabelValues(outcome).Inc()
}

func IncrementIntrospectionFailure() {
	introspectionFailuresTotal.Inc()
}

func IncrementSampleFailure() {
	sampleFailuresTotal.Inc()
}

// ObserveOperation records one DiscoverColumns or FetchData call. rows is only
// counted for successful calls.
func ObserveOperation(operation string, err error, rows int, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
	if err == nil && rows > 0 {
		fetchedRowsTotal.Add(float64(rows))
	}
}

func ObserveMirrorObject(result string) {
	mirrorObjectsTotal.WithLabelValues(result).Inc()
}
