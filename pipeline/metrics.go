package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the ingest pipelines.
// All methods are safe on a nil receiver so callers never have to
// guard for disabled metrics.
type Metrics struct {
	Registry             *prometheus.Registry
	InvocationsTotal     *prometheus.CounterVec
	PagesFetchedTotal    *prometheus.CounterVec
	ItemsFetchedTotal    *prometheus.CounterVec
	DocsWrittenTotal     *prometheus.CounterVec
	BatchCommitsTotal    *prometheus.CounterVec
	BatchFailuresTotal   *prometheus.CounterVec
	APIRetriesTotal      prometheus.Counter
	APIErrorsTotal       *prometheus.CounterVec
	FetchDuration        prometheus.Histogram
	SnapshotsPrunedTotal prometheus.Counter
	AggregatesTotal      prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	invocations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_invocations_total",
			Help: "Pipeline invocations by operation and outcome.",
		},
		[]string{"pipeline", "op", "status"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_pages_fetched_total",
			Help: "Listing pages fetched from upstream APIs.",
		},
		[]string{"pipeline"},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_items_fetched_total",
			Help: "Items seen on fetched listing pages.",
		},
		[]string{"pipeline"},
	)
	docs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_docs_written_total",
			Help: "Documents committed to the store.",
		},
		[]string{"collection"},
	)
	commits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batch_commits_total",
			Help: "Batch commits attempted per collection.",
		},
		[]string{"collection"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batch_commit_failures_total",
			Help: "Batch commits that failed per collection.",
		},
		[]string{"collection"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_api_retries_total",
			Help: "Retry attempts against upstream APIs.",
		},
	)
	apiErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_api_errors_total",
			Help: "Upstream API failures by error type.",
		},
		[]string{"error_type"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_fetch_duration_seconds",
			Help:    "Wall time of the fetch phase per invocation.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pruned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_snapshots_pruned_total",
			Help: "Raw snapshots deleted by the retention pruner.",
		},
	)
	aggregates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_aggregates_written_total",
			Help: "Daily aggregates written by the rollup.",
		},
	)

	registry.MustRegister(invocations, pages, items, docs, commits, failures,
		retries, apiErrors, fetchDuration, pruned, aggregates)

	return &Metrics{
		Registry:             registry,
		InvocationsTotal:     invocations,
		PagesFetchedTotal:    pages,
		ItemsFetchedTotal:    items,
		DocsWrittenTotal:     docs,
		BatchCommitsTotal:    commits,
		BatchFailuresTotal:   failures,
		APIRetriesTotal:      retries,
		APIErrorsTotal:       apiErrors,
		FetchDuration:        fetchDuration,
		SnapshotsPrunedTotal: pruned,
		AggregatesTotal:      aggregates,
	}
}

// IncInvocation records one pipeline invocation outcome.
func (m *Metrics) IncInvocation(pipeline, op, status string) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(pipeline, op, status).Inc()
}

// IncPage increments the fetched page counter.
func (m *Metrics) IncPage(pipeline string) {
	if m == nil {
		return
	}
	m.PagesFetchedTotal.WithLabelValues(pipeline).Inc()
}

// AddItems adds to the fetched item counter.
func (m *Metrics) AddItems(pipeline string, n int) {
	if m == nil {
		return
	}
	m.ItemsFetchedTotal.WithLabelValues(pipeline).Add(float64(n))
}

// AddDocs adds to the written document counter.
func (m *Metrics) AddDocs(collection string, n int) {
	if m == nil {
		return
	}
	m.DocsWrittenTotal.WithLabelValues(collection).Add(float64(n))
}

// IncBatchCommit records a batch commit attempt and its outcome.
func (m *Metrics) IncBatchCommit(collection string, failed bool) {
	if m == nil {
		return
	}
	m.BatchCommitsTotal.WithLabelValues(collection).Inc()
	if failed {
		m.BatchFailuresTotal.WithLabelValues(collection).Inc()
	}
}

// IncRetries increments the API retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.APIRetriesTotal.Inc()
}

// IncAPIError increments the API error counter for a type label.
func (m *Metrics) IncAPIError(errorType string) {
	if m == nil {
		return
	}
	m.APIErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveFetchDuration records the fetch phase wall time.
func (m *Metrics) ObserveFetchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddPruned adds to the pruned snapshot counter.
func (m *Metrics) AddPruned(n int) {
	if m == nil {
		return
	}
	m.SnapshotsPrunedTotal.Add(float64(n))
}

// AddAggregates adds to the written aggregate counter.
func (m *Metrics) AddAggregates(n int) {
	if m == nil {
		return
	}
	m.AggregatesTotal.Add(float64(n))
}
