package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestionMetrics records row-level outcomes of bulk uploads and the
// duration of enrichment batches.
type IngestionMetrics struct {
	rows          *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchSuccess  *prometheus.CounterVec
	batchFailure  *prometheus.CounterVec
}

// Row outcome labels.
const (
	RowOutcomeParsed           = "parsed"
	RowOutcomeInstantPublished = "instant_published"
	RowOutcomeDrafted          = "drafted"
	RowOutcomeFailed           = "failed"
	RowOutcomeEnriched         = "enriched"
)

// NewIngestionMetrics registers the ingestion metrics on the provided registerer.
func NewIngestionMetrics(reg prometheus.Registerer) *IngestionMetrics {
	if reg == nil {
		return &IngestionMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_rows_total",
		Help: "Bulk upload rows by outcome.",
	}, []string{"outcome"})
	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batch_duration_seconds",
		Help:    "Duration of ingestion and enrichment batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"batch"})
	batchSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_success",
		Help: "Successful batch executions.",
	}, []string{"batch"})
	batchFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_failure",
		Help: "Failed batch executions.",
	}, []string{"batch"})
	reg.MustRegister(rows, batchDuration, batchSuccess, batchFailure)
	return &IngestionMetrics{
		rows:          rows,
		batchDuration: batchDuration,
		batchSuccess:  batchSuccess,
		batchFailure:  batchFailure,
	}
}

// AddRows increments the row counter for the given outcome.
func (m *IngestionMetrics) AddRows(outcome string, count int) {
	if m == nil || m.rows == nil || count <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(outcome)).Add(float64(count))
}

// ObserveBatchDuration records the duration for the named batch kind.
func (m *IngestionMetrics) ObserveBatchDuration(batch string, duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.WithLabelValues(normalizeLabel(batch)).Observe(duration.Seconds())
}

// IncBatchSuccess increments the success counter for the named batch kind.
func (m *IngestionMetrics) IncBatchSuccess(batch string) {
	if m == nil || m.batchSuccess == nil {
		return
	}
	m.batchSuccess.WithLabelValues(normalizeLabel(batch)).Inc()
}

// IncBatchFailure increments the failure counter for the named batch kind.
func (m *IngestionMetrics) IncBatchFailure(batch string) {
	if m == nil || m.batchFailure == nil {
		return
	}
	m.batchFailure.WithLabelValues(normalizeLabel(batch)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
