package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/williampepple1/ecoquery-scraper/pkg/models"
)

// Metrics bundles Prometheus collectors for a run
type Metrics struct {
	Registry         *prometheus.Registry
	RecordsTotal     *prometheus.CounterVec
	FieldMissesTotal *prometheus.CounterVec
	FaultsTotal      *prometheus.CounterVec
	PageDuration     prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquery_records_total",
			Help: "Records written to the output file by outcome.",
		},
		[]string{"outcome"},
	)
	fieldMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquery_field_misses_total",
			Help: "Fields that fell back to a sentinel value.",
		},
		[]string{"field"},
	)
	faults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoquery_faults_total",
			Help: "Page attempts that failed, by error type.",
		},
		[]string{"error_type"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecoquery_page_duration_seconds",
			Help:    "Time spent on one dataset page, excluding the request delay.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(records, fieldMisses, faults, pageDuration)

	return &Metrics{
		Registry:         registry,
		RecordsTotal:     records,
		FieldMissesTotal: fieldMisses,
		FaultsTotal:      faults,
		PageDuration:     pageDuration,
	}
}

// IncRecord counts a written record
func (m *Metrics) IncRecord(outcome models.Outcome) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(string(outcome)).Inc()
}

// IncFieldMiss counts a sentinel for field
func (m *Metrics) IncFieldMiss(field string) {
	if m == nil {
		return
	}
	m.FieldMissesTotal.WithLabelValues(field).Inc()
}

// IncFault counts a failed attempt for an error type label
func (m *Metrics) IncFault(errorType string) {
	if m == nil {
		return
	}
	m.FaultsTotal.WithLabelValues(errorType).Inc()
}

// ObserveDuration records the time spent on one page
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PageDuration.Observe(d.Seconds())
}
