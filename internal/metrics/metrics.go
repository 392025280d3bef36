// Package metrics exposes import pipeline metrics to Prometheus.
//
// Metrics implements core.Observer, so a coordinator configured with it
// records chunk latency, conflict decisions and per-job record outcomes
// without knowing about Prometheus. Handler serves the registry.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bulkimport"

// Metrics holds the pipeline collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	// Chunk metrics
	chunksTotal   *prometheus.CounterVec   // By doc_type and status (ok/network_error/error)
	chunkDuration *prometheus.HistogramVec // By doc_type

	// Conflict metrics
	conflictsTotal *prometheus.CounterVec // By doc_type, decision and source (backend/intra_batch)

	// Job metrics
	jobsTotal    *prometheus.CounterVec   // By doc_type and state
	recordsTotal *prometheus.CounterVec   // By doc_type and outcome (success/skipped/failed)
	jobDuration  *prometheus.HistogramVec // By doc_type

	// HTTP metrics
	httpRequests  *prometheus.CounterVec   // By route, method and code
	httpDurations *prometheus.HistogramVec // By route and method
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		chunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunk",
			Name:      "submissions_total",
			Help:      "Total number of chunk submissions",
		}, []string{"doc_type", "status"}),

		chunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chunk",
			Name:      "submission_duration_seconds",
			Help:      "Round trip time of a chunk submission in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"doc_type"}),

		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conflict",
			Name:      "resolved_total",
			Help:      "Total number of conflicts resolved, by decision",
		}, []string{"doc_type", "decision", "source"}),

		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "finished_total",
			Help:      "Total number of import jobs finished, by terminal state",
		}, []string{"doc_type", "state"}),

		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "records_total",
			Help:      "Total number of records accounted for by finished jobs, by outcome",
		}, []string{"doc_type", "outcome"}),

		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Import job duration in seconds, conflict prompts included",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8), // 100ms to ~27min
		}, []string{"doc_type"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "method", "code"}),

		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.chunksTotal,
		m.chunkDuration,
		m.conflictsTotal,
		m.jobsTotal,
		m.recordsTotal,
		m.jobDuration,
		m.httpRequests,
		m.httpDurations,
	)

	return m
}

// Registry returns the registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RegisterActiveJobs exposes a gauge read from fn on every scrape.
func (m *Metrics) RegisterActiveJobs(fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "active",
		Help:      "Number of import jobs currently running",
	}, fn))
}

// ChunkSubmitted records one chunk round trip.
func (m *Metrics) ChunkSubmitted(docType string, elapsed time.Duration, err error) {
	status := "ok"
	switch {
	case errors.Is(err, core.ErrNetwork):
		status = "network_error"
	case err != nil:
		status = "error"
	}

	m.chunksTotal.WithLabelValues(docType, status).Inc()
	m.chunkDuration.WithLabelValues(docType).Observe(elapsed.Seconds())
}

// ConflictResolved records one conflict decision.
func (m *Metrics) ConflictResolved(docType string, decision core.Decision, intraBatch bool) {
	source := "backend"
	if intraBatch {
		source = "intra_batch"
	}
	m.conflictsTotal.WithLabelValues(docType, string(decision), source).Inc()
}

// JobFinished records a job's terminal accounting.
func (m *Metrics) JobFinished(result core.ImportResult) {
	m.jobsTotal.WithLabelValues(result.DocType, string(result.State)).Inc()
	m.recordsTotal.WithLabelValues(result.DocType, "success").Add(float64(result.Success))
	m.recordsTotal.WithLabelValues(result.DocType, "skipped").Add(float64(result.Skipped()))
	m.recordsTotal.WithLabelValues(result.DocType, "failed").Add(float64(len(result.Failed)))
	m.jobDuration.WithLabelValues(result.DocType).Observe(result.Duration.Seconds())
}

// ObserveRequest records one HTTP request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDurations.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

var _ core.Observer = (*Metrics)(nil)
