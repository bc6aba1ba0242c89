package match

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons recorded on the candidates_skipped counter.
const (
	SkipReasonIncomplete    = "incomplete_profile"
	SkipReasonHardFilter    = "hard_filter"
	SkipReasonMissingVector = "missing_vector"
)

// Metrics holds the matching pipeline instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	candidatesScored  prometheus.Counter
	candidatesSkipped *prometheus.CounterVec
	vectorFetchErrors prometheus.Counter
	pipelineDuration  *prometheus.HistogramVec
}

// NewMetrics registers the pipeline metrics on the given registry. A nil
// registry gets a fresh private one, which tests rely on.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		candidatesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nestmate",
			Subsystem: "match",
			Name:      "candidates_scored_total",
			Help:      "Candidates that made it through the full scoring path.",
		}),
		candidatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestmate",
			Subsystem: "match",
			Name:      "candidates_skipped_total",
			Help:      "Candidates dropped before scoring, by reason.",
		}, []string{"reason"}),
		vectorFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nestmate",
			Subsystem: "match",
			Name:      "vector_fetch_errors_total",
			Help:      "Companion vector fetches that failed.",
		}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nestmate",
			Subsystem: "match",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end matching pipeline latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(
		m.candidatesScored,
		m.candidatesSkipped,
		m.vectorFetchErrors,
		m.pipelineDuration,
	)
	return m
}

// Registry exposes the underlying registry for the metrics HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) scored() {
	m.candidatesScored.Inc()
}

func (m *Metrics) skipped(reason string) {
	m.candidatesSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) fetchError() {
	m.vectorFetchErrors.Inc()
}

func (m *Metrics) observe(operation string, seconds float64) {
	m.pipelineDuration.WithLabelValues(operation).Observe(seconds)
}
