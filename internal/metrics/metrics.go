package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	PipelineRuns     *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	ResolverOutcomes *prometheus.CounterVec
	ProviderAttempts *prometheus.CounterVec
	LiveChunks       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicegeo",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome and failing stage.",
		}, []string{"outcome", "stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voicegeo",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per pipeline stage.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		ResolverOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicegeo",
			Name:      "resolver_candidates_total",
			Help:      "Resolver candidate outcomes by final state.",
		}, []string{"state", "reason"}),
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicegeo",
			Name:      "geocoder_attempts_total",
			Help:      "Geocoding provider calls by result.",
		}, []string{"result"}),
		LiveChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicegeo",
			Name:      "live_chunks_total",
			Help:      "Background chunks processed by source and outcome.",
		}, []string{"source", "outcome"}),
	}
	reg.MustRegister(
		m.PipelineRuns, m.StageDuration, m.ResolverOutcomes, m.ProviderAttempts, m.LiveChunks,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Run(outcome, stage string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome, stage).Inc()
}

func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) Candidate(state, reason string) {
	if m == nil {
		return
	}
	m.ResolverOutcomes.WithLabelValues(state, reason).Inc()
}

func (m *Metrics) Attempt(result string) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Chunk(source, outcome string) {
	if m == nil {
		return
	}
	m.LiveChunks.WithLabelValues(source, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
