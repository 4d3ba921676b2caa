package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricFeedRequestsTotal   = "feed_requests_total"
	MetricStageDuration       = "feed_stage_duration_seconds"
	MetricStageDegradedTotal  = "feed_stage_degraded_total"
	MetricRerankFallbackTotal = "feed_rerank_fallback_total"
	MetricInjectedPostsTotal  = "feed_injected_posts_total"
)

// Stage names for labeling.
const (
	StageCandidates = "candidates"
	StageProfile    = "profile"
	StageFeatures   = "features"
	StageScore      = "score"
	StageRerank     = "rerank"
	StageDiversity  = "diversity"
	StageCacheRead  = "cache_read"
	StageCacheWrite = "cache_write"
	StageInject     = "inject"
)

// Metrics contains Prometheus metrics for feed pipeline operations.
// All operations are thread-safe.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stageDegraded   *prometheus.CounterVec
	rerankFallbacks prometheus.Counter
	injectedPosts   prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFeedRequestsTotal,
				Help: "Total number of feed requests by result source",
			},
			[]string{"source"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Histogram of pipeline stage duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"stage"},
		),
		stageDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStageDegradedTotal,
				Help: "Total number of pipeline stages that degraded to a fallback path",
			},
			[]string{"stage"},
		),
		rerankFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricRerankFallbackTotal,
				Help: "Total number of rerank calls that fell back to the tier-1 ordering",
			},
		),
		injectedPosts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricInjectedPostsTotal,
				Help: "Total number of posts spliced into served pages by the realtime injector",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRequests increments the request counter for a result source.
func (m *Metrics) IncRequests(source string) {
	m.requestsTotal.WithLabelValues(source).Inc()
}

// ObserveStageDuration records one stage duration sample.
func (m *Metrics) ObserveStageDuration(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// IncStageDegraded increments the degraded counter for a stage.
func (m *Metrics) IncStageDegraded(stage string) {
	m.stageDegraded.WithLabelValues(stage).Inc()
}

// IncRerankFallbacks increments the rerank fallback counter.
func (m *Metrics) IncRerankFallbacks() {
	m.rerankFallbacks.Inc()
}

// AddInjectedPosts adds to the injected post counter.
func (m *Metrics) AddInjectedPosts(n int) {
	m.injectedPosts.Add(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.stageDuration,
		m.stageDegraded,
		m.rerankFallbacks,
		m.injectedPosts,
	}
}
