package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/memoria/model"
)

// Metrics collects query pipeline metrics. A nil *Metrics records nothing.
type Metrics struct {
	StageDuration      *prometheus.HistogramVec
	QueriesTotal       *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	Degradations       *prometheus.CounterVec
	TraversalFallbacks prometheus.Counter
}

// NewMetrics creates the pipeline metrics and registers them with registerer
// unless it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memoria_query_stage_duration_seconds",
				Help:    "Duration of query pipeline stages in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"stage"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoria_queries_total",
				Help: "Total number of queries by effective strategy",
			},
			[]string{"strategy"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memoria_query_cache_hits_total",
				Help: "Total query cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memoria_query_cache_misses_total",
				Help: "Total query cache misses",
			},
		),
		Degradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memoria_query_degradations_total",
				Help: "Total number of degraded query stages",
			},
			[]string{"stage"},
		),
		TraversalFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memoria_traversal_fallbacks_total",
				Help: "Total graph traversals answered by the iterative fallback",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.StageDuration,
			m.QueriesTotal,
			m.CacheHits,
			m.CacheMisses,
			m.Degradations,
			m.TraversalFallbacks,
		)
	}

	return m
}

func (m *Metrics) observeStage(stage model.StageName, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
}

func (m *Metrics) query(strategy model.Strategy) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(string(strategy)).Inc()
}

func (m *Metrics) cache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) degraded(stage model.StageName) {
	if m == nil {
		return
	}
	m.Degradations.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) traversalFallback() {
	if m == nil {
		return
	}
	m.TraversalFallbacks.Inc()
}
