package querycache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics interface {
	Hit()
	Miss()
	Shared()
	LoadError()
	LoadDuration(time.Duration)
}

type NoopMetrics struct{}

func (NoopMetrics) Hit()                       {}
func (NoopMetrics) Miss()                      {}
func (NoopMetrics) Shared()                    {}
func (NoopMetrics) LoadError()                 {}
func (NoopMetrics) LoadDuration(time.Duration) {}

type PrometheusMetrics struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	shared       prometheus.Counter
	loadErrors   prometheus.Counter
	loadDuration prometheus.Histogram
}

// NewPrometheusMetrics registers the query cache metrics for the named query.
func NewPrometheusMetrics(registerer prometheus.Registerer, query string) *PrometheusMetrics {
	labels := prometheus.Labels{"query": query}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "sv_governance",
			Subsystem:   "query_cache",
			Name:        "hits_total",
			Help:        "number of queries served from the cache",
			ConstLabels: labels,
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "sv_governance",
			Subsystem:   "query_cache",
			Name:        "misses_total",
			Help:        "number of queries that needed a load",
			ConstLabels: labels,
		}),
		shared: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "sv_governance",
			Subsystem:   "query_cache",
			Name:        "shared_loads_total",
			Help:        "number of callers that got the result of a load shared with other callers",
			ConstLabels: labels,
		}),
		loadErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "sv_governance",
			Subsystem:   "query_cache",
			Name:        "load_errors_total",
			Help:        "number of loads that failed after all retries",
			ConstLabels: labels,
		}),
		loadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "sv_governance",
			Subsystem:   "query_cache",
			Name:        "load_duration_seconds",
			Help:        "duration of loads including retries",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

func (m *PrometheusMetrics) Hit() {
	m.hits.Inc()
}

func (m *PrometheusMetrics) Miss() {
	m.misses.Inc()
}

func (m *PrometheusMetrics) Shared() {
	m.shared.Inc()
}

func (m *PrometheusMetrics) LoadError() {
	m.loadErrors.Inc()
}

func (m *PrometheusMetrics) LoadDuration(duration time.Duration) {
	m.loadDuration.Observe(duration.Seconds())
}
