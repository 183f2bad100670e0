package providers

import (
	"pvz/internal/structures"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay query outcomes reported per collector pass.
const (
	OutcomeHit     = "hit"
	OutcomeEmpty   = "empty"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObservePersistenceDuration(duration time.Duration)
	IncRelayQueries(pass, outcome string)
	ObserveScanDuration(duration time.Duration)
	SetZombiesTotal(category string, count int)
	SetReportsTotal(count int)
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	persistenceDuration prometheus.Histogram
	relayQueries        *prometheus.CounterVec
	scanDuration        prometheus.Histogram
	zombiesTotal        *prometheus.GaugeVec
	reportsTotal        prometheus.Gauge
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncRelayQueries(pass, outcome string) {
	m.relayQueries.WithLabelValues(pass, outcome).Inc()
}

func (m *MetricsProvider) ObserveScanDuration(duration time.Duration) {
	m.scanDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) SetZombiesTotal(category string, count int) {
	m.zombiesTotal.WithLabelValues(category).Set(float64(count))
}

func (m *MetricsProvider) SetReportsTotal(count int) {
	m.reportsTotal.Set(float64(count))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	return &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pvz_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pvz_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pvz_cache_hits_total",
			Help: "Total number of cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pvz_cache_misses_total",
			Help: "Total number of cache misses",
		}),

		persistenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pvz_persistence_duration_seconds",
			Help:    "Duration of persistence operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		relayQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pvz_relay_queries_total",
			Help: "Relay queries issued by collector passes, by outcome",
		}, []string{"pass", "outcome"}),

		scanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pvz_scan_duration_seconds",
			Help:    "Duration of complete follow list scans in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),

		zombiesTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvz_last_scan_accounts",
			Help: "Accounts per category in the most recent scan",
		}, []string{"category"}),

		reportsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pvz_reports_total",
			Help: "Number of stored scan reports",
		}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (n *noopMetrics) IncRelayQueries(_, _ string)                      {}
func (n *noopMetrics) ObserveScanDuration(_ time.Duration)              {}
func (n *noopMetrics) SetZombiesTotal(_ string, _ int)                  {}
func (n *noopMetrics) SetReportsTotal(_ int)                            {}
