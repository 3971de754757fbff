package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests         *prometheus.CounterVec
	LatencyMS        *prometheus.HistogramVec
	LockConflicts    *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CheckoutFailures prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartsvc",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartsvc",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		LockConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartsvc",
			Name:      "stock_lock_conflicts_total",
			Help:      "Stock lock acquisitions lost to a concurrent holder.",
		}, []string{"op"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartsvc",
			Name:      "cache_hits_total",
			Help:      "Read-through cache hits.",
		}, []string{"entity"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartsvc",
			Name:      "cache_misses_total",
			Help:      "Read-through cache misses.",
		}, []string{"entity"}),
		CheckoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartsvc",
			Name:      "checkout_failures_total",
			Help:      "Checkouts that failed after locks were acquired.",
		}),
	}

	reg.MustRegister(
		m.Requests,
		m.LatencyMS,
		m.LockConflicts,
		m.CacheHits,
		m.CacheMisses,
		m.CheckoutFailures,
	)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
