package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpOnce     sync.Once
)

func registerHTTPMetrics() {
	httpOnce.Do(func() {
		httpRequests = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refinery_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		)
		httpDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refinery_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// MetricsCollector counts requests and errors for /stats and feeds the
// Prometheus HTTP collectors.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
}

// NewMetricsCollector returns a collector writing into the given counters.
func NewMetricsCollector(requestCount, errorCount *atomic.Int64) *MetricsCollector {
	registerHTTPMetrics()
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
	}
}

// Middleware returns HTTP middleware that records request metrics.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}

		// The pattern is only known once routing has happened.
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
