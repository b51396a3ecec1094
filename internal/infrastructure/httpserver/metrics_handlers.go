package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HTTP level collectors. Cache, breaker and limiter collectors live in the
// monitoring package and share the default registry.
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, status and X-Cache outcome (HIT, MISS, BYPASS, NONE)",
		},
		[]string{"method", "endpoint", "status", "cache"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency; cache hits land in the lowest buckets",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	metricsHandler = promhttp.Handler()
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

// GetRequestsTotal returns the requests total metric for middleware use
func GetRequestsTotal() *prometheus.CounterVec {
	return requestsTotal
}

// GetRequestDuration returns the request duration metric for middleware use
func GetRequestDuration() *prometheus.HistogramVec {
	return requestDuration
}

// LogMetricsInitialization lists the exported metric families.
func (s *Server) LogMetricsInitialization() {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"http":      "http_requests_total{cache}, http_request_duration_seconds",
		"cache":     "scripture_cache_lookups_total, scripture_cache_fetch_duration_seconds, scripture_cache_store_*",
		"breaker":   "scripture_cache_breaker_state, scripture_cache_breaker_transitions_total",
		"ratelimit": "scripture_cache_ratelimit_decisions_total",
		"endpoint":  "/metrics",
	}).Info("Prometheus metrics registered")
}

func (s *Server) metricsEndpoint(c echo.Context) error {
	metricsHandler.ServeHTTP(c.Response(), c.Request())
	return nil
}
