package observability

import "github.com/prometheus/client_golang/prometheus"

// HTTP metrics for the finqa API. The path label carries the route pattern, for example
// /v1/ask, and "unmatched" for requests no route served.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finqa_http_requests_total",
			Help: "Total number of HTTP requests by route.",
		},
		[]string{"method", "path", "status"},
	)

	// /v1/ask spans up to three model calls, so the tail reaches well past DefBuckets.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finqa_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "finqa_http_requests_in_flight",
		Help: "HTTP requests currently being served.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpRequestsInFlight)
}
