// Package metrics provides Prometheus instrumentation for pagewatch.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagewatch"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EventsClassifiedTotal counts classified events by type.
	EventsClassifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_classified_total",
			Help:      "Total events classified by event type.",
		},
		[]string{"type"},
	)

	// ReasonsTotal counts emitted reason tags.
	ReasonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasons_total",
			Help:      "Total reason tags emitted by the classifier.",
		},
		[]string{"reason"},
	)

	// BatchSize observes the number of events per analyzed batch.
	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_events",
		Help:      "Number of events per analyzed batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// PhishingLookupsTotal counts analyzer calls by outcome (verdict status or error code).
	PhishingLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phishing_lookups_total",
			Help:      "Total phishing analyzer lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// PhishingLookupDuration observes analyzer latency.
	PhishingLookupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phishing_lookup_duration_seconds",
		Help:      "Phishing analyzer call duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// PhishingEventsTotal counts synthesized phishing events by verdict status.
	PhishingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phishing_events_total",
			Help:      "Total phishing events recorded from risky verdicts.",
		},
		[]string{"status"},
	)

	// EventLogSize tracks the number of entries held in each in-memory log.
	EventLogSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eventlog_entries",
			Help:      "Entries currently held in the in-memory log.",
		},
		[]string{"log"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total requests rejected by the rate limiter.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EventsClassifiedTotal,
		ReasonsTotal,
		BatchSize,
		PhishingLookupsTotal,
		PhishingLookupDuration,
		PhishingEventsTotal,
		EventLogSize,
		RateLimitedTotal,
		ActiveWebSocketClients,
		GoroutineCount,
	)
}

// ObserveClassification records one classified event and its reason tags.
func ObserveClassification(eventType string, reasons []string) {
	EventsClassifiedTotal.WithLabelValues(eventType).Inc()
	for _, r := range reasons {
		ReasonsTotal.WithLabelValues(r).Inc()
	}
}

// ObserveLookup records one analyzer call. outcome is the verdict status on
// success or the error code on failure.
func ObserveLookup(outcome string, elapsed time.Duration) {
	PhishingLookupsTotal.WithLabelValues(outcome).Inc()
	PhishingLookupDuration.Observe(elapsed.Seconds())
}

// StartRuntimeCollector periodically samples the goroutine count.
// Call in a goroutine; exits when ctx is done.
func StartRuntimeCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
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
