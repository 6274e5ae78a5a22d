package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "kennings"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	lexiconSearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lexicon_search_total",
			Help:      "Total number of English searches",
		},
		[]string{"cache_hit", "matched"},
	)

	lexiconEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "lexicon_entries",
			Help:      "Number of searchable entries in the current lexicon",
		},
	)

	kenningWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "kenning_writes_total",
			Help:      "Total number of kenning writes by action",
		},
		[]string{"action"},
	)

	votesCastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "votes_cast_total",
			Help:      "Total number of votes cast by vote type",
		},
		[]string{"type"},
	)

	unresolvedTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unresolved_tokens_total",
			Help:      "Tokens stored without a matching Hîsyêô word",
		},
	)
)

// MetricsMiddleware records Prometheus metrics for every HTTP request.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		// route pattern, so /api/kennings/:id/approve is one series
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		httpRequestsInFlight.Dec()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

func RecordSearch(cacheHit, matched bool) {
	lexiconSearchTotal.WithLabelValues(strconv.FormatBool(cacheHit), strconv.FormatBool(matched)).Inc()
}

func SetLexiconEntries(n int) {
	lexiconEntries.Set(float64(n))
}

// RecordKenningWrite counts add, edit, approve, unpublish, delete and restore.
func RecordKenningWrite(action string) {
	kenningWritesTotal.WithLabelValues(action).Inc()
}

func RecordVote(voteType string) {
	votesCastTotal.WithLabelValues(voteType).Inc()
}

func RecordUnresolvedTokens(n int) {
	if n > 0 {
		unresolvedTokensTotal.Add(float64(n))
	}
}
