package core

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// HTTP
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riki_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riki_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riki_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)

	// Content
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riki_classifications_total",
			Help: "Resolved logical paths by content kind",
		},
		[]string{"kind"},
	)

	metadataCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riki_directory_metadata_cached",
			Help: "Number of directories with memoized metadata",
		},
	)

	thumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riki_thumbnail_requests_total",
			Help: "Thumbnail requests by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	thumbnailDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riki_thumbnail_generation_duration_seconds",
			Help:    "Time to decode, resize and store a thumbnail",
			Buckets: prometheus.DefBuckets,
		},
	)

	searchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riki_search_queries_total",
			Help: "Full text queries by status",
		},
		[]string{"status"},
	)

	indexedDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riki_search_documents",
			Help: "Number of documents in the search index",
		},
	)

	fileWatcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riki_file_watcher_events_total",
			Help: "Content changes applied by the watcher, by type",
		},
		[]string{"type"},
	)

	// Rate limiting
	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riki_rate_limit_checks_total",
			Help: "Requests checked by the rate limiter",
		},
	)

	rateLimitBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riki_rate_limit_blocks_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// MetricsHandler returns the Prometheus exposition handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records a served request. route is the route
// template, not the requested path.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordClassification(kind Kind) {
	classificationsTotal.WithLabelValues(kind.String()).Inc()
}

func RecordMetadataCacheSize(size int) {
	metadataCacheSize.Set(float64(size))
}

func RecordThumbnail(result string) {
	thumbnailsTotal.WithLabelValues(result).Inc()
}

func ObserveThumbnailGeneration(d time.Duration) {
	thumbnailDuration.Observe(d.Seconds())
}

func RecordSearchQuery(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	searchQueriesTotal.WithLabelValues(status).Inc()
}

func SetIndexedDocuments(count uint64) {
	indexedDocuments.Set(float64(count))
}

func RecordFileWatcherEvent(eventType string) {
	fileWatcherEvents.WithLabelValues(eventType).Inc()
}

func RecordRateLimitHit() {
	rateLimitHits.Inc()
}

func RecordRateLimitBlock() {
	rateLimitBlocks.Inc()
}

// MetricsMiddleware collects HTTP metrics and logs slow requests
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpRequestsInFlight.Inc()
		c.Next()
		httpRequestsInFlight.Dec()

		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), duration)

		if duration > time.Second {
			Info("slow request",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Duration("duration", duration))
		}
	}
}
