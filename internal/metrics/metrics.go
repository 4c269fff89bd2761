// Package metrics defines the service's Prometheus collectors and the HTTP
// middleware that feeds the request-level ones.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astergo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astergo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astergo_propagation_duration_seconds",
			Help:    "Duration of a full-dataset propagation pass.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	propagationBodiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astergo_propagation_bodies_total",
			Help: "Per-body propagation outcomes.",
		},
		[]string{"outcome"},
	)

	datasetBodies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astergo_dataset_bodies",
			Help: "Number of bodies in the current dataset.",
		},
	)

	datasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astergo_dataset_age_seconds",
			Help: "Age of the current dataset in seconds.",
		},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "astergo_cache_hits_total",
			Help: "Keyframe cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "astergo_cache_misses_total",
			Help: "Keyframe cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "astergo_cache_evictions_total",
			Help: "Keyframes evicted from the rolling cache.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astergo_cache_entries",
			Help: "Keyframes currently held in the cache.",
		},
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astergo_cache_size_bytes",
			Help: "Estimated keyframe cache memory footprint.",
		},
	)

	cacheRegenerationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "astergo_cache_regeneration_errors_total",
			Help: "Failed keyframe generations during cache maintenance.",
		},
	)

	cacheRegenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astergo_cache_regeneration_duration_seconds",
			Help:    "Duration of keyframe generation during cache maintenance.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	cacheGracePeriodActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astergo_cache_grace_period_active",
			Help: "1 while a dataset cutover rebuild is in progress.",
		},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "astergo_streams_active",
			Help: "Currently connected SSE streams.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astergo_stream_connections_total",
			Help: "SSE stream lifecycle events.",
		},
		[]string{"event"},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astergo_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "astergo_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "astergo_stream_bytes_total",
			Help: "SSE payload bytes written.",
		},
	)

	analyzeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astergo_analyze_requests_total",
			Help: "Composition analysis requests by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDurationSeconds,
		propagationBodiesTotal,
		datasetBodies,
		datasetAgeSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		cacheSizeBytes,
		cacheRegenerationErrorsTotal,
		cacheRegenerationDuration,
		cacheGracePeriodActive,
		streamsActive,
		streamConnectionsTotal,
		streamErrorsTotal,
		streamMessagesTotal,
		streamBytesTotal,
		analyzeRequestsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one full-dataset propagation pass.
func RecordPropagation(d time.Duration, success, errors int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagationBodiesTotal.WithLabelValues("success").Add(float64(success))
	propagationBodiesTotal.WithLabelValues("error").Add(float64(errors))
}

// SetDatasetBodies publishes the current dataset size.
func SetDatasetBodies(n int) { datasetBodies.Set(float64(n)) }

// SetDatasetAge publishes the current dataset age in seconds.
func SetDatasetAge(seconds float64) { datasetAgeSeconds.Set(seconds) }

// Keyframe cache instrumentation.

func IncCacheHits()           { cacheHitsTotal.Inc() }
func IncCacheMisses()         { cacheMissesTotal.Inc() }
func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }
func SetCacheEntries(n int)   { cacheEntries.Set(float64(n)) }

func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }

func IncCacheRegenerationErrors() { cacheRegenerationErrorsTotal.Inc() }

func ObserveCacheRegenerationDuration(d time.Duration) {
	cacheRegenerationDuration.Observe(d.Seconds())
}

func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriodActive.Set(1)
	} else {
		cacheGracePeriodActive.Set(0)
	}
}

// SSE stream instrumentation.

func IncStreamsActive()              { streamsActive.Inc() }
func DecStreamsActive()              { streamsActive.Dec() }
func IncStreamConnections(ev string) { streamConnectionsTotal.WithLabelValues(ev).Inc() }
func IncStreamErrors(reason string)  { streamErrorsTotal.WithLabelValues(reason).Inc() }
func IncStreamMessages()             { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)         { streamBytesTotal.Add(float64(n)) }

// IncAnalyzeRequests records a composition analysis request outcome.
func IncAnalyzeRequests(outcome string) {
	analyzeRequestsTotal.WithLabelValues(outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE handlers behind the middleware keep flushing.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// knownRoutes are the exact paths recorded under their own label. Anything
// else collapses to a parameterized label or "other" so scanners and bots
// cannot blow up label cardinality.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/bodies":           true,
	"/api/v1/approaches":       true,
	"/api/v1/analyze":          true,
	"/api/v1/dataset/metadata": true,
	"/api/v1/dataset/refresh":  true,
	"/api/v1/cache/stats":      true,
	"/api/v1/stream/keyframes": true,
}

// bodySubresources are the per-body endpoints under /api/v1/bodies/{id}.
var bodySubresources = map[string]bool{
	"position":   true,
	"path":       true,
	"value":      true,
	"approaches": true,
}

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/bodies/"); ok && rest != "" {
		id, sub, found := strings.Cut(rest, "/")
		if id == "" {
			return "other"
		}
		if !found {
			return "/api/v1/bodies/{id}"
		}
		if bodySubresources[sub] {
			return "/api/v1/bodies/{id}/" + sub
		}
		return "other"
	}

	switch path {
	case "/index.html", "/app.js", "/styles.css":
		return "static"
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		route := normalizeRoute(r.URL.Path)
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
