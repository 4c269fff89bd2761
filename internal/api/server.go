// Package api wires the HTTP surface: body queries, propagation endpoints,
// approach scans, valuation, composition analysis, the SSE stream, and the
// embedded web client.
package api

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aster/astergo/internal/auth"
	"github.com/aster/astergo/internal/cache"
	"github.com/aster/astergo/internal/compose"
	"github.com/aster/astergo/internal/elements"
	"github.com/aster/astergo/internal/health"
	"github.com/aster/astergo/internal/metrics"
	"github.com/aster/astergo/internal/stream"
)

// DatasetConfig holds element dataset acquisition settings.
type DatasetConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
}

// RefreshFunc fetches a fresh dataset and installs it in the store,
// returning the number of bodies loaded.
type RefreshFunc func(ctx context.Context) (int, error)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	store      *elements.Store
	datasetCfg DatasetConfig
	kfCache    *cache.KeyframeCache
	refresh    RefreshFunc
}

// NewServer creates a configured HTTP server.
func NewServer(
	addr string,
	logger *slog.Logger,
	authCfg auth.Config,
	store *elements.Store,
	datasetCfg DatasetConfig,
	kfCache *cache.KeyframeCache,
	streamHandler *stream.Handler,
	composeHandler *compose.Handler,
	refresh RefreshFunc,
	webContent fs.FS,
) *Server {
	s := &Server{
		logger:     logger,
		store:      store,
		datasetCfg: datasetCfg,
		kfCache:    kfCache,
		refresh:    refresh,
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(store))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/bodies", s.handleListBodies)
	mux.HandleFunc("GET /api/v1/bodies/{id}", s.handleGetBody)
	mux.HandleFunc("GET /api/v1/bodies/{id}/position", s.handlePosition)
	mux.HandleFunc("GET /api/v1/bodies/{id}/path", s.handlePath)
	mux.HandleFunc("GET /api/v1/bodies/{id}/value", s.handleValue)
	mux.HandleFunc("GET /api/v1/bodies/{id}/approaches", s.handleBodyApproaches)
	mux.HandleFunc("POST /api/v1/approaches", s.handleApproaches)
	mux.HandleFunc("GET /api/v1/dataset/metadata", s.handleDatasetMetadata)
	mux.HandleFunc("POST /api/v1/dataset/refresh", s.handleDatasetRefresh)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)

	if streamHandler != nil {
		mux.HandleFunc("GET /api/v1/stream/keyframes", streamHandler.HandleKeyframes)
	}
	if composeHandler != nil {
		mux.HandleFunc("POST /api/v1/analyze", composeHandler.HandleAnalyze)
	}
	if webContent != nil {
		mux.Handle("GET /", http.FileServerFS(webContent))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE handlers behind the middleware keep flushing.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
