// Package api exposes the viewer session over HTTP: catalog state, tracking
// control, object snapshots, selection, on-demand trajectories and the SSE
// position stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/orbitview/internal/auth"
	"github.com/star/orbitview/internal/clock"
	"github.com/star/orbitview/internal/health"
	"github.com/star/orbitview/internal/httputil"
	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/session"
	"github.com/star/orbitview/internal/stream"
	"github.com/star/orbitview/internal/tle"
	"github.com/star/orbitview/internal/trajectory"
)

// Viewer is the session surface the handlers drive. *session.Session
// implements it.
type Viewer interface {
	Status(ctx context.Context) (session.Status, error)
	Objects(ctx context.Context) ([]session.ObjectView, error)
	Lookup(ctx context.Context, q session.Query) (session.Tracked, error)
	Select(ctx context.Context, q session.Query) (session.Selected, error)
	ClearSelection(ctx context.Context) error
	SetTracking(ctx context.Context, enabled bool) error
	Reload(ctx context.Context) error
}

// Config holds listener and access settings.
type Config struct {
	Addr       string
	Auth       auth.Config
	TrustProxy bool
}

// Deps are the collaborators behind the routes. Metrics and Ready may be
// nil.
type Deps struct {
	Viewer  Viewer
	Catalog *tle.CatalogCache
	Sampler *trajectory.Sampler
	Clock   clock.Clock
	Stream  *stream.Handler
	Metrics *metrics.Collector
	Ready   health.ReadyFunc
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	now        func() time.Time
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{deps: deps, now: time.Now, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Ready))
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	mux.HandleFunc("GET /api/v1/catalog/metadata", s.handleCatalogMetadata)
	mux.HandleFunc("POST /api/v1/catalog/reload", s.handleCatalogReload)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("PUT /api/v1/tracking", s.handleSetTracking)
	mux.HandleFunc("GET /api/v1/objects", s.handleObjects)
	mux.HandleFunc("POST /api/v1/selection", s.handleSelect)
	mux.HandleFunc("DELETE /api/v1/selection", s.handleClearSelection)
	mux.HandleFunc("GET /api/v1/trajectory/{norad_id}", s.handleTrajectory)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/positions", deps.Stream.HandlePositions)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = deps.Metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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

// Unwrap exposes the underlying writer to http.ResponseController so the
// stream handler can flush and adjust deadlines through the chain.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Flush forwards to the wrapped writer when it supports flushing.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

const requestIDHeader = "X-Request-Id"

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
