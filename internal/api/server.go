// Package api exposes the read surface over HTTP: ranked content search,
// trending terms, and operational probes.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
	"github.com/CornerLeague/Corner-League-Bot/internal/metrics"
	"github.com/CornerLeague/Corner-League-Bot/internal/rank"
	"github.com/CornerLeague/Corner-League-Bot/internal/scheduler"
	"github.com/CornerLeague/Corner-League-Bot/internal/trending"
)

// Options tunes the HTTP server.
type Options struct {
	RequestTimeout  time.Duration
	DefaultPageSize int
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 20
	}
	return o
}

// Server serves the public API.
type Server struct {
	opts     Options
	engine   *rank.Engine
	detector *trending.Detector
	jobs     content.JobStore
	cancels  *scheduler.Cancellations
	clock    content.Clock
	ready    func() bool
	logger   *zap.Logger
}

// New builds a Server. ready gates the readiness probe; a nil ready always
// reports ready.
func New(
	opts Options,
	engine *rank.Engine,
	detector *trending.Detector,
	jobs content.JobStore,
	cancels *scheduler.Cancellations,
	clock content.Clock,
	ready func() bool,
	logger *zap.Logger,
) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{
		opts:     opts.withDefaults(),
		engine:   engine,
		detector: detector,
		jobs:     jobs,
		cancels:  cancels,
		clock:    clock,
		ready:    ready,
		logger:   logger.Named("api"),
	}
}

// Router assembles the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/content/search", s.handleSearch)
		r.Get("/trending", s.handleTrending)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Post("/jobs/{jobID}/cancel", s.handleJobCancel)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
