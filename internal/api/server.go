// Package api provides the HTTP control surface for the harvest engine.
//
// Purpose:
//
//	The control API reports the engine lifecycle, spawns harvest runs as
//	detached harvester processes, and serves the cached catalogs so
//	operators can list targets without waiting on a browser. It never runs
//	a harvest in-process; a run outlives API restarts.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: HTTP router and middleware
//   - github.com/prometheus/client_golang: /metrics endpoint
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/status"
	"github.com/Zeebrow/ec2-price-tracker/internal/storage/postgres"
)

// Server wraps the HTTP server and router.
type Server struct {
	router *chi.Mux
	logger *zap.Logger
	port   int
	store  *postgres.Store
	http   *http.Server
}

// Config holds server configuration.
type Config struct {
	Port   int
	Logger *zap.Logger

	// Status, Launcher, Catalogs and Runs feed the handlers.
	Status   status.Store
	Launcher Launcher
	Catalogs CatalogReader
	Runs     RunMetricsReader

	// Store backs the readiness probe.
	Store *postgres.Store
}

// NewServer creates the HTTP server with middleware and routes configured.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	s := &Server{
		router: r,
		logger: cfg.Logger,
		port:   cfg.Port,
		store:  cfg.Store,
	}

	h := &Handler{
		status:   cfg.Status,
		launcher: cfg.Launcher,
		catalogs: cfg.Catalogs,
		runs:     cfg.Runs,
		logger:   cfg.Logger,
	}

	r.Get("/healthz", healthzHandler)
	r.Get("/readyz", s.readyzHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", h.GetStatus)
	r.Post("/run", h.StartRun)
	r.Get("/catalogs", h.GetCatalogs)
	r.Get("/runs/latest", h.GetLatestRun)

	return s
}

// Router returns the chi router, used by tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("control api listening", zap.Int("port", s.port))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request through the service logger.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// healthzHandler returns a simple health check.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyzHandler checks readiness of dependencies.
func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string)
	ready := true

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			components["postgres"] = "unhealthy"
			ready = false
			s.logger.Debug("postgres health check failed", zap.Error(err))
		} else {
			components["postgres"] = "healthy"
		}
	} else {
		components["postgres"] = "unhealthy"
		ready = false
	}

	response := map[string]interface{}{
		"status":     "ready",
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	if !ready {
		response["status"] = "degraded"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(response)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
