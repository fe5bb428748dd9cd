package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/config"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
	"github.com/rajputsidhu/sentinal-analysis/internal/pipeline"
	"github.com/rajputsidhu/sentinal-analysis/internal/session"
	"github.com/rajputsidhu/sentinal-analysis/internal/websocket"
)

// Server is the HTTP surface of the gateway.
type Server struct {
	config    *config.Config
	pipeline  *pipeline.Pipeline
	store     session.Store
	hub       *websocket.Hub
	logger    *logger.Logger
	http      *http.Server
	dryRun    bool
	startedAt time.Time
}

// New creates the server and wires its routes. hub may be nil when the
// dashboard is disabled.
func New(cfg *config.Config, pipe *pipeline.Pipeline, store session.Store, hub *websocket.Hub, log *logger.Logger) *Server {
	s := &Server{
		config:    cfg,
		pipeline:  pipe,
		store:     store,
		hub:       hub,
		logger:    log.WithComponent("server"),
		dryRun:    cfg.DryRun(),
		startedAt: time.Now(),
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware(s.logger))
	if cfg.RateLimit.Enabled {
		router.Use(rateLimitMiddleware(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst, s.logger))
	}

	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/analysis", s.handleGetSessionAnalyses).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if hub != nil && cfg.Dashboard.Enabled {
		router.HandleFunc(cfg.Dashboard.Path, hub.ServeWS)
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.http.Addr),
		zap.Bool("dry_run", s.dryRun),
		zap.String("analysis_mode", s.config.Analysis.Mode))

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}
