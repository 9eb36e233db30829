// Package api exposes transactions, rules and reconciliation runs over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconciler-backend/internal/api/handlers"
	"github.com/eshaffer321/reconciler-backend/internal/api/middleware"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	RateLimitRPS   float64 // 0 disables rate limiting
	RateLimitBurst int
	WriteTimeout   time.Duration // must cover a full reconciliation run
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		RateLimitRPS:   10,
		RateLimitBurst: 30,
		WriteTimeout:   15 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	reconciler handlers.RunTrigger
	history    handlers.RunHistory
}

// NewServer creates a new API server.
func NewServer(cfg Config, repo storage.Repository, reconciler handlers.RunTrigger, history handlers.RunHistory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:     cfg,
		router:     chi.NewRouter(),
		logger:     logger.With("system", "api"),
		repo:       repo,
		reconciler: reconciler,
		history:    history,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	cors := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		cors.AllowedOrigins = s.config.AllowedOrigins
	}
	s.router.Use(middleware.CORS(cors))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))

	s.router.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: s.config.RateLimitRPS,
		Burst:             s.config.RateLimitBurst,
	}, s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.repo, s.reconciler, s.logger)
	s.router.Get("/health", healthHandler.ServeHTTP)

	txns := handlers.NewTransactionsHandler(s.repo, s.logger)
	runs := handlers.NewReconcileHandler(s.reconciler, s.history, s.logger)
	s.router.Route("/transactions", func(r chi.Router) {
		r.Get("/", txns.List)
		r.Post("/", txns.Create)
		r.Post("/reconcile", runs.Trigger)
		r.Get("/{id}", txns.Get)
		r.Put("/{id}", txns.Update)
		r.Delete("/{id}", txns.Delete)
		r.Post("/{id}/reset", txns.Reset)
	})

	rules := handlers.NewRulesHandler(s.repo, s.logger)
	s.router.Route("/rules", func(r chi.Router) {
		r.Get("/", rules.List)
		r.Post("/", rules.Create)
		r.Get("/{id}", rules.Get)
		r.Put("/{id}", rules.Update)
		r.Patch("/{id}", rules.Patch)
		r.Delete("/{id}", rules.Delete)
	})

	s.router.Get("/reconciliation/history", runs.History)
	s.router.Get("/reconciliation/history/{id}", runs.HistoryGet)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	writeTimeout := s.config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
