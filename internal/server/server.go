// Package server exposes the engine's read views, the breaker controls and
// the Prometheus metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/server/handler"
	"github.com/alanyoungcy/binarymm/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// CORSMethods are the methods a browser may preflight. Empty means
	// the methods the routes serve.
	CORSMethods []string
	CORSMaxAge  time.Duration
	// PublicPaths skip authentication and request logging. Empty means
	// health and metrics.
	PublicPaths []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit caps state-changing requests per client IP per RateWindow.
	// Zero disables the limit.
	RateLimit  int
	RateWindow time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost}
	defaultPublicPaths = []string{"/api/health", "/metrics"}
)

func (c Config) cors() middleware.CORSConfig {
	methods := c.CORSMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	return middleware.CORSConfig{
		Origins: c.CORSOrigins,
		Methods: methods,
		Headers: []string{"Content-Type", "Authorization", "X-API-Key"},
		MaxAge:  c.CORSMaxAge,
	}
}

func (c Config) publicPaths() []string {
	if len(c.PublicPaths) == 0 {
		return defaultPublicPaths
	}
	return c.PublicPaths
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// A nil handler leaves its routes unregistered.
type Handlers struct {
	Health    *handler.HealthHandler
	Risk      *handler.RiskHandler
	Portfolio *handler.PortfolioHandler
	Market    *handler.MarketHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, auth, rate limit). limiter may be
// nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and metrics are public.
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	if handlers.Risk != nil {
		mux.HandleFunc("GET /api/status", handlers.Risk.GetStatus)
		mux.HandleFunc("GET /api/alerts", handlers.Risk.ListAlerts)
		mux.HandleFunc("POST /api/risk/emergency-stop", handlers.Risk.EmergencyStop)
		mux.HandleFunc("POST /api/risk/reset", handlers.Risk.Reset)
	}

	if handlers.Portfolio != nil {
		mux.HandleFunc("GET /api/portfolio", handlers.Portfolio.GetPortfolio)
		mux.HandleFunc("GET /api/positions/{id}", handlers.Portfolio.GetPosition)
	}

	if handlers.Market != nil {
		mux.HandleFunc("GET /api/opportunities", handlers.Market.ListOpportunities)
		mux.HandleFunc("GET /api/spread/stats", handlers.Market.GetSpreadStats)
		mux.HandleFunc("GET /api/decisions", handlers.Market.ListDecisions)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	h = middleware.Auth(cfg.APIKey, cfg.publicPaths()...)(h)
	h = middleware.Logging(logger, cfg.publicPaths()...)(h)
	h = middleware.CORS(cfg.cors())(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down with a 10 second grace
// period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
