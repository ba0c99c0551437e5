// Package server exposes the detector over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/server/handler"
	"github.com/alanyoungcy/arbdetector/internal/server/middleware"
	"github.com/alanyoungcy/arbdetector/internal/server/ws"
)

const (
	healthPath  = "/api/health"
	metricsPath = "/metrics"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Events, Hub
// and Metrics are optional.
type Handlers struct {
	Health    *handler.HealthHandler
	Market    *handler.MarketHandler
	Arbitrage *handler.ArbitrageHandler
	Matrix    *handler.MatrixHandler
	Settings  *handler.SettingsHandler
	Events    *handler.EventsHandler
	Hub       *ws.Hub
	Metrics   http.Handler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied: CORS, logging, rate limiting, then authentication.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+healthPath, handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/orderbooks", handlers.Market.OrderBooks)
	mux.HandleFunc("GET /api/crossrates", handlers.Market.CrossRates)

	mux.HandleFunc("GET /api/arbitrages", handlers.Arbitrage.List)
	mux.HandleFunc("GET /api/arbitrages/history", handlers.Arbitrage.History)
	mux.HandleFunc("GET /api/arbitrages/history/path", handlers.Arbitrage.FromHistory)
	mux.HandleFunc("GET /api/arbitrages/own", handlers.Arbitrage.OwnExchange)

	mux.HandleFunc("GET /api/matrix", handlers.Matrix.Get)
	mux.HandleFunc("GET /api/matrix/pairs", handlers.Matrix.AssetPairs)
	mux.HandleFunc("GET /api/matrix/history", handlers.Matrix.History)
	mux.HandleFunc("GET /api/matrix/history/timestamps", handlers.Matrix.HistoryTimestamps)
	mux.HandleFunc("GET /api/matrix/history/pairs", handlers.Matrix.HistoryAssetPairs)

	mux.HandleFunc("GET /api/settings", handlers.Settings.Get)
	mux.HandleFunc("PUT /api/settings", handlers.Settings.Update)

	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.Replay)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET "+metricsPath, handlers.Metrics)
	}
	if handlers.Hub != nil {
		mux.HandleFunc("GET /ws", handlers.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, healthPath, metricsPath)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger, healthPath, metricsPath)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: h,
		logger:  logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
