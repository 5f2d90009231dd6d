package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/server/handler"
	"github.com/seafarergames/tradewinds/internal/server/middleware"
	"github.com/seafarergames/tradewinds/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// RateLimit caps requests per client IP per RateLimitWindow. Only
	// applied when a RateLimiter is provided to NewServer.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Market  *handler.MarketHandler
	Trade   *handler.TradeHandler
	Routes  *handler.RouteHandler
	Cycle   *handler.CycleHandler
	Finance *handler.FinanceHandler
}

// Server is the HTTP + WebSocket API surface of the trading economy.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, logging, CORS) and attaches the
// WebSocket hub. limiter may be nil, in which case rate limiting is skipped.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("GET /api/market/items", handlers.Market.ListItems)
	mux.HandleFunc("GET /api/market/items/{id}", handlers.Market.GetItem)
	mux.HandleFunc("GET /api/market/items/{id}/history", handlers.Market.GetHistory)
	mux.HandleFunc("GET /api/market/condition", handlers.Market.GetCondition)

	// Trade endpoints.
	mux.HandleFunc("POST /api/trade/buy", handlers.Trade.Buy)
	mux.HandleFunc("POST /api/trade/sell", handlers.Trade.Sell)
	mux.HandleFunc("GET /api/trade/transactions", handlers.Trade.ListTransactions)

	// Trade-route endpoints.
	mux.HandleFunc("GET /api/routes", handlers.Routes.ListRoutes)
	mux.HandleFunc("POST /api/routes", handlers.Routes.CreateRoute)
	mux.HandleFunc("DELETE /api/routes/{id}", handlers.Routes.DeleteRoute)

	// Revenue-cycle endpoints.
	mux.HandleFunc("POST /api/cycle/run", handlers.Cycle.RunCycle)
	mux.HandleFunc("GET /api/cycle/status", handlers.Cycle.GetStatus)
	mux.HandleFunc("GET /api/cycle/history", handlers.Cycle.GetHistory)

	// Finance endpoints.
	mux.HandleFunc("GET /api/finance/summary", handlers.Finance.GetSummary)
	mux.HandleFunc("POST /api/finance/loans", handlers.Finance.ApplyForLoan)
	mux.HandleFunc("POST /api/finance/loans/{id}/payments", handlers.Finance.MakeLoanPayment)
	mux.HandleFunc("GET /api/finance/records", handlers.Finance.ListRecords)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply per-IP rate limiting when a limiter is available.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
