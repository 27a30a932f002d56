package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/server/handler"
	"github.com/alanyoungcy/marketcore/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	RateLimit   int // requests per RateWindow per caller; 0 disables
	RateWindow  time.Duration
	TrustProxy  bool
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Resolutions *handler.ResolutionHandler
	Disputes    *handler.DisputeHandler
	Claims      *handler.ClaimHandler
	Evidence    *handler.EvidenceHandler
	Audit       *handler.AuditHandler
	Events      *handler.EventsHandler
}

// Auth bundles what the authentication middleware needs.
type Auth struct {
	Tokens     middleware.TokenVerifier
	Principals middleware.PrincipalResolver
	Limiter    domain.RateLimiter
}

// Server is the HTTP API of the market core.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain CORS, logging, auth, rate limit applied around it.
func NewServer(cfg Config, handlers Handlers, auth Auth, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Markets and prices.
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/resolutions", handlers.Resolutions.History)
	mux.HandleFunc("GET /api/options/{id}/price", handlers.Markets.GetPrice)
	mux.HandleFunc("GET /api/options/{id}/cost", handlers.Markets.GetCost)
	mux.HandleFunc("POST /api/fills", handlers.Markets.PostFill)

	// Resolution lifecycle.
	mux.HandleFunc("POST /api/resolutions", handlers.Resolutions.Submit)
	mux.HandleFunc("POST /api/resolutions/opinion", handlers.Resolutions.ResolveByPrice)
	mux.HandleFunc("POST /api/disputes", handlers.Disputes.Raise)
	mux.HandleFunc("GET /api/disputes", handlers.Disputes.List)
	mux.HandleFunc("POST /api/claims/positions/{id}", handlers.Claims.ClaimPosition)
	mux.HandleFunc("POST /api/claims/liquidity/{id}", handlers.Claims.ClaimLiquidity)

	// Audit replay.
	mux.HandleFunc("GET /api/evidence/{hash}", handlers.Evidence.Get)
	mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	mux.HandleFunc("GET /api/events", handlers.Events.List)

	var h http.Handler = mux
	h = middleware.RateLimit(auth.Limiter, cfg.RateLimit, cfg.RateWindow, cfg.TrustProxy, logger)(h)
	h = middleware.Auth(auth.Tokens, auth.Principals)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
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
