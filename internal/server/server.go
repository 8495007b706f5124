// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/clothes-api/internal/config"
	"github.com/vyrodovalexey/clothes-api/internal/handler"
	"github.com/vyrodovalexey/clothes-api/internal/middleware"
	"github.com/vyrodovalexey/clothes-api/internal/store"
)

// MetricsPath is the Prometheus scrape endpoint.
const MetricsPath = "/metrics"

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	logger     *zap.Logger
	feed       *handler.ChangeFeed
}

// New creates a new Server instance. The feed is optional; when set it is
// served on /ws and should be the store's notifier.
func New(cfg *config.Config, logger *zap.Logger, recordStore store.Store, feed *handler.ChangeFeed) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
		feed:   feed,
	}

	s.setupMiddleware()
	s.setupRoutes(recordStore)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware() {
	// Probe and scrape traffic is logged at debug level and never limited.
	probes := middleware.NewPathSet(handler.HealthPath, handler.ReadyPath, MetricsPath)

	// First in the list = outermost
	chain := []middleware.Middleware{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
	}

	if s.config.Metrics.Enabled {
		chain = append(chain, middleware.Metrics())
	}

	chain = append(chain, middleware.Logging(s.logger, probes))

	if rl := s.config.RateLimit; rl.Enabled {
		limiter := middleware.NewIPRateLimiter(rl.RPS, rl.Burst, rl.IdleTTL)
		chain = append(chain, middleware.RateLimit(limiter, middleware.RateLimitConfig{
			TrustProxy: rl.TrustProxy,
			Exempt:     probes,
		}, s.logger))
	}

	chain = append(chain, middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		MaxAge:         s.config.CORS.MaxAge,
	}, s.logger))

	s.router.Use(mux.MiddlewareFunc(middleware.Chain(chain...)))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(recordStore store.Store) {
	restHandler := handler.NewRESTHandler(recordStore, s.logger)
	restHandler.RegisterRoutes(s.router)

	if s.feed != nil {
		s.feed.RegisterRoutes(s.router)
	}

	if s.config.Metrics.Enabled {
		s.router.Handle(MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}

	// mux runs middleware only for matched routes, so preflights need a route.
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}

	return s.Serve(listener)
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("starting server",
		zap.String("address", listener.Addr().String()),
		zap.Bool("metrics_enabled", s.config.Metrics.Enabled),
		zap.Bool("rate_limit_enabled", s.config.RateLimit.Enabled),
		zap.Bool("rate_limit_trust_proxy", s.config.RateLimit.TrustProxy),
		zap.Strings("allowed_origins", s.config.CORS.AllowedOrigins),
	)

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close all WebSocket connections first
	if s.feed != nil {
		s.feed.CloseAllConnections()
	}

	var result *multierror.Error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("server shutdown: %w", err))
		if closeErr := s.httpServer.Close(); closeErr != nil {
			result = multierror.Append(result, fmt.Errorf("server close: %w", closeErr))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}
