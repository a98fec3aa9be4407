package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/NickAwrist/dynamic-pr-templates/internal/config"
	"github.com/NickAwrist/dynamic-pr-templates/internal/handlers"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/middleware"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	middleware *middleware.Middleware
	log        *logger.Logger
}

// New creates a new HTTP server
func New(cfg *config.Config, handler *handlers.Handler, log *logger.Logger) *Server {
	mw := middleware.New(log, middleware.Options{
		RequestsPerMinute: cfg.Server.RateLimitPerMinute,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})
	mw.SetAPIKeys(cfg.Security.APIKeys)
	mw.ExemptSignedDeliveries(middleware.SignedDeliveries{
		Path:         "/webhook/github",
		Header:       handlers.HeaderSignature,
		MaxBodyBytes: handler.WebhookBodyLimit(),
		Verifier:     handler,
	})

	return &Server{
		handler:    handler,
		middleware: mw,
		log:        log,
	}
}

// Routes returns the routed handler wrapped in the middleware chain
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/health", s.handler.HealthCheck)
	mux.HandleFunc("/webhook/github", s.handler.GitHubWebhook)
	mux.HandleFunc("/outcomes", s.handler.Outcomes)

	// Apply middleware chain
	handler := s.middleware.Recovery(mux)
	handler = s.middleware.Logging(handler)
	handler = s.middleware.Security(handler)
	handler = s.middleware.RateLimit(handler)
	handler = s.middleware.APIKeyAuth(handler)

	return handler
}

// Start starts the HTTP server
func (s *Server) Start(cfg *config.Config) error {
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	s.log.Infof("HTTP server listening on %s", cfg.Server.Address())

	// Start server in a goroutine
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("HTTP server error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.log.Info("HTTP server shutdown complete")
	return nil
}
