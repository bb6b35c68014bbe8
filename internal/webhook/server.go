package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/strikegw/internal/metrics"
	"github.com/mattjoyce/strikegw/internal/secret"
)

// Pipeline composes the inbound stages: authenticate, then parse and dispatch.
// It does not depend on any router and can be mounted on any http.ServeMux.
func Pipeline(auth *Authenticator, dispatcher *Dispatcher) http.Handler {
	return auth.Middleware(dispatcher)
}

// Server represents the webhook HTTP server.
type Server struct {
	config     Config
	auth       *Authenticator
	dispatcher *Dispatcher
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new webhook server instance. Verified entity identifiers are
// sent on events; ledger may be nil.
func New(config Config, sec secret.Secret, events chan<- string, ledger Ledger, logger *slog.Logger) *Server {
	// Apply defaults
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = DefaultSubmitTimeout
	}
	if config.Metrics.Enabled && config.Metrics.Path == "" {
		config.Metrics.Path = DefaultMetricsPath
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:     config,
		auth:       NewAuthenticator(sec, config.SignatureHeader, config.MaxBodySize, logger),
		dispatcher: NewDispatcher(events, config.SubmitTimeout, ledger, logger),
		logger:     logger,
	}
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10*time.Second + s.config.SubmitTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.config.Metrics.Enabled {
		r.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	r.Method(http.MethodPost, s.config.Path, Pipeline(s.auth, s.dispatcher))

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == s.config.Path {
			metrics.WebhookRequests.WithLabelValues(strconv.Itoa(ww.Status())).Inc()
		}

		// Log request (no body content for security)
		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
