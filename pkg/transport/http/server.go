package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grothkopp/ainb/pkg/notebook"
	"github.com/grothkopp/ainb/pkg/observability"
	"github.com/grothkopp/ainb/pkg/provider"
	"github.com/grothkopp/ainb/pkg/transport"
)

// Deps wires the server to the execution core and the model plane.
// Runner, Cells, Events and the model plane fields are required;
// Expander and Ready are optional.
type Deps struct {
	// Runner drives code cell runs.
	Runner transport.Runner

	// Cells is the notebook cell table.
	Cells *notebook.Store

	// Events records cell state transitions and feeds the event stream.
	Events *notebook.Events

	// Catalog, Resolver and Manager form the model plane.
	Catalog  *provider.Catalog
	Resolver *provider.Resolver
	Manager  *provider.CatalogManager

	// Invokers builds provider clients for prompt runs and direct
	// completion calls.
	Invokers provider.InvokerFactory

	// Expander expands cell references in prompt sources before
	// invocation. Nil sends sources verbatim.
	Expander transport.Expander

	// Ready reports backend readiness for GET /readyz. Nil means the
	// server is ready as soon as it listens.
	Ready func(ctx context.Context) error
}

// Server serves the cell execution API over HTTP and manages the full
// lifecycle including startup and graceful shutdown.
type Server struct {
	deps       Deps
	inflight   *transport.InFlightRegistry
	mux        *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
	config     ServerConfig
	logger     *slog.Logger
	extraMW    []transport.Middleware

	// done is closed on shutdown so event streams end instead of
	// holding the graceful drain until its deadline.
	done      chan struct{}
	closeOnce sync.Once
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr              string
	MaxBodySize       int64
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	KeepAliveInterval time.Duration
	Logger            *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		MaxBodySize:       10 << 20, // 10 MB
		ShutdownTimeout:   30 * time.Second,
		KeepAliveInterval: 15 * time.Second,
		Logger:            slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithReadTimeout bounds reading a request including its body.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ReadTimeout = d }
}

// WithWriteTimeout bounds writing a response. The event stream handler
// clears its own deadline, so long-lived streams are unaffected.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.WriteTimeout = d }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithKeepAliveInterval sets the event stream keepalive period.
func WithKeepAliveInterval(d time.Duration) ServerOption {
	return func(s *Server) { s.config.KeepAliveInterval = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithMiddleware appends middleware between the default chain and the
// metrics layer. Authentication goes here.
func WithMiddleware(mw ...transport.Middleware) ServerOption {
	return func(s *Server) { s.extraMW = append(s.extraMW, mw...) }
}

// NewServer creates the API server. Default middleware (request ID,
// recovery, logging, metrics) is applied automatically.
func NewServer(deps Deps, opts ...ServerOption) (*Server, error) {
	switch {
	case deps.Runner == nil:
		return nil, fmt.Errorf("runner is required")
	case deps.Cells == nil:
		return nil, fmt.Errorf("cell store is required")
	case deps.Events == nil:
		return nil, fmt.Errorf("event feed is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("resolver is required")
	case deps.Manager == nil:
		return nil, fmt.Errorf("catalog manager is required")
	case deps.Invokers == nil:
		return nil, fmt.Errorf("invoker factory is required")
	}

	s := &Server{
		deps:     deps,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   DefaultServerConfig(),
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()

	mws := []transport.Middleware{
		transport.RequestID(),
		transport.Recovery(),
		transport.Logging(s.logger),
	}
	mws = append(mws, s.extraMW...)
	mws = append(mws, observability.MetricsMiddleware)
	s.handler = transport.Chain(mws...)(s.mux)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// The literal "events" segment takes precedence over the {id}
	// wildcard, so the stream route does not shadow cell ids.
	s.mux.HandleFunc("GET /v1/cells", s.handleListCells)
	s.mux.HandleFunc("GET /v1/cells/events", s.handleEvents)
	s.mux.HandleFunc("PUT /v1/cells/{id}", s.handlePutCell)
	s.mux.HandleFunc("GET /v1/cells/{id}", s.handleGetCell)
	s.mux.HandleFunc("DELETE /v1/cells/{id}", s.handleDeleteCell)
	s.mux.HandleFunc("POST /v1/cells/{id}/run", s.handleRunCell)
	s.mux.HandleFunc("POST /v1/cells/{id}/schedule", s.handleScheduleRun)
	s.mux.HandleFunc("POST /v1/cells/{id}/stop", s.handleStopCell)
	s.mux.HandleFunc("POST /v1/cells/stop-all", s.handleStopAll)
	s.mux.HandleFunc("GET /v1/cells/{id}/running", s.handleRunningState)

	s.mux.HandleFunc("GET /v1/models", s.handleListModels)
	s.mux.HandleFunc("POST /v1/models/refresh", s.handleRefreshModels)
	s.mux.HandleFunc("POST /v1/models/resolve", s.handleResolveModel)
	s.mux.HandleFunc("POST /v1/models/complete", s.handleComplete)
}

// Handler returns the assembled http.Handler including middleware. Use
// this to integrate with an http.Server or test with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received, then shuts down gracefully.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run starts the server and blocks until ctx is cancelled or the
// listener fails. On cancellation it waits for in-flight requests to
// complete within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// ServeOn starts the server on the given listener. Used for testing.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	s.closeOnce.Do(func() { close(s.done) })
	s.inflight.CancelAll()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	s.inflight.CancelAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("ok\n"))
}
