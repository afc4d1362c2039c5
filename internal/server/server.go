// Package server exposes the orchestrator over HTTP and streams progress
// events to WebSocket observers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
)

// DelegateLister lists registered delegates.
type DelegateLister interface {
	Descriptors() []core.Descriptor
}

// HealthReporter reports the breaker state of every generation service.
type HealthReporter interface {
	Health() []resilience.Health
}

// Config configures the listener.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Version         string
}

// Deps are the components the handlers call into. Metrics and Health are
// optional.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Delegates    DelegateLister
	Broadcaster  *events.Broadcaster
	Health       HealthReporter
	Metrics      http.Handler
}

type Server struct {
	orch        *orchestrator.Orchestrator
	delegates   DelegateLister
	broadcaster *events.Broadcaster
	health      HealthReporter
	metrics     http.Handler

	version         string
	origins         map[string]struct{}
	upgrader        websocket.Upgrader
	shutdownTimeout time.Duration
	server          *http.Server
}

func New(cfg Config, deps Deps) *Server {
	s := &Server{
		orch:            deps.Orchestrator,
		delegates:       deps.Delegates,
		broadcaster:     deps.Broadcaster,
		health:          deps.Health,
		metrics:         deps.Metrics,
		version:         cfg.Version,
		origins:         make(map[string]struct{}, len(cfg.AllowedOrigins)),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = struct{}{}
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkWSOrigin,
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.registerRoutes()
}

// Run serves until ctx is done, then shuts down gracefully. Observer
// connections are closed first since Shutdown does not track hijacked
// connections.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", ln.Addr().String())
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.broadcaster.Close()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
