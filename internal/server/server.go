// Package server runs the ledger API listener and releases its backends
// (ledger store, Redis) once in-flight requests have drained.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ReleaseFunc closes one backend during shutdown.
type ReleaseFunc func(ctx context.Context) error

// Config holds listener settings.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type backend struct {
	name    string
	release ReleaseFunc
}

// Server wraps http.Server. While draining, Draining reports true so the
// readiness endpoint can take the instance out of rotation before the
// store connection goes away.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	backends []backend
	listener net.Listener
	ready    chan struct{}
	draining atomic.Bool
}

// New creates a Server for handler.
func New(handler http.Handler, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
		ready:           make(chan struct{}),
	}
}

// OnShutdown registers a backend to release after the listener stops.
// Backends are released in reverse registration order, so the store
// registered first is closed last.
func (s *Server) OnShutdown(name string, fn ReleaseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backends = append(s.backends, backend{name: name, release: fn})
}

// Draining reports whether shutdown has begun.
func (s *Server) Draining() bool {
	return s.draining.Load()
}

// Ready is closed once the listener accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once Ready is closed, and the configured
// address before that.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled or the listener fails, then drains
// requests and releases every registered backend.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("ledger api listening", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Join(fmt.Errorf("serve: %w", err), s.shutdown())
		}
		return s.shutdown()
	case <-ctx.Done():
		s.logger.Info("shutdown requested", slog.String("cause", context.Cause(ctx).Error()))
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	s.draining.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	s.httpServer.SetKeepAlivesEnabled(false)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("request drain incomplete", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("drain requests: %w", err))
	}

	s.mu.Lock()
	backends := append([]backend(nil), s.backends...)
	s.mu.Unlock()

	for i := len(backends) - 1; i >= 0; i-- {
		b := backends[i]
		if err := b.release(ctx); err != nil {
			s.logger.Error("backend release failed", slog.String("backend", b.name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("release %s: %w", b.name, err))
			continue
		}
		s.logger.Info("backend released", slog.String("backend", b.name))
	}

	return errors.Join(errs...)
}
