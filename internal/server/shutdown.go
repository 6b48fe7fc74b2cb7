// Package server provides process lifecycle management: ordered resource
// cleanup, signal handling and the metrics HTTP endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownManager closes registered resources once, in reverse order of
// registration.
type ShutdownManager struct {
	timeout time.Duration
	logger  zerolog.Logger

	closers   []io.Closer
	closersMu sync.Mutex

	once sync.Once
	err  error
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// Timeout bounds the whole close sequence.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{Timeout: 30 * time.Second}
}

// NewShutdownManager creates a shutdown manager.
func NewShutdownManager(config ShutdownConfig, logger zerolog.Logger) *ShutdownManager {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &ShutdownManager{
		timeout: config.Timeout,
		logger:  logger.With().Str("component", "shutdown").Logger(),
	}
}

// RegisterCloser adds a closer to be called during shutdown.
// Closers are called in reverse order of registration (LIFO).
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// Shutdown closes every registered resource and returns the first error.
// Later calls return the result of the first.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.once.Do(func() {
		sm.logger.Debug().Str("reason", reason).Msg("shutting down")

		ctx, cancel := context.WithTimeout(ctx, sm.timeout)
		defer cancel()

		sm.closersMu.Lock()
		closers := make([]io.Closer, len(sm.closers))
		copy(closers, sm.closers)
		sm.closersMu.Unlock()

		done := make(chan error, 1)
		go func() {
			var firstErr error
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i].Close(); err != nil {
					sm.logger.Error().Err(err).Msg("close failed")
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			done <- firstErr
		}()

		select {
		case sm.err = <-done:
		case <-ctx.Done():
			sm.err = fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	})
	return sm.err
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// GracefulHTTPServer serves a handler in the background and drains it on Close.
type GracefulHTTPServer struct {
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
	errCh    chan error
}

// NewMetricsServer creates a server exposing h under /metrics.
func NewMetricsServer(addr string, h http.Handler, logger zerolog.Logger) *GracefulHTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return &GracefulHTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "http").Logger(),
		errCh:  make(chan error, 1),
	}
}

// Start binds the listen address and serves in a goroutine. Bind errors are
// returned directly.
func (gs *GracefulHTTPServer) Start() error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", gs.server.Addr, err)
	}
	gs.listener = ln
	gs.logger.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	go func() {
		err := gs.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			gs.logger.Error().Err(err).Msg("http server error")
			gs.errCh <- err
		}
		close(gs.errCh)
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (gs *GracefulHTTPServer) Addr() string {
	if gs.listener != nil {
		return gs.listener.Addr().String()
	}
	return gs.server.Addr
}

// Close drains in-flight requests.
func (gs *GracefulHTTPServer) Close() error {
	if gs.listener == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gs.server.Shutdown(ctx); err != nil {
		return err
	}
	return <-gs.errCh
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
