// Package api runs the eec HTTP services.
//
// Each service (auth, entity, cluster, user, mention) listens on its own
// port with its own chi router. All services of one process share a single
// workspace, so they see each other's changes through the same in-memory
// repositories and other processes' changes through the snapshot files.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eecworkbench/eec/internal/logger"
)

// ShutdownTimeout bounds the graceful drain of one server.
const ShutdownTimeout = 5 * time.Second

// Server provides an HTTP server for one service.
//
// The server supports graceful shutdown: in-flight requests finish, which
// lets their request guards persist and release the data locks.
type Server struct {
	name         string
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer creates a server named name on addr. The server is created in
// a stopped state. Call Start() to begin serving requests.
func NewServer(name, addr string, handler http.Handler, cfg ServerConfig) *Server {
	return &Server{
		name: name,
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves until ctx is cancelled or the listener fails.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the server fails to start or shutdown encounters an error
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server listening", logger.KeyService, s.name, "addr", s.server.Addr)

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Server shutdown signal received", logger.KeyService, s.name)
		// the serve context is already cancelled; drain on a fresh one
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("%s server failed: %w", s.name, err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("%s server shutdown error: %w", s.name, err)
			logger.Error("Server shutdown error", logger.KeyService, s.name, logger.Err(err))
		} else {
			logger.Info("Server stopped gracefully", logger.KeyService, s.name)
		}
	})
	return shutdownErr
}

// Name returns the service name.
func (s *Server) Name() string { return s.name }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.server.Addr }
