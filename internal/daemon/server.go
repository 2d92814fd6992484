package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/dmelo/convd/internal/api"
	"github.com/dmelo/convd/internal/config"
)

// Server manages the HTTP server lifecycle for the daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the configured listen
// address.
func NewServer(cfg *config.Config, apiServer *api.Server, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	return &Server{
		httpServer: &http.Server{Handler: apiServer.Router()},
		listener:   listener,
		addr:       listener.Addr().String(),
		logger:     logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.addr))
	if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}
}
