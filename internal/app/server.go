package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mandalnilabja/maptoken/internal/config"
)

// Server wraps the HTTP server with its configuration
type Server struct {
	httpServer *http.Server
	config     *config.Config
	logger     *slog.Logger
}

// NewServer creates a new configured HTTP server instance
func NewServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Tile responses are small; the token exchange is bounded by the broker.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		config:     cfg,
		logger:     logger,
	}
}

// Start begins listening and serving HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("maptoken server starting", "addr", "http://localhost"+s.config.ServerPort)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
