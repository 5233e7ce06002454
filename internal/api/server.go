// Package api exposes the supplemental read-only HTTP surface described
// in SPEC_FULL.md §4.8: GET /user/{addr} and GET /position/{addr}, both
// thin wrappers over query.Facade. There is no push/websocket surface —
// that is explicitly out of this service's scope.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/scale-protocol/robot/internal/query"
)

// Server runs the read-only query HTTP surface.
type Server struct {
	addr     string
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds a Server backed by facade, listening on ip:port.
func NewServer(ip string, port int, facade *query.Facade, logger *slog.Logger) *Server {
	handlers := NewHandlers(facade, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /user/{addr}", handlers.HandleGetUser)
	mux.HandleFunc("GET /position/{addr}", handlers.HandleGetPositions)

	addr := fmt.Sprintf("%s:%d", ip, port)
	return &Server{
		addr:     addr,
		handlers: handlers,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "api-server"),
	}
}

// Start blocks until the server is closed, returning nil on a clean Stop.
func (s *Server) Start() error {
	s.logger.Info("query server starting", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping query server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
