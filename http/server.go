// Package http serves loader metrics, dataset status and the event stream.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"segloader/logging"
	"segloader/monitoring"
	"segloader/pipeline"
)

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration

	// AllowedOrigins enables CORS for browser dashboards; "*" allows any.
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":9090",
		ShutdownTimeout: 5 * time.Second,
	}
}

type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer wires the handlers. loader and hub may be nil, in which case the
// routes depending on them are not registered.
func NewServer(config ServerConfig, mc *monitoring.MetricsCollector, hub *monitoring.Hub, loader *pipeline.Loader, logger *zap.Logger) *Server {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}
	logger = logging.OrNop(logger)

	mux := http.NewServeMux()
	RegisterHandlers(mux, &handlers{metrics: mc, hub: hub, loader: loader})

	middlewares := []Middleware{
		LoggerMiddleware(logger),
		RecoveryMiddleware(logger),
	}
	if len(config.AllowedOrigins) > 0 {
		middlewares = append(middlewares, CORSMiddleware(config.AllowedOrigins))
	}
	chain := Chain(middlewares...)

	return &Server{
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           chain(mux),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Handler exposes the routed handler chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting metrics server", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down metrics server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the bound address once Start is listening, the configured one
// before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}
