package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ReadHeaderTimeout bounds how long a client may take to send headers.
	// Default: 5s
	ReadHeaderTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown before connections are closed.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// GracefulServer wraps http.Server with context-driven shutdown.
type GracefulServer struct {
	server   *http.Server
	cfg      ServerConfig
	logger   Logger
	address  string
	listener net.Listener

	mu             sync.Mutex
	beforeShutdown []func()
	isShutdown     bool
}

// NewGracefulServer creates a server for handler bound to address.
func NewGracefulServer(handler http.Handler, address string, cfg ServerConfig, logger Logger) *GracefulServer {
	def := DefaultServerConfig()
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	return &GracefulServer{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		cfg:     cfg,
		logger:  logger,
		address: address,
	}
}

// BeforeShutdown registers fn to run, in registration order, when shutdown
// begins and before connections are drained.
func (s *GracefulServer) BeforeShutdown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeShutdown = append(s.beforeShutdown, fn)
}

// Listen binds the listener. It is called by Start when needed.
func (s *GracefulServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns nil after a clean shutdown.
func (s *GracefulServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.info("http_server_started", "address", s.Address())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.info("http_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		return s.Shutdown()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// Shutdown runs the BeforeShutdown hooks and drains connections within
// ShutdownTimeout, closing them if the timeout passes. It is idempotent.
func (s *GracefulServer) Shutdown() error {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		return nil
	}
	s.isShutdown = true
	hooks := s.beforeShutdown
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warn("http_forced_stop", "error", err.Error())
		}
		return s.server.Close()
	}
	s.info("http_graceful_stop_completed")
	return nil
}

// Address returns the bound address, or the configured one before Listen.
func (s *GracefulServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

func (s *GracefulServer) info(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Info(msg, keysAndValues...)
	}
}
