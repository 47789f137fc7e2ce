package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/logging"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Listener timeouts. Scrapes and health probes are small and fast.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.MetricsConfig
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Checks  map[string]Check // keyed by the name reported in /health
	Version string
}

// Server is the health and metrics HTTP server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg      config.MetricsConfig
	logger   *logging.Logger
	metrics  *metrics.Metrics
	checks   map[string]Check
	version  string
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("metrics are required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		checks:  deps.Checks,
		version: deps.Version,
	}, nil
}

// Start binds the listener and serves requests in a background goroutine.
//
// Binding happens synchronously so a port conflict is reported here, as a
// startup error, rather than later in the log.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
