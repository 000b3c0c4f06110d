package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/tophat-core/internal/audit"
	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/infrastructure/config"
	"github.com/nerrad567/tophat-core/internal/infrastructure/logging"
	"github.com/nerrad567/tophat-core/internal/process"
	"github.com/nerrad567/tophat-core/internal/sandbox"
	"github.com/nerrad567/tophat-core/internal/server"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

var (
	errNotListening = errors.New("control socket not listening")

	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("api: server already started")
)

// ControlServer reports the control socket's statistics.
type ControlServer interface {
	Stats() server.Stats
}

// HatLister reports hat container state.
type HatLister interface {
	Status() []sandbox.HatStatus
}

// OwnerLister reports supervised owner processes.
type OwnerLister interface {
	Stats() []process.Stats
}

// HealthChecker is implemented by the optional MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Database is implemented by the optional audit database.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// DropCounter reports events discarded by the observer queue.
type DropCounter interface {
	Dropped() uint64
}

// Deps holds the dependencies required by the API server. Only Config,
// Logger and Registry are required; handlers for missing optional
// dependencies answer 503 or omit the section.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Control  ControlServer
	Hats     HatLister
	Owners   OwnerLister
	Audit    audit.Repository
	DB       Database
	MQTT     HealthChecker
	Influx   HealthChecker
	Events   DropCounter
	Version  string
}

// Server is the HTTP status API.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry *device.Registry
	control  ControlServer
	hats     HatLister
	owners   OwnerLister
	audit    audit.Repository
	db       Database
	mqtt     HealthChecker
	influx   HealthChecker
	events   DropCounter
	version  string

	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		control:   deps.Control,
		hats:      deps.Hats,
		owners:    deps.Owners,
		audit:     deps.Audit,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		events:    deps.Events,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the configured address and serves in the background.
//
// The listener is bound before Start returns, so a port already in use
// is reported here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}(s.server, s.done)

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to gracefulShutdownTimeout for in-flight requests to
// complete, then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := srv.Shutdown(ctx)
	<-done
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
