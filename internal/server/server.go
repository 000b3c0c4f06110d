package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/events"
	"github.com/nerrad567/tophat-core/internal/protocol"
	"github.com/nerrad567/tophat-core/internal/worker"
)

// DefaultSocketPath is where the daemon listens unless configured otherwise.
const DefaultSocketPath = "/srv/tophat/tophat.socket"

const (
	// socketMode lets local users and hat containers connect.
	socketMode = 0o776

	// socketDirMode is used when the socket directory has to be created.
	socketDirMode = 0o755

	acceptRetryDelay = 50 * time.Millisecond
)

// Config holds control socket settings.
type Config struct {
	// SocketPath is the unix socket path.
	SocketPath string

	// MaxMessageSize bounds request and response payloads in bytes.
	MaxMessageSize int

	// ReadTimeout bounds reading the request from an accepted connection.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		SocketPath:     DefaultSocketPath,
		MaxMessageSize: protocol.MaxPrimaryMessage,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// Logger defines the logging interface for the server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server accepts requests on the control socket and dispatches them to the
// worker pool.
type Server struct {
	cfg      Config
	registry *device.Registry
	catalog  *device.Catalog
	pool     *worker.Pool
	logger   Logger
	observer events.Observer

	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	abandon    chan struct{}
	started    time.Time
	closed     bool
	lifecycles []device.Lifecycle

	replies sync.WaitGroup

	accepted      atomic.Uint64
	malformed     atomic.Uint64
	invalidDevice atomic.Uint64
}

// New returns a server dispatching to registry's devices through pool.
// The server owns the pool's lifecycle from Start on.
func New(cfg Config, registry *device.Registry, catalog *device.Catalog, pool *worker.Pool) *Server {
	defaults := DefaultConfig()
	if cfg.SocketPath == "" {
		cfg.SocketPath = defaults.SocketPath
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		catalog:  catalog,
		pool:     pool,
		logger:   noopLogger{},
	}
	pool.OnComplete(s.taskCompleted)
	return s
}

// SetLogger sets the logger. Call before Start.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// SetObserver sets the observer that receives every finished request.
// Call before Start.
func (s *Server) SetObserver(obs events.Observer) {
	s.observer = obs
}

// SocketPath returns the control socket path.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// Start seals the registry, starts device background work and the worker
// pool, and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.listener != nil:
		return ErrAlreadyStarted
	}

	s.registry.Seal()

	if err := s.startDevices(ctx); err != nil {
		return err
	}
	if err := s.pool.Start(ctx); err != nil {
		s.stopDevices()
		return fmt.Errorf("starting worker pool: %w", err)
	}

	ln, err := s.listen()
	if err != nil {
		s.pool.Shutdown() //nolint:errcheck // nothing was submitted yet
		s.stopDevices()
		return err
	}

	s.listener = ln
	s.acceptDone = make(chan struct{})
	s.abandon = make(chan struct{})
	s.started = time.Now()

	go s.acceptLoop(ln, s.acceptDone)

	s.logger.Info("control socket listening",
		"path", s.cfg.SocketPath,
		"devices", s.registry.Len(),
	)
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), socketDirMode); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := protocol.RemoveStaleSocket(s.cfg.SocketPath); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, socketMode); err != nil {
		ln.Close()
		return nil, fmt.Errorf("setting socket mode: %w", err)
	}
	return ln, nil
}

// startDevices starts every device with background work. On failure the
// devices already started are stopped again.
func (s *Server) startDevices(ctx context.Context) error {
	for _, e := range s.registry.List() {
		lc, ok := e.Device.(device.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			s.stopDevices()
			return fmt.Errorf("starting device %s: %w", e.Device.Name(), err)
		}
		s.lifecycles = append(s.lifecycles, lc)
	}
	return nil
}

func (s *Server) stopDevices() {
	for i := len(s.lifecycles) - 1; i >= 0; i-- {
		if err := s.lifecycles[i].Stop(); err != nil {
			s.logger.Warn("stopping device failed", "error", err)
		}
	}
	s.lifecycles = nil
}

// Stop closes the listener and waits for the accept loop to exit.
// Commands already submitted keep running. Stop is idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	ln, done := s.listener, s.acceptDone
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return
	}
	ln.Close()
	<-done
	s.logger.Info("control socket no longer accepting")
}

// Close stops the server: it stops accepting, shuts the worker pool down,
// answers every client still waiting (CANCELLED for commands abandoned after
// the grace period), stops device background work and removes the socket.
// The pool's shutdown error, if any, is returned.
func (s *Server) Close() error {
	s.Stop()

	s.mu.Lock()
	if s.closed || s.abandon == nil {
		s.closed = true
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	abandon := s.abandon
	s.mu.Unlock()

	poolErr := s.pool.Shutdown()
	close(abandon)
	s.replies.Wait()

	s.mu.Lock()
	s.stopDevices()
	s.mu.Unlock()

	if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(poolErr, fmt.Errorf("removing socket: %w", err))
	}
	s.logger.Info("server stopped")
	return poolErr
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}
		s.accepted.Add(1)
		s.dispatch(conn)
	}
}

// dispatch runs the inline part of request handling. It either replies
// and closes conn, hands conn to a reply goroutine, or drops it.
func (s *Server) dispatch(conn net.Conn) {
	id := uuid.NewString()
	if pid, uid, ok := peerCredentials(conn); ok {
		s.logger.Debug("connection accepted", "request_id", id, "pid", pid, "uid", uid)
	}

	req, err := s.readRequest(conn)
	if err != nil {
		s.malformed.Add(1)
		s.logger.Warn("dropping malformed request", "request_id", id, "error", err)
		conn.Close()
		return
	}

	now := time.Now()
	entry, err := s.registry.Lookup(req.Device)
	if err != nil {
		s.invalidDevice.Add(1)
		s.logger.Info("request for unknown device", "request_id", id, "device", req.Device)
		s.reply(conn, id, protocol.Failure(protocol.StatusInvalidDevice))
		s.observe(events.Outcome{
			RequestID: id,
			Device:    req.Device,
			Command:   req.Command.Type,
			Status:    protocol.StatusInvalidDevice,
			Err:       err,
			Submitted: now,
			Finished:  now,
		})
		return
	}

	cmd, err := req.DecodeCommand(s.catalog)
	if err != nil {
		status := StatusFor(err)
		s.logger.Info("rejecting command",
			"request_id", id,
			"device", req.Device,
			"command", req.Command.Type,
			"status", status,
			"error", err,
		)
		s.reply(conn, id, protocol.Failure(status))
		s.observe(events.Outcome{
			RequestID: id,
			Device:    req.Device,
			Command:   req.Command.Type,
			Status:    status,
			Err:       err,
			Submitted: now,
			Finished:  time.Now(),
		})
		return
	}

	task := s.pool.Submit(worker.Job{ID: id, Device: entry.Device, Lock: entry.Lock, Command: cmd})

	if cmd.Kind() == device.KindAsync {
		// One zero-wait look: admission and queue failures are already
		// visible; anything later is only logged and observed.
		if done, _, err := task.Poll(); done && err != nil {
			s.reply(conn, id, protocol.Failure(StatusFor(err)))
			return
		}
		s.reply(conn, id, protocol.Response{Status: protocol.StatusSuccess})
		return
	}

	s.mu.Lock()
	abandon := s.abandon
	s.mu.Unlock()

	s.replies.Add(1)
	go s.awaitReply(conn, id, task, abandon)
}

func (s *Server) readRequest(conn net.Conn) (protocol.Request, error) {
	var req protocol.Request
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		return req, fmt.Errorf("setting read deadline: %w", err)
	}
	if err := protocol.ReadMessage(conn, &req, s.cfg.MaxMessageSize); err != nil {
		return req, err
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// awaitReply answers a sync request once its task completes, or with
// CANCELLED if the server closes while the command is still running.
func (s *Server) awaitReply(conn net.Conn, id string, task *worker.Task, abandon <-chan struct{}) {
	defer s.replies.Done()

	select {
	case <-task.Done():
	case <-abandon:
		select {
		case <-task.Done():
		default:
			s.logger.Warn("abandoning running command", "request_id", id, "device", task.DeviceName())
			s.reply(conn, id, protocol.Failure(protocol.StatusCancelled))
			return
		}
	}

	result, err := task.Outcome()
	if err != nil {
		s.reply(conn, id, protocol.Failure(StatusFor(err)))
		return
	}
	resp, err := protocol.Success(result)
	if err != nil {
		s.logger.Error("encoding result failed", "request_id", id, "error", err)
		resp = protocol.Failure(protocol.StatusUnknown)
	}
	s.reply(conn, id, resp)
}

// reply writes resp, half-closes and closes conn. A response too large for
// the channel is replaced with ERROR_UNKNOWN.
func (s *Server) reply(conn net.Conn, id string, resp protocol.Response) {
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		s.logger.Warn("setting write deadline failed", "request_id", id, "error", err)
		return
	}

	err := protocol.WriteMessage(conn, resp, s.cfg.MaxMessageSize)
	if errors.Is(err, protocol.ErrFrameTooLarge) {
		s.logger.Error("response too large", "request_id", id, "error", err)
		err = protocol.WriteMessage(conn, protocol.Failure(protocol.StatusUnknown), s.cfg.MaxMessageSize)
	}
	if err != nil {
		s.logger.Warn("writing response failed", "request_id", id, "error", err)
		return
	}

	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite() //nolint:errcheck // Close follows
	}
}

// taskCompleted runs on the pool for every finished task.
func (s *Server) taskCompleted(t *worker.Task) {
	_, err := t.Outcome()
	status := StatusFor(err)

	if err != nil {
		s.logger.Warn("command failed",
			"request_id", t.ID(),
			"device", t.DeviceName(),
			"command", t.Tag(),
			"kind", t.Kind(),
			"status", status,
			"error", err,
		)
	} else {
		s.logger.Debug("command completed",
			"request_id", t.ID(),
			"device", t.DeviceName(),
			"command", t.Tag(),
			"duration", t.Duration(),
		)
	}

	s.observe(events.FromTask(t.ID(), t, status))
}

func (s *Server) observe(o events.Outcome) {
	if s.observer != nil {
		s.observer.Observe(o)
	}
}

// Stats summarises server activity.
type Stats struct {
	Listening     bool          `json:"listening"`
	SocketPath    string        `json:"socket_path"`
	Uptime        time.Duration `json:"uptime"`
	Devices       int           `json:"devices"`
	Accepted      uint64        `json:"accepted"`
	Malformed     uint64        `json:"malformed"`
	InvalidDevice uint64        `json:"invalid_device"`
	Pool          worker.Stats  `json:"pool"`
}

// Stats returns current server statistics.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	listening := s.listener != nil
	started := s.started
	s.mu.Unlock()

	st := Stats{
		Listening:     listening,
		SocketPath:    s.cfg.SocketPath,
		Devices:       s.registry.Len(),
		Accepted:      s.accepted.Load(),
		Malformed:     s.malformed.Load(),
		InvalidDevice: s.invalidDevice.Load(),
		Pool:          s.pool.Stats(),
	}
	if listening {
		st.Uptime = time.Since(started)
	}
	return st
}
