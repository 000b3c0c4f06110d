package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/protocol"
)

// DefaultReadTimeout bounds reading one envelope from a connection.
const DefaultReadTimeout = 2 * time.Second

// socketMode lets the daemon's group and other local users reach the socket.
const socketMode = 0o776

const acceptRetryDelay = 50 * time.Millisecond

// Logger defines the logging interface for OwnerServer.
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

// OwnerServer serves one real device on the secondary channel.
//
// Each accepted connection carries one Envelope. Commands run in their own
// goroutine under the device's lock, so the accept loop never waits on a
// command.
type OwnerServer struct {
	dev         device.Device
	lock        *device.Lock
	catalog     *device.Catalog
	socketPath  string
	readTimeout time.Duration
	logger      Logger

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewOwnerServer returns a server for dev on socketPath. Only tags
// registered in catalog are accepted.
func NewOwnerServer(dev device.Device, catalog *device.Catalog, socketPath string) *OwnerServer {
	return &OwnerServer{
		dev:         dev,
		lock:        device.NewLock(),
		catalog:     catalog,
		socketPath:  socketPath,
		readTimeout: DefaultReadTimeout,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the server.
func (s *OwnerServer) SetLogger(logger Logger) {
	s.logger = logger
}

// SocketPath returns the listening path.
func (s *OwnerServer) SocketPath() string {
	return s.socketPath
}

// Start replaces any stale socket, starts the device's background work if
// it has any, and begins accepting connections.
func (s *OwnerServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}

	if err := protocol.RemoveStaleSocket(s.socketPath); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	if lc, ok := s.dev.(device.Lifecycle); ok {
		if err := lc.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("starting %s: %w", s.dev.Name(), err)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		cancel()
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, socketMode); err != nil {
		cancel()
		ln.Close()
		return fmt.Errorf("setting socket mode: %w", err)
	}

	s.listener = ln
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	s.logger.Info("owner server listening",
		"device", s.dev.Name(),
		"socket", s.socketPath,
	)
	return nil
}

// Close stops accepting, cancels running commands, waits for them, and
// removes the socket.
func (s *OwnerServer) Close() error {
	s.mu.Lock()
	ln, cancel := s.listener, s.cancel
	s.listener, s.cancel = nil, nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	cancel()
	ln.Close()
	s.wg.Wait()

	if lc, ok := s.dev.(device.Lifecycle); ok {
		if err := lc.Stop(); err != nil {
			s.logger.Warn("stopping device failed", "device", s.dev.Name(), "error", err)
		}
	}

	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing socket: %w", err)
	}
	s.logger.Info("owner server stopped", "device", s.dev.Name())
	return nil
}

func (s *OwnerServer) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		cmd, err := s.receive(conn)
		if errors.Is(err, io.EOF) {
			// Liveness dial from Probe; nothing was sent.
			continue
		}
		if err != nil {
			s.logger.Warn("dropping envelope", "device", s.dev.Name(), "error", err)
			continue
		}

		s.wg.Add(1)
		go s.execute(ctx, cmd)
	}
}

func (s *OwnerServer) receive(conn net.Conn) (device.Command, error) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	var env protocol.Envelope
	if err := protocol.ReadMessage(conn, &env, protocol.MaxSecondaryMessage); err != nil {
		return nil, err
	}
	return env.Command(s.catalog)
}

func (s *OwnerServer) execute(ctx context.Context, cmd device.Command) {
	defer s.wg.Done()

	start := time.Now()
	if _, err := device.Execute(ctx, s.dev, s.lock, cmd); err != nil {
		s.logger.Error("command failed",
			"device", s.dev.Name(),
			"command", cmd.Tag(),
			"error", err,
		)
		return
	}
	s.logger.Debug("command completed",
		"device", s.dev.Name(),
		"command", cmd.Tag(),
		"duration", time.Since(start),
	)
}
