// Package nfc implements the NFC tag reader device type.
//
// A background reader pulls tag payloads from the driver into a bounded
// queue. The synchronous nfc.read_data command takes the oldest queued
// payload, waiting up to an optional timeout.
package nfc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
)

// TagRead is the wire tag of ReadData.
const TagRead device.Tag = "nfc.read_data"

// QueueSize bounds payloads read but not yet collected.
const QueueSize = 64

// DefaultPollInterval is the pause after a failed driver read.
const DefaultPollInterval = 2 * time.Second

var (
	// ErrReadTimeout is returned when no tag arrives before the timeout.
	ErrReadTimeout = errors.New("nfc: no tag before timeout")

	// ErrSourceClosed is returned by sources that have no more tags.
	ErrSourceClosed = errors.New("nfc: source closed")
)

// TagSource is the reader's driver contract. ReadTag blocks until a tag is
// presented and returns its user data.
type TagSource interface {
	ReadTag(ctx context.Context) ([]byte, error)
}

// Logger defines the logging interface for the background reader.
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

// Reader is an NFC reader device.
type Reader struct {
	device.Base
	source       TagSource
	pollInterval time.Duration
	logger       Logger

	reads chan []byte

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Tags is the capability set of a reader.
func Tags() device.TagSet {
	return device.NewTagSet(TagRead)
}

// New creates a reader called name on source. A poll interval of zero or
// less selects DefaultPollInterval.
func New(name string, source TagSource, pollInterval time.Duration) *Reader {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Reader{
		Base:         device.NewBase(name, Tags()),
		source:       source,
		pollInterval: pollInterval,
		logger:       noopLogger{},
		reads:        make(chan []byte, QueueSize),
	}
}

// SetLogger sets the logger for the background reader.
func (r *Reader) SetLogger(logger Logger) {
	r.logger = logger
}

// Run executes cmd against the reader.
func (r *Reader) Run(ctx context.Context, cmd device.Command) (any, error) {
	return cmd.Run(ctx, r)
}

// Start launches the background reader.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return fmt.Errorf("nfc reader %s already started", r.Name())
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)

	r.logger.Info("nfc reader started", "device", r.Name())
	return nil
}

// Stop halts the background reader and waits for it to exit.
func (r *Reader) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (r *Reader) loop(ctx context.Context) {
	defer close(r.done)

	for {
		data, err := r.source.ReadTag(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrSourceClosed) {
				r.logger.Info("nfc source closed", "device", r.Name())
				return
			}
			r.logger.Warn("nfc read failed", "device", r.Name(), "error", err)
			if device.Sleep(ctx, r.pollInterval) != nil {
				return
			}
			continue
		}

		select {
		case r.reads <- data:
			r.logger.Debug("nfc tag queued", "device", r.Name(), "bytes", len(data))
		case <-ctx.Done():
			return
		}
	}
}

// read takes the oldest queued payload. A timeout of zero or less waits
// until ctx is done.
func (r *Reader) read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case data := <-r.reads:
		return data, nil
	case <-expired:
		return nil, ErrReadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadData returns the next tag payload.
type ReadData struct {
	// Timeout in seconds. Absent or zero waits indefinitely.
	Timeout float64 `cbor:"timeout,omitempty"`
}

func (c *ReadData) Tag() device.Tag   { return TagRead }
func (c *ReadData) Kind() device.Kind { return device.KindSync }

func (c *ReadData) Validate() error {
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

func (c *ReadData) Run(ctx context.Context, d device.Device) (any, error) {
	r, err := device.As[*Reader](d, c)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, device.Seconds(c.Timeout))
}

// RegisterCommands adds the NFC commands to catalog.
func RegisterCommands(catalog *device.Catalog) error {
	return catalog.Register(
		func() device.Command { return &ReadData{} },
	)
}

// MemorySource delivers payloads pushed by the caller.
type MemorySource struct {
	tags chan []byte
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{tags: make(chan []byte, QueueSize)}
}

// Present queues a tag payload as if a tag were held to the reader.
func (s *MemorySource) Present(data []byte) {
	s.tags <- data
}

// ReadTag returns the next presented payload.
func (s *MemorySource) ReadTag(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.tags:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LineSource treats each line of a stream as one tag payload.
type LineSource struct {
	lines chan []byte
	err   chan error
}

// NewLineSource starts scanning rd for lines.
func NewLineSource(rd io.Reader) *LineSource {
	s := &LineSource{lines: make(chan []byte), err: make(chan error, 1)}
	go func() {
		scanner := bufio.NewScanner(rd)
		for scanner.Scan() {
			s.lines <- append([]byte(nil), scanner.Bytes()...)
		}
		if err := scanner.Err(); err != nil {
			s.err <- err
		} else {
			s.err <- ErrSourceClosed
		}
	}()
	return s
}

// ReadTag returns the next line.
func (s *LineSource) ReadTag(ctx context.Context) ([]byte, error) {
	select {
	case line := <-s.lines:
		return line, nil
	case err := <-s.err:
		s.err <- err
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
