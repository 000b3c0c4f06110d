package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices/nfc"
	"github.com/nerrad567/tophat-core/internal/devices/pixels"
	"github.com/nerrad567/tophat-core/internal/devices/printer"
	"github.com/nerrad567/tophat-core/internal/devices/switches"
	"github.com/nerrad567/tophat-core/internal/events"
	"github.com/nerrad567/tophat-core/internal/protocol"
	"github.com/nerrad567/tophat-core/internal/proxy"
	"github.com/nerrad567/tophat-core/internal/worker"
)

// benchDevice runs hold commands and records how many overlap.
type benchDevice struct {
	device.Base
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newBenchDevice(name string) *benchDevice {
	return &benchDevice{Base: device.NewBase(name, device.NewTagSet(tagHold, tagStubborn))}
}

func (d *benchDevice) Run(ctx context.Context, cmd device.Command) (any, error) {
	return cmd.Run(ctx, d)
}

const (
	tagHold     device.Tag = "bench.hold"
	tagStubborn device.Tag = "bench.stubborn"
)

// hold occupies the device for Millis and returns the device name.
type hold struct {
	Millis int `cbor:"millis"`
}

func (*hold) Tag() device.Tag   { return tagHold }
func (*hold) Kind() device.Kind { return device.KindSync }
func (c *hold) Run(ctx context.Context, d device.Device) (any, error) {
	b, err := device.As[*benchDevice](d, c)
	if err != nil {
		return nil, err
	}
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if err := device.Sleep(ctx, time.Duration(c.Millis)*time.Millisecond); err != nil {
		return nil, err
	}
	return b.Name(), nil
}

// stubborn ignores cancellation.
type stubborn struct {
	Millis int `cbor:"millis"`
}

func (*stubborn) Tag() device.Tag   { return tagStubborn }
func (*stubborn) Kind() device.Kind { return device.KindSync }
func (c *stubborn) Run(context.Context, device.Device) (any, error) {
	time.Sleep(time.Duration(c.Millis) * time.Millisecond)
	return "late", nil
}

func testCatalog(t *testing.T) *device.Catalog {
	t.Helper()
	catalog := device.NewCatalog()
	for _, register := range []func(*device.Catalog) error{
		printer.RegisterCommands,
		switches.RegisterCommands,
		pixels.RegisterCommands,
		nfc.RegisterCommands,
		func(c *device.Catalog) error {
			return c.Register(
				func() device.Command { return &hold{} },
				func() device.Command { return &stubborn{} },
			)
		},
	} {
		if err := register(catalog); err != nil {
			t.Fatalf("registering commands: %v", err)
		}
	}
	return catalog
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tophat")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

type recorder struct {
	mu       sync.Mutex
	outcomes []events.Outcome
}

func (r *recorder) Observe(o events.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *recorder) find(status protocol.Status) (events.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.Status == status {
			return o, true
		}
	}
	return events.Outcome{}, false
}

type harness struct {
	srv  *Server
	path string
	obs  *recorder
}

func startServer(t *testing.T, poolCfg worker.Config, devices ...device.Device) *harness {
	t.Helper()

	registry := device.NewRegistry()
	for _, d := range devices {
		if err := registry.Register(d); err != nil {
			t.Fatalf("Register(%s) error = %v", d.Name(), err)
		}
	}

	path := filepath.Join(tempDir(t), "tophat.socket")
	srv := New(Config{SocketPath: path}, registry, testCatalog(t), worker.New(poolCfg))
	obs := &recorder{}
	srv.SetObserver(obs)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup
	return &harness{srv: srv, path: path, obs: obs}
}

func defaultPool() worker.Config {
	return worker.Config{Workers: 2, QueueDepth: 8, ShutdownGrace: time.Second}
}

func send(t *testing.T, path, deviceName string, cmd device.Command) protocol.Response {
	t.Helper()
	return sendRequest(t, path, mustRequest(t, deviceName, cmd))
}

func sendRequest(t *testing.T, path string, req protocol.Request) protocol.Response {
	t.Helper()
	resp, err := exchange(path, req)
	if err != nil {
		t.Fatalf("exchange() error = %v", err)
	}
	return resp
}

// exchange sends one request and reads the single response, checking the
// server half-closes afterwards. Safe to call from any goroutine.
func exchange(path string, req protocol.Request) (protocol.Response, error) {
	var resp protocol.Response
	conn, err := net.Dial("unix", path)
	if err != nil {
		return resp, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck // test deadline

	if err := protocol.WriteMessage(conn, req, protocol.MaxPrimaryMessage); err != nil {
		return resp, err
	}
	if err := protocol.ReadMessage(conn, &resp, protocol.MaxPrimaryMessage); err != nil {
		return resp, err
	}
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		return resp, fmt.Errorf("expected EOF after the response, got %v", err)
	}
	return resp, nil
}

func mustRequest(t *testing.T, deviceName string, cmd device.Command) protocol.Request {
	t.Helper()
	req, err := protocol.NewRequest(deviceName, cmd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}

func TestInvalidDevice(t *testing.T) {
	h := startServer(t, defaultPool(), printer.New("printer", printer.NewMemoryOutput(), 10*time.Millisecond))

	resp := send(t, h.path, "ghost", &printer.Print{Output: "boo"})
	if resp.Status != protocol.StatusInvalidDevice {
		t.Fatalf("Status = %v, want ERROR_INVALID_DEVICE", resp.Status)
	}
	if len(resp.Result) != 0 {
		t.Errorf("Result = %x, want none", resp.Result)
	}

	o, ok := h.obs.find(protocol.StatusInvalidDevice)
	if !ok || o.Device != "ghost" || o.Command != printer.TagPrint || o.RequestID == "" {
		t.Errorf("observed outcome = %+v (found=%v)", o, ok)
	}
	if h.srv.Stats().InvalidDevice != 1 {
		t.Errorf("Stats().InvalidDevice = %d, want 1", h.srv.Stats().InvalidDevice)
	}
}

func TestUnsupportedCommand(t *testing.T) {
	out := printer.NewMemoryOutput()
	h := startServer(t, defaultPool(), printer.New("printer", out, 10*time.Millisecond))

	resp := send(t, h.path, "printer", &switches.Toggle{})
	if resp.Status != protocol.StatusUnsupportedCommand {
		t.Errorf("known tag on the wrong device: Status = %v, want ERROR_UNSUPPORTED_COMMAND", resp.Status)
	}

	resp = sendRequest(t, h.path, protocol.Request{
		Device:  "printer",
		Command: protocol.CommandFrame{Type: "printer.explode"},
	})
	if resp.Status != protocol.StatusUnsupportedCommand {
		t.Errorf("unknown tag: Status = %v, want ERROR_UNSUPPORTED_COMMAND", resp.Status)
	}
	if len(out.Printed()) != 0 {
		t.Errorf("printer ran %v", out.Printed())
	}
}

func TestPrinterAsync(t *testing.T) {
	out := printer.NewMemoryOutput()
	h := startServer(t, defaultPool(), printer.New("printer", out, 100*time.Millisecond))

	start := time.Now()
	resp := send(t, h.path, "printer", &printer.Print{Output: "HELLO WORLD"})
	if resp.Status != protocol.StatusSuccess || len(resp.Result) != 0 {
		t.Fatalf("Response = %+v, want SUCCESS without result", resp)
	}
	if elapsed := time.Since(start); elapsed >= 100*time.Millisecond {
		t.Errorf("async reply took %v; it should not wait for the printer delay", elapsed)
	}

	select {
	case text := <-out.Notify():
		if text != "HELLO WORLD" {
			t.Errorf("printed %q, want HELLO WORLD", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("printer never printed")
	}
}

func TestSyncResult(t *testing.T) {
	pin := switches.NewMemoryPin()
	h := startServer(t, worker.Config{Workers: 1, QueueDepth: 4, ShutdownGrace: time.Second}, switches.New("relay", pin))

	if resp := send(t, h.path, "relay", &switches.Enable{}); resp.Status != protocol.StatusSuccess {
		t.Fatalf("enable Status = %v", resp.Status)
	}

	// One worker runs tasks in submission order, so the query sees the enable.
	resp := send(t, h.path, "relay", &switches.State{})
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("state Status = %v", resp.Status)
	}
	var on bool
	if err := resp.Decode(&on); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !on {
		t.Error("state = off after enable")
	}
}

func TestInvalidArgumentsReportUnknown(t *testing.T) {
	h := startServer(t, defaultPool(), pixels.New("strip", pixels.NewMemoryStrip(4)))

	resp := send(t, h.path, "strip", &pixels.Blink{Duration: 1, Color: pixels.RGB(1, 2, 3), Frequency: -1})
	if resp.Status != protocol.StatusUnknown {
		t.Errorf("Status = %v, want ERROR_UNKNOWN", resp.Status)
	}
}

func TestProxyWithoutOwner(t *testing.T) {
	missing := filepath.Join(tempDir(t), "neopixel.socket")
	h := startServer(t, defaultPool(), proxy.New("strip", missing, pixels.Tags()))

	resp := send(t, h.path, "strip", &pixels.SolidColor{Color: pixels.RGB(255, 0, 0)})
	if resp.Status != protocol.StatusUnknown {
		t.Fatalf("Status = %v, want ERROR_UNKNOWN", resp.Status)
	}

	resp = send(t, h.path, "strip", &printer.Print{Output: "x"})
	if resp.Status != protocol.StatusUnsupportedCommand {
		t.Errorf("unsupported tag on a proxy: Status = %v, want ERROR_UNSUPPORTED_COMMAND", resp.Status)
	}
}

func TestProxyStaleOwnerSocket(t *testing.T) {
	stale := filepath.Join(tempDir(t), "neopixel.socket")
	ln, err := net.Listen("unix", stale)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("stale socket missing: %v", err)
	}

	h := startServer(t, defaultPool(), proxy.New("strip", stale, pixels.Tags()))

	resp := send(t, h.path, "strip", &pixels.SolidColor{Color: pixels.RGB(255, 0, 0)})
	if resp.Status != protocol.StatusUnknown {
		t.Errorf("Status = %v, want ERROR_UNKNOWN", resp.Status)
	}
}

func TestPerDeviceSerialisation(t *testing.T) {
	left, right := newBenchDevice("left"), newBenchDevice("right")
	h := startServer(t, worker.Config{Workers: 4, QueueDepth: 16, ShutdownGrace: time.Second}, left, right)

	requests := map[string]protocol.Request{
		"left":  mustRequest(t, "left", &hold{Millis: 100}),
		"right": mustRequest(t, "right", &hold{Millis: 100}),
	}

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 3; i++ {
		for name, req := range requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := exchange(h.path, req)
				if err != nil {
					t.Errorf("%s: %v", name, err)
					return
				}
				var got string
				if err := resp.Decode(&got); err != nil || resp.Status != protocol.StatusSuccess || got != name {
					t.Errorf("%s: status=%v result=%q err=%v", name, resp.Status, got, err)
				}
			}()
		}
	}
	wg.Wait()

	if left.maxSeen.Load() != 1 || right.maxSeen.Load() != 1 {
		t.Errorf("max concurrent commands per device = %d/%d, want 1", left.maxSeen.Load(), right.maxSeen.Load())
	}
	// Three 100ms commands per device; with cross-device overlap the total
	// stays well under the 600ms a fully serial run would need.
	if elapsed := time.Since(start); elapsed >= 550*time.Millisecond {
		t.Errorf("elapsed %v suggests devices did not run concurrently", elapsed)
	}
}

func TestMalformedRequestDropped(t *testing.T) {
	h := startServer(t, defaultPool(), printer.New("printer", printer.NewMemoryOutput(), 10*time.Millisecond))

	tests := []struct {
		name    string
		payload []byte
	}{
		{"not cbor", []byte{0, 0, 0, 3, 0xff, 0xff, 0xff}},
		{"oversized frame", func() []byte {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, protocol.MaxPrimaryMessage+1)
			return b
		}()},
		{"empty frame", []byte{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := net.Dial("unix", h.path)
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test deadline

			if _, err := conn.Write(tt.payload); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			n, err := conn.Read(make([]byte, 16))
			if n != 0 || err == nil {
				t.Errorf("Read() = %d, %v; want the connection closed without a response", n, err)
			}
		})
	}

	// The loop survives and still serves.
	if resp := send(t, h.path, "printer", &printer.Print{Output: "still here"}); resp.Status != protocol.StatusSuccess {
		t.Errorf("Status after malformed requests = %v", resp.Status)
	}
	if got := h.srv.Stats().Malformed; got != 3 {
		t.Errorf("Stats().Malformed = %d, want 3", got)
	}
}

func TestCloseCancelsWaitingClients(t *testing.T) {
	dev := newBenchDevice("slow")
	h := startServer(t, worker.Config{Workers: 1, QueueDepth: 4, ShutdownGrace: 50 * time.Millisecond}, dev)

	type result struct {
		name string
		resp protocol.Response
		err  error
	}
	results := make(chan result, 2)
	submit := func(name string, req protocol.Request) {
		go func() {
			resp, err := exchange(h.path, req)
			results <- result{name, resp, err}
		}()
	}

	submit("running", mustRequest(t, "slow", &stubborn{Millis: 1000}))
	waitFor(t, func() bool { return h.srv.Stats().Pool.Running == 1 })

	submit("queued", mustRequest(t, "slow", &hold{Millis: 10}))
	waitFor(t, func() bool { return h.srv.Stats().Pool.Queued == 1 })

	if err := h.srv.Close(); !errors.Is(err, worker.ErrShutdownTimeout) {
		t.Errorf("Close() error = %v, want ErrShutdownTimeout", err)
	}

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Errorf("%s command: %v", r.name, r.err)
			continue
		}
		if r.resp.Status != protocol.StatusCancelled {
			t.Errorf("%s command: Status = %v, want CANCELLED", r.name, r.resp.Status)
		}
	}

	if _, err := os.Stat(h.path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present after Close: %v", err)
	}
	if _, err := net.Dial("unix", h.path); err == nil {
		t.Error("Dial() after Close succeeded")
	}
}

func TestNFCReaderStartedWithServer(t *testing.T) {
	source := nfc.NewMemorySource()
	reader := nfc.New("reader", source, 10*time.Millisecond)
	h := startServer(t, defaultPool(), reader)

	source.Present([]byte("tag-42"))

	resp := send(t, h.path, "reader", &nfc.ReadData{Timeout: 5})
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("Status = %v", resp.Status)
	}
	var data []byte
	if err := resp.Decode(&data); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(data) != "tag-42" {
		t.Errorf("data = %q, want tag-42", data)
	}
}

func TestStartTwice(t *testing.T) {
	h := startServer(t, defaultPool())
	if err := h.srv.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if err := h.srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.srv.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestStartRefusesRegularFile(t *testing.T) {
	path := filepath.Join(tempDir(t), "tophat.socket")
	if err := os.WriteFile(path, []byte("not a socket"), 0o600); err != nil {
		t.Fatal(err)
	}
	srv := New(Config{SocketPath: path}, device.NewRegistry(), testCatalog(t), worker.New(defaultPool()))
	if err := srv.Start(context.Background()); err == nil {
		srv.Close() //nolint:errcheck // Test cleanup
		t.Fatal("Start() over a regular file should fail")
	}
	if data, _ := os.ReadFile(path); string(data) != "not a socket" {
		t.Error("regular file was modified")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
