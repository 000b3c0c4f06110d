package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices/pixels"
	"github.com/nerrad567/tophat-core/internal/proxy"
)

// syncBuffer is a bytes.Buffer safe for the strip writer and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags(nil, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if o.socket != DefaultSocketPath || o.leds != 30 || o.driver != "console" {
		t.Errorf("defaults = %+v", o)
	}

	for _, args := range [][]string{
		{"--leds", "0"},
		{"--driver", "spi"},
		{"--bogus"},
	} {
		if _, err := parseFlags(args, &bytes.Buffer{}); !errors.Is(err, errUsage) {
			t.Errorf("parseFlags(%v) error = %v, want errUsage", args, err)
		}
	}
}

func TestRun_ServesProxy(t *testing.T) {
	dir, err := os.MkdirTemp("", "tophat")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "neopixel.socket")

	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, []string{"--socket", socket, "--leds", "3", "--log-level", "error"}, &out)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := proxy.WaitReady(waitCtx, socket, 10*time.Millisecond); err != nil {
		cancel()
		t.Fatalf("owner socket never appeared: %v", err)
	}

	p := proxy.New("neopixel", socket, pixels.Tags())
	if _, err := device.Execute(context.Background(), p, device.NewLock(), &pixels.SolidColor{Color: pixels.RGB(255, 0, 0)}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := "#ff0000 #ff0000 #ff0000"
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("strip output = %q, want %q", out.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Error("socket still present after shutdown")
	}
}
