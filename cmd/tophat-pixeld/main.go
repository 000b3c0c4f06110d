// tophat-pixeld owns a pixel strip and serves it to the TopHat daemon.
//
// The daemon registers a proxy device pointing at this process's socket and
// forwards pixel commands to it. Run it standalone, or let the daemon
// supervise it with proxy.owner.managed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices/pixels"
	"github.com/nerrad567/tophat-core/internal/infrastructure/config"
	"github.com/nerrad567/tophat-core/internal/infrastructure/logging"
	"github.com/nerrad567/tophat-core/internal/proxy"
)

var version = "dev"

// DefaultSocketPath is where the owner listens unless configured otherwise.
const DefaultSocketPath = "/srv/tophat/neopixel.socket"

// Exit codes. A supervisor does not restart after exitConfig.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

var errUsage = errors.New("invalid arguments")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	cancel()

	switch {
	case err == nil:
		os.Exit(exitOK)
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfig)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitRuntime)
	}
}

type options struct {
	socket   string
	name     string
	leds     int
	driver   string
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	flags := pflag.NewFlagSet("tophat-pixeld", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&o.socket, "socket", "s", DefaultSocketPath, "owner socket path")
	flags.StringVar(&o.name, "name", "neopixel", "device name used in logs")
	flags.IntVarP(&o.leds, "leds", "n", 30, "number of pixels on the strip")
	flags.StringVar(&o.driver, "driver", "console", "strip driver: console or memory")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level")

	if err := flags.Parse(args); err != nil {
		return o, fmt.Errorf("%w: %v", errUsage, err)
	}
	if o.leds < 1 {
		return o, fmt.Errorf("%w: --leds must be at least 1", errUsage)
	}
	switch o.driver {
	case "console", "memory":
	default:
		return o, fmt.Errorf("%w: unknown driver %q", errUsage, o.driver)
	}
	return o, nil
}

// run serves the strip until ctx is cancelled.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	log := logging.NewWithWriter(config.LoggingConfig{Level: o.logLevel, Format: "text"}, version, os.Stderr).
		With("owner", o.name)

	var strip pixels.Strip = pixels.NewMemoryStrip(o.leds)
	if o.driver == "console" {
		strip = pixels.NewConsoleStrip(o.leds, stdout)
	}

	catalog := device.NewCatalog()
	if err := pixels.RegisterCommands(catalog); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(o.socket), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	srv := proxy.NewOwnerServer(pixels.New(o.name, strip), catalog, o.socket)
	srv.SetLogger(log)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return srv.Close()
}
