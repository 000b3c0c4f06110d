// TopHat - local device control daemon
//
// tophat serves named hardware devices (printers, switches, pixel strips,
// NFC readers) to local clients over a unix socket, and runs the sandboxed
// "hat" applications that use them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/tophat-core/internal/api"
	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices"
	"github.com/nerrad567/tophat-core/internal/events"
	"github.com/nerrad567/tophat-core/internal/infrastructure/config"
	"github.com/nerrad567/tophat-core/internal/infrastructure/logging"
	"github.com/nerrad567/tophat-core/internal/process"
	"github.com/nerrad567/tophat-core/internal/sandbox"
	"github.com/nerrad567/tophat-core/internal/server"
	"github.com/nerrad567/tophat-core/internal/worker"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "/etc/tophat/config.yaml"

// hatStopTimeout bounds stopping every hat container on shutdown.
const hatStopTimeout = 30 * time.Second

// newRuntime opens the container engine that runs hats.
var newRuntime = func(engine string) (sandbox.Runtime, error) {
	rt, err := sandbox.NewCLIRuntime(engine)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func main() {
	flags := pflag.NewFlagSet("tophat", pflag.ExitOnError)
	configFlag := flags.StringP("config", "c", "", "path to config file (default $TOPHAT_CONFIG or "+defaultConfigPath+")")
	showVersion := flags.Bool("version", false, "print version and exit")
	flags.Parse(os.Args[1:]) //nolint:errcheck // ExitOnError

	if *showVersion {
		fmt.Printf("tophat %s (%s, %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path: the --config flag,
// then TOPHAT_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("TOPHAT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// daemon holds every running component so shutdown can stop them in order.
// Nil members were never started.
type daemon struct {
	log       *logging.Logger
	telemetry *telemetry
	observer  *events.Async
	owners    *process.Group
	hats      *sandbox.Manager
	control   *server.Server
	api       *api.Server
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting TopHat",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Registration errors are fatal and happen before anything starts.
	catalog, err := devices.NewCatalog()
	if err != nil {
		return fmt.Errorf("building command catalog: %w", err)
	}
	registry, owners, err := buildDevices(cfg.Devices, consoleIO(), log)
	if err != nil {
		return fmt.Errorf("registering devices: %w", err)
	}
	log.Info("devices registered", "devices", registry.Len(), "owners", owners.Len())

	d := &daemon{log: log, owners: owners}
	defer d.shutdown()

	d.telemetry, err = connectTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}

	pool := worker.New(worker.Config{
		Workers:       cfg.Server.Workers,
		QueueDepth:    cfg.Server.QueueDepth,
		ShutdownGrace: cfg.Server.ShutdownGrace,
	})
	pool.SetLogger(log.Component("worker"))

	srvCfg := server.DefaultConfig()
	srvCfg.SocketPath = cfg.Server.SocketPath
	srvCfg.MaxMessageSize = cfg.Server.MaxMessageSize
	d.control = server.New(srvCfg, registry, catalog, pool)
	d.control.SetLogger(log.Component("server"))

	if obs := d.telemetry.observers(log); len(obs) > 0 {
		d.observer = events.NewAsync(obs, events.DefaultBufferSize)
		d.observer.SetLogger(log.Component("events"))
		d.control.SetObserver(d.observer)
	}

	if owners.Len() > 0 {
		if err := owners.StartAll(ctx); err != nil {
			// Proxies answer ERROR_UNKNOWN until their owner is up.
			log.Warn("device owners failed to start", "error", err)
		}
	}

	if cfg.Sandbox.Enabled && len(cfg.Hats) > 0 {
		d.hats, err = startHats(ctx, cfg, log, d.telemetry)
		if err != nil {
			return fmt.Errorf("starting hats: %w", err)
		}
	}

	if err := d.control.Start(ctx); err != nil {
		return fmt.Errorf("starting control server: %w", err)
	}

	if cfg.API.Enabled {
		if err := d.startAPI(ctx, cfg, registry); err != nil {
			return err
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// shutdown stops the accept loop, then hats, then owner processes, then
// drains the worker pool and removes the socket.
func (d *daemon) shutdown() {
	if d.api != nil {
		if err := d.api.Close(); err != nil {
			d.log.Warn("closing API server", "error", err)
		}
	}

	if d.control != nil {
		d.control.Stop()
	}

	if d.hats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), hatStopTimeout)
		if err := d.hats.StopAll(ctx); err != nil {
			d.log.Warn("hats did not stop cleanly", "error", err)
		}
		cancel()
		d.telemetry.reportHats(d.hats.Status())
	}

	if d.owners != nil {
		if err := d.owners.StopAll(); err != nil {
			d.log.Warn("device owners did not stop cleanly", "error", err)
		}
	}

	if d.control != nil {
		if err := d.control.Close(); err != nil {
			if errors.Is(err, worker.ErrShutdownTimeout) {
				d.log.Warn("commands still running at shutdown were abandoned")
			} else {
				d.log.Error("closing control server", "error", err)
			}
		}
	}

	if d.observer != nil {
		d.observer.Close()
		if n := d.observer.Dropped(); n > 0 {
			d.log.Warn("command events dropped", "count", n)
		}
	}

	if d.telemetry != nil {
		d.telemetry.Close()
	}

	d.log.Info("TopHat stopped")
}

// startHats registers every configured hat and starts them. A hat that
// fails to start is logged and reported; the daemon keeps running.
func startHats(ctx context.Context, cfg *config.Config, log *logging.Logger, tel *telemetry) (*sandbox.Manager, error) {
	rt, err := newRuntime(cfg.Sandbox.Engine)
	if err != nil {
		log.Warn("no container runtime, hats will not run", "error", err)
		return nil, nil
	}

	opts := sandbox.DefaultOptions(filepath.Dir(cfg.Server.SocketPath))
	opts.CPUPercent = cfg.Sandbox.CPUPercent
	opts.MountPath = cfg.Sandbox.MountPath
	if cfg.Sandbox.StopTimeout > 0 {
		opts.StopTimeout = cfg.Sandbox.StopTimeout
	}

	// The socket directory is bind-mounted, so it must exist before any
	// container starts.
	if err := os.MkdirAll(opts.SocketDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}

	mgr := sandbox.NewManager(rt, opts)
	mgr.SetLogger(log.Component("sandbox"))
	for _, h := range cfg.Hats {
		if err := mgr.Register(sandbox.NewHat(h.Name, h.Image, h.LaunchArgs)); err != nil {
			rt.Close() //nolint:errcheck // registration already failed
			return nil, err
		}
	}

	for name, ok := range mgr.StartAll(ctx) {
		if !ok {
			log.Warn("hat failed to start", "hat", name)
		}
	}
	tel.reportHats(mgr.Status())
	return mgr, nil
}

func (d *daemon) startAPI(ctx context.Context, cfg *config.Config, registry *device.Registry) error {
	deps := api.Deps{
		Config:   cfg.API,
		Logger:   d.log,
		Registry: registry,
		Control:  d.control,
		Owners:   d.owners,
		Version:  version,
	}
	if d.hats != nil {
		deps.Hats = d.hats
	}
	if d.observer != nil {
		deps.Events = d.observer
	}
	d.telemetry.apiDeps(&deps)

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	d.api = srv
	return nil
}
