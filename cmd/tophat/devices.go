package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices"
	"github.com/nerrad567/tophat-core/internal/devices/nfc"
	"github.com/nerrad567/tophat-core/internal/devices/pixels"
	"github.com/nerrad567/tophat-core/internal/devices/printer"
	"github.com/nerrad567/tophat-core/internal/devices/switches"
	"github.com/nerrad567/tophat-core/internal/infrastructure/config"
	"github.com/nerrad567/tophat-core/internal/infrastructure/logging"
	"github.com/nerrad567/tophat-core/internal/process"
	"github.com/nerrad567/tophat-core/internal/proxy"
)

// driverIO is where console drivers read and write.
type driverIO struct {
	out io.Writer
	in  io.Reader
}

func consoleIO() driverIO {
	return driverIO{out: os.Stdout, in: os.Stdin}
}

// buildDevices registers a device per config entry. Proxies with a managed
// owner also get a supervised process in the returned group.
func buildDevices(configs []config.DeviceConfig, dio driverIO, log *logging.Logger) (*device.Registry, *process.Group, error) {
	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))
	owners := process.NewGroup()

	for _, dc := range configs {
		d, err := newDevice(dc, dio, log)
		if err != nil {
			return nil, nil, fmt.Errorf("device %q: %w", dc.Name, err)
		}
		if err := registry.Register(d); err != nil {
			return nil, nil, err
		}

		if dc.Type == config.DeviceTypeProxy && dc.Proxy.Owner.Managed {
			m := process.NewManager(ownerConfig(dc))
			m.SetLogger(log.With("owner", dc.Name))
			if err := owners.Add(m); err != nil {
				return nil, nil, err
			}
		}
	}
	return registry, owners, nil
}

func newDevice(dc config.DeviceConfig, dio driverIO, log *logging.Logger) (device.Device, error) {
	console := dc.Driver == "console"

	switch dc.Type {
	case config.DeviceTypePrinter:
		var out printer.Output = printer.NewMemoryOutput()
		if console {
			out = printer.NewConsoleOutput(dio.out)
		}
		return printer.New(dc.Name, out, dc.Delay), nil

	case config.DeviceTypeSwitch:
		var pin switches.Pin = switches.NewMemoryPin()
		if console {
			pin = switches.NewConsolePin(dc.Pin, dio.out)
		}
		return switches.New(dc.Name, pin), nil

	case config.DeviceTypePixels:
		var strip pixels.Strip = pixels.NewMemoryStrip(dc.LEDs)
		if console {
			strip = pixels.NewConsoleStrip(dc.LEDs, dio.out)
		}
		return pixels.New(dc.Name, strip), nil

	case config.DeviceTypeNFC:
		var source nfc.TagSource = nfc.NewMemorySource()
		if console {
			source = nfc.NewLineSource(dio.in)
		}
		r := nfc.New(dc.Name, source, dc.PollInterval)
		r.SetLogger(log.With("device", dc.Name))
		return r, nil

	case config.DeviceTypeProxy:
		tags, err := devices.Tags(dc.Proxy.Target)
		if err != nil {
			return nil, err
		}
		return proxy.New(dc.Name, dc.Proxy.SocketPath, tags), nil

	default:
		return nil, fmt.Errorf("unknown device type %q", dc.Type)
	}
}

// ownerConfig supervises a proxy's owner binary. The owner is ready once
// its socket accepts connections.
func ownerConfig(dc config.DeviceConfig) process.Config {
	owner := dc.Proxy.Owner
	cfg := process.DefaultConfig(dc.Name, owner.Binary, owner.Args)
	cfg.RestartOnFailure = owner.RestartOnFailure
	if owner.RestartDelay > 0 {
		cfg.RestartDelay = owner.RestartDelay
	}
	cfg.MaxRestartAttempts = owner.MaxRestartAttempts
	if owner.ReadyTimeout > 0 {
		cfg.ReadyTimeout = owner.ReadyTimeout
	}

	socket := dc.Proxy.SocketPath
	cfg.ReadyFunc = func(context.Context) error {
		return proxy.Probe(socket)
	}
	cfg.HealthCheckFunc = cfg.ReadyFunc
	return cfg
}
