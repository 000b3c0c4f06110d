// Package device provides the device and command model for TopHat.
//
// A Device is a named peripheral with a fixed set of command tags. A
// Command is an immutable unit of work carrying its own arguments. The
// Registry maps names to devices, each paired with one private Lock for
// its whole lifetime.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        Device Model                              │
//	│                                                                  │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────────────┐  │
//	│  │   Catalog    │   │   Registry   │   │       Execute        │  │
//	│  │ (catalog.go) │   │(registry.go) │   │     (device.go)      │  │
//	│  │              │   │              │   │                      │  │
//	│  │ • tag → type │   │ • name → dev │   │ • capability check   │  │
//	│  │ • decoding   │   │ • one Lock   │   │ • lock for the body  │  │
//	│  │ • defaults   │   │ • sealed     │   │ • panic → error      │  │
//	│  └──────────────┘   └──────────────┘   └──────────────────────┘  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Execution discipline
//
// Execute checks the command tag against the device's capability set
// before anything else. An unsupported command fails with
// *UnsupportedCommandError and the lock is never touched. Otherwise the
// lock is held for the full command body, so at most one command body
// runs per device at any instant; different devices run concurrently.
//
// Commands with a bounded duration wrap their loop in RunFor. Reaching
// the deadline ends the command normally; the command then performs its
// cleanup (for example blanking a pixel strip) while still holding the lock.
//
// # Usage
//
//	catalog := device.NewCatalog()
//	printer.RegisterCommands(catalog)
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//	if err := registry.Register(printer.New("printer", out)); err != nil {
//	    return err
//	}
//	registry.Seal()
//
//	entry, err := registry.Lookup("printer")
//	cmd, err := catalog.Decode("printer.print", args)
//	result, err := device.Execute(ctx, entry.Device, entry.Lock, cmd)
//
// # Thread Safety
//
// Registry and Catalog are safe for concurrent use. Devices may be run
// from many goroutines; the Lock serialises command bodies per device.
package device
