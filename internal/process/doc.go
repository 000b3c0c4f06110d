// Package process supervises the owner processes behind proxied devices.
//
// An owner process (for example tophat-pixeld) holds one real device and
// serves it on a secondary socket. When a proxy device is configured with
// a managed owner, the daemon starts the owner binary here, waits for its
// socket to appear, and restarts it with exponential backoff if it exits.
//
// Features:
//   - Start with a readiness wait (the owner's socket must appear)
//   - SIGTERM to the process group, SIGKILL after a grace period
//   - Restart on failure with exponential backoff, reset after a stable run
//   - Watchdog health checks that kill a hung owner
//   - Owner stdout/stderr forwarded line by line to the daemon log
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "strip",
//	    Binary:           "/usr/local/bin/tophat-pixeld",
//	    Args:             []string{"--socket", "/srv/tophat/neopixel.socket"},
//	    RestartOnFailure: true,
//	    ReadyFunc: func(context.Context) error {
//	        return proxy.Probe("/srv/tophat/neopixel.socket")
//	    },
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
