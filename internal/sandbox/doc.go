// Package sandbox runs hats: third-party application images started in
// CPU-capped containers that reach the daemon through its control socket.
//
// Each hat is wrapped in a Box. The Box runs the hat's image detached and
// auto-removed, with the directory holding the control socket bind-mounted
// read-write at /var/run/tophat inside the container. A hat that fails to
// start is logged and skipped; it never stops the daemon from serving.
//
// Containers are driven through the Runtime interface. CLIRuntime shells
// out to podman or docker:
//
//	rt, err := sandbox.NewCLIRuntime("")
//	if err != nil {
//	    return err
//	}
//	mgr := sandbox.NewManager(rt, sandbox.DefaultOptions("/srv/tophat"))
//	mgr.Register(sandbox.NewHat("weather", "ghcr.io/acme/weather:1", nil))
//	mgr.StartAll(ctx)
//	defer mgr.StopAll(context.Background())
package sandbox
