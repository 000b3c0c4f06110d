// Package server implements the daemon's primary control socket.
//
// Each client connection carries exactly one framed Request and receives
// exactly one framed Response. The accept loop is sequential: it reads the
// request, looks the device up in the registry, decodes the command through
// the catalog, and submits it to the worker pool before accepting the next
// connection. Only waiting for a sync command's result happens off the loop.
//
// Request handling:
//
//	malformed frame or request      -> logged, connection dropped
//	unknown device                  -> ERROR_INVALID_DEVICE
//	unknown tag / not in capability -> ERROR_UNSUPPORTED_COMMAND
//	sync command                    -> reply when the task completes
//	async command                   -> poll once; SUCCESS unless already failed
//
// Async commands keep running after the reply. Their later failures reach
// the log and the observer, never the client.
//
// Lifecycle:
//
//	srv := server.New(cfg, registry, catalog, pool)
//	srv.SetObserver(obs)
//	if err := srv.Start(ctx); err != nil { ... }
//	...
//	srv.Stop()  // stop accepting; running commands continue
//	srv.Close() // shut the pool down, answer waiting clients, remove the socket
package server
