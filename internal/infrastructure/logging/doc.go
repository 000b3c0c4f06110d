// Package logging builds the slog logger shared by the TopHat binaries.
//
// Every entry carries service=tophat and the build version. Packages
// that log take a small Logger interface and receive a component logger:
//
//	log := logging.New(cfg.Logging, version)
//	srv.SetLogger(log.Component("server"))
//	log.Info("control socket listening", "path", cfg.Server.SocketPath)
//
// The logging section selects level (debug, info, warn, error), format
// (json or text) and output (stdout or stderr).
//
// Command arguments can carry user data such as printer text or NFC
// payloads. Log command tags at info level, never full arguments.
package logging
