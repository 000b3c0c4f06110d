// Package api implements the local HTTP status API for TopHat.
//
// This package provides:
//   - Health and runtime metrics for the daemon
//   - The registered devices with their command sets
//   - Hat container and owner process state
//   - Paginated reads of the command audit log
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Scope
//
// The API is read-only. Commands are only accepted on the control socket;
// nothing here can submit work to a device.
//
// # Security
//
// There is no authentication. Bind api.host to loopback unless the network
// in front of the device is trusted.
package api
