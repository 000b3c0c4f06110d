// Package audit stores one row per finished command in the command_log
// table of the optional audit database.
//
// Records carry the request ID, device, command tag, kind, wire status
// name, error text and timing. Command arguments are never written.
package audit
