// Package daemon coordinates the long-running sweetexp process.
//
// It wires configuration, the store, the audit log, the delivery client, and
// the change signal into an engine, holds a flock-based lock so only one
// engine runs per host, and follows the config file: turning the enable
// switch off stops the workers, turning it back on restarts them.
package daemon
