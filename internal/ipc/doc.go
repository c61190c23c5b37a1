// Package ipc carries notifications to the presentation process and exposes
// the running engine to the CLI.
//
// Delivery is one JSON line per short-lived Unix socket connection: dial,
// write, close, no acknowledgement. Listener is the receiving end used by
// `sweetexp listen` and tests. The control server speaks JSON-RPC on a second
// socket so `sweetexp status` and `sweetexp notify` can reach the daemon.
package ipc
