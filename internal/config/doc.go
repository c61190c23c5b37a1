// Package config loads, normalizes, and validates sweetexp configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// engine and CLI need: the enable switch, worker intervals, queue capacity,
// store backend, socket path, and change-watcher settings.
//
// A missing configuration file is not an error: Load returns defaults with the
// engine disabled, and callers decide what "disabled" means for them.
package config
