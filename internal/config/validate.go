package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateWatcher(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.queue_capacity":     c.Engine.QueueCapacity,
		"engine.evaluate_interval":  c.Engine.EvaluateInterval,
		"engine.dispatch_interval":  c.Engine.DispatchInterval,
		"engine.activity_interval":  c.Engine.ActivityInterval,
		"engine.activity_milestone": c.Engine.ActivityMilestone,
		"ipc.delivery_timeout":      c.IPC.DeliveryTimeout,
	}); err != nil {
		return err
	}
	if c.Engine.AmbientProbability < 0 || c.Engine.AmbientProbability > 1 {
		return errors.New("engine.ambient_probability must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendText, StoreBackendSQLite:
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (want %q or %q)", c.Store.Backend, StoreBackendText, StoreBackendSQLite)
	}
}

func (c *Config) validateWatcher() error {
	switch c.Watcher.Backend {
	case WatcherBackendFSNotify, WatcherBackendUEvent, WatcherBackendNone:
		return nil
	default:
		return fmt.Errorf("watcher.backend: unsupported value %q", c.Watcher.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
