package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if c.LegacyEnabled {
		c.Engine.Enabled = true
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeWatcher()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if c.Store.Path, err = expandPath(strings.TrimSpace(c.Store.Path)); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	if c.Catalog.SeedPath, err = expandPath(strings.TrimSpace(c.Catalog.SeedPath)); err != nil {
		return fmt.Errorf("catalog.seed_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
}

func (c *Config) normalizeWatcher() {
	c.Watcher.Backend = strings.ToLower(strings.TrimSpace(c.Watcher.Backend))
	if c.Watcher.Backend == "" {
		c.Watcher.Backend = defaultWatcherBackend
	}
	c.Watcher.MetricPath = strings.TrimSpace(c.Watcher.MetricPath)
	if c.Watcher.MetricPath == "" {
		c.Watcher.MetricPath = defaultMetricPath
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
