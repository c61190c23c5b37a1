package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Store backend identifiers.
const (
	StoreBackendText   = "text"
	StoreBackendSQLite = "sqlite"
)

// Watcher backend identifiers.
const (
	WatcherBackendFSNotify = "fsnotify"
	WatcherBackendUEvent   = "uevent"
	WatcherBackendNone     = "none"
)

// Engine contains the enable switch and worker timing.
type Engine struct {
	Enabled            bool    `toml:"enabled"`
	QueueCapacity      int     `toml:"queue_capacity"`
	EvaluateInterval   int     `toml:"evaluate_interval"`
	DispatchInterval   int     `toml:"dispatch_interval"`
	ActivityInterval   int     `toml:"activity_interval"`
	AmbientProbability float64 `toml:"ambient_probability"`
	ActivityMilestone  int     `toml:"activity_milestone"`
}

// Paths contains directory and socket locations.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Store selects the persistence backend.
type Store struct {
	Backend string `toml:"backend"`
	// Path overrides the backend's default file inside DataDir.
	Path string `toml:"path"`
}

// Catalog configures the achievement seed catalog.
type Catalog struct {
	// SeedPath points at an optional YAML catalog used when the store is empty.
	SeedPath string `toml:"seed_path"`
}

// IPC contains delivery client settings.
type IPC struct {
	DeliveryTimeout int `toml:"delivery_timeout"`
}

// Watcher configures the change-signal source that triggers extra evaluations.
type Watcher struct {
	Backend    string `toml:"backend"`
	MetricPath string `toml:"metric_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sweetexp.
//
// Configuration sections by subsystem:
//   - Engine: enable switch, queue capacity, worker intervals
//   - Paths: data/log directories and the notification socket
//   - Store: persistence backend (text or sqlite)
//   - Catalog: optional YAML seed catalog
//   - IPC: delivery client timeout
//   - Watcher: change-signal backend and watched metric file
//   - Logging: log format and level
type Config struct {
	// LegacyEnabled mirrors the original SWEETENGINE=true switch.
	LegacyEnabled bool    `toml:"SWEETENGINE"`
	Engine        Engine  `toml:"engine"`
	Paths         Paths   `toml:"paths"`
	Store         Store   `toml:"store"`
	Catalog       Catalog `toml:"catalog"`
	IPC           IPC     `toml:"ipc"`
	Watcher       Watcher `toml:"watcher"`
	Logging       Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sweetexp/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file yields defaults (engine disabled).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, resolvedPath, false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, resolvedPath, true, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, resolvedPath, exists, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, resolvedPath, exists, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ReadEnabled re-reads the enable switch from path. Any failure to read or parse
// the file reports the engine as disabled along with the cause.
func ReadEnabled(path string) (bool, error) {
	cfg, _, exists, err := Load(path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	return cfg.Engine.Enabled, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sweetexp.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories and the socket's parent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.StorePath())}
	if socketDir := filepath.Dir(c.Paths.SocketPath); socketDir != "" {
		dirs = append(dirs, socketDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the persistence file for the configured backend.
func (c *Config) StorePath() string {
	if p := strings.TrimSpace(c.Store.Path); p != "" {
		return p
	}
	if c.Store.Backend == StoreBackendSQLite {
		return filepath.Join(c.Paths.DataDir, "data", defaultSQLiteStoreFile)
	}
	return filepath.Join(c.Paths.DataDir, "data", defaultTextStoreFile)
}

// AuditLogPath returns the append-only engine event log.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.Paths.LogDir, "engine.log")
}

// LockPath returns the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "sweetexp.lock")
}

// ControlSocketPath returns the daemon's JSON-RPC control socket.
func (c *Config) ControlSocketPath() string {
	return filepath.Join(c.Paths.DataDir, "sweetexp.sock")
}

// PIDPath returns the pid file written by the running engine.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "sweetexp.pid")
}

// EvaluateEvery returns the evaluator tick interval.
func (c *Config) EvaluateEvery() time.Duration {
	return time.Duration(c.Engine.EvaluateInterval) * time.Second
}

// DispatchEvery returns the dispatcher tick interval.
func (c *Config) DispatchEvery() time.Duration {
	return time.Duration(c.Engine.DispatchInterval) * time.Second
}

// ActivityEvery returns the activity counter tick interval.
func (c *Config) ActivityEvery() time.Duration {
	return time.Duration(c.Engine.ActivityInterval) * time.Second
}

// DeliveryTimeout returns the IPC dial/write timeout.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.IPC.DeliveryTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
