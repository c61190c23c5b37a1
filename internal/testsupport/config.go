package testsupport

import (
	"path/filepath"
	"testing"

	"sweetexp/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces an enabled config whose data, log, and socket paths all
// live in a per-test temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Engine.Enabled = true
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "n.sock")
	cfgVal.Watcher.Backend = config.WatcherBackendNone

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStoreBackend selects the persistence backend.
func WithStoreBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithQueueCapacity overrides the notification queue size.
func WithQueueCapacity(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.QueueCapacity = n
	}
}

// WithAmbientProbability overrides the ambient notification chance.
func WithAmbientProbability(p float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.AmbientProbability = p
	}
}

// WithSeedCatalog writes a YAML seed catalog into the temp directory and
// points the config at it.
func WithSeedCatalog(doc string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "catalog.yaml")
		WriteFile(b.t, path, doc)
		b.cfg.Catalog.SeedPath = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
