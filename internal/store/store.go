// Package store persists the achievement catalog.
//
// Two backends share one contract: a versioned, escaped text file (the
// default) and a SQLite database. A missing store loads as an empty catalog
// with no error; callers seed defaults in that case.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sweetexp/internal/achievement"
	"sweetexp/internal/config"
)

// ErrCorrupt reports a store whose contents cannot be interpreted at all.
var ErrCorrupt = errors.New("store contents unreadable")

// Store loads and saves the achievement catalog.
type Store interface {
	Load(ctx context.Context) ([]achievement.Achievement, error)
	Save(ctx context.Context, list []achievement.Achievement) error
	Path() string
	Close() error
}

var (
	_ Store = (*TextStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open returns the backend selected by cfg.Store.Backend.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("open store: nil config")
	}
	path := cfg.StorePath()
	switch cfg.Store.Backend {
	case config.StoreBackendSQLite:
		return OpenSQLite(path)
	case config.StoreBackendText, "":
		return NewText(path, logger), nil
	default:
		return nil, fmt.Errorf("open store: unsupported backend %q", cfg.Store.Backend)
	}
}
