package testsupport

import (
	"testing"

	"sweetexp/internal/config"
	"sweetexp/internal/store"
)

// MustOpenStore opens the configured store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) store.Store {
	t.Helper()

	st, err := store.Open(cfg, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}
