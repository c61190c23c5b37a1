package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sweetexp/internal/logging"
	"sweetexp/internal/watch"
)

func waitTick(t *testing.T, s watch.Signal) {
	t.Helper()
	select {
	case <-s.C():
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change signal")
	}
}

func TestManualCoalesces(t *testing.T) {
	m := watch.NewManual()
	m.Trigger()
	m.Trigger()
	waitTick(t, m)
	select {
	case <-m.C():
		t.Fatal("expected bursts to collapse into one tick")
	default:
	}
	require.NoError(t, m.Close())
	m.Trigger()
	select {
	case <-m.C():
		t.Fatal("closed signal must not tick")
	default:
	}
}

func TestWatchFileTicksOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stat")
	require.NoError(t, os.WriteFile(path, []byte("cpu 1\n"), 0o644))

	s, err := watch.WatchFile(path, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, os.WriteFile(path, []byte("cpu 2\n"), 0o644))
	waitTick(t, s)
}

func TestWatchFileMissingPath(t *testing.T) {
	_, err := watch.WatchFile(filepath.Join(t.TempDir(), "absent"), nil)
	require.Error(t, err)
}

func TestWatchFileInDirSeesReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	s, err := watch.WatchFileInDir(path, 20*time.Millisecond, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	select {
	case <-s.C():
		t.Fatal("unrelated file must not tick")
	case <-time.After(150 * time.Millisecond):
	}

	tmp := filepath.Join(dir, "config.toml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("b"), 0o644))
	require.NoError(t, os.Rename(tmp, path))
	waitTick(t, s)
}
