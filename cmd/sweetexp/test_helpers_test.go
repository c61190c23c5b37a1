package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"sweetexp/internal/config"
	"sweetexp/internal/daemon"
	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
	"sweetexp/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	configPath string
}

// newCLIConfig writes a config file matching a fresh test config and points
// HOME at the temp directory so nothing leaks into the real home.
func newCLIConfig(t *testing.T) (*config.Config, string) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

// setupCLITestEnv runs a locked daemon with its control server on the
// configured control socket.
func setupCLITestEnv(t *testing.T, start bool) *cliTestEnv {
	t.Helper()

	cfg, configPath := newCLIConfig(t)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, configPath, logger, daemon.WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Lock(ctx))
	if start {
		require.NoError(t, d.Start(ctx))
	}

	srv, err := ipc.NewServer(ctx, cfg.ControlSocketPath(), d, logger)
	require.NoError(t, err)
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return &cliTestEnv{cfg: cfg, daemon: d, server: srv, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIContext(context.Background(), args, configPath)
}

func runCLIContext(ctx context.Context, args []string, configPath string) (string, string, error) {
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[engine]\nenabled = %t\nqueue_capacity = %d\n\n[paths]\ndata_dir = %q\nlog_dir = %q\nsocket_path = %q\n\n[store]\nbackend = %q\n\n[watcher]\nbackend = %q\n",
		cfg.Engine.Enabled,
		cfg.Engine.QueueCapacity,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.SocketPath,
		cfg.Store.Backend,
		cfg.Watcher.Backend,
	)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
