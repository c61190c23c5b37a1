// Package daemonrun hosts the process lifecycle behind `sweetexp run`.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"sweetexp/internal/config"
	"sweetexp/internal/daemon"
	"sweetexp/internal/fileutil"
	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is the file watched for enable switch changes.
	ConfigPath  string
	LogLevel    string
	Development bool
	// Logger replaces the stdout and file logger built from cfg.
	Logger *slog.Logger
	// DaemonOptions are passed through to daemon.New.
	DaemonOptions []daemon.Option
}

// Run starts the engine and blocks until ctx is canceled or the process
// receives SIGINT or SIGTERM. A disabled engine returns nil immediately.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	sessionID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = newLogger(cfg, opts)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	logger = logging.WithSession(logger, sessionID)

	if !cfg.Engine.Enabled {
		logger.Info("engine disabled; nothing to do",
			logging.String(logging.FieldEventType, "engine_disabled"),
			logging.String("config_path", opts.ConfigPath),
			logging.String(logging.FieldErrorHint, "set engine.enabled = true to run the engine"))
		return nil
	}

	logRuntimeSnapshot(logger, cfg)

	daemonOpts := append([]daemon.Option{daemon.WithSessionID(sessionID)}, opts.DaemonOptions...)
	d, err := daemon.New(cfg, opts.ConfigPath, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Lock(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logger.Error("another engine holds the lock",
				logging.String(logging.FieldEventType, "daemon_already_running"),
				logging.String("lock", cfg.LockPath()),
				logging.String(logging.FieldErrorHint, "stop the running engine or check `sweetexp status`"))
		}
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	server, err := ipc.NewServer(signalCtx, cfg.ControlSocketPath(), d, logger)
	if err != nil {
		logging.WarnWithContext(logger, "control socket unavailable", "control_server_failed",
			logging.Error(err),
			logging.String("socket", cfg.ControlSocketPath()),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "`sweetexp status` falls back to the pid file"))
	} else {
		defer server.Close()
		server.Serve()
	}

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	go d.WatchConfig(signalCtx)

	<-signalCtx.Done()
	logger.Info("sweetexp shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logFilePath(cfg)},
		Development: opts.Development,
	})
}

func logFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "sweetexp.log")
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, strconv.Itoa(os.Getpid())+"\n")
		return err
	})
}

func logRuntimeSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("runtime snapshot",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.String("store_backend", cfg.Store.Backend),
		logging.String("store_path", cfg.StorePath()),
		logging.String("watcher_backend", cfg.Watcher.Backend),
		logging.String("notification_socket", cfg.Paths.SocketPath),
		logging.String("control_socket", cfg.ControlSocketPath()),
		logging.Int("queue_capacity", cfg.Engine.QueueCapacity),
		logging.Float64("ambient_probability", cfg.Engine.AmbientProbability),
	)
}
