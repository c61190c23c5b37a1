// Package daemonctl starts and stops a background sweetexp engine from the CLI.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"sweetexp/internal/config"
	"sweetexp/internal/ipc"
)

// ErrNotRunning indicates no engine answers on the control socket or pid file.
var ErrNotRunning = errors.New("engine not running")

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls engine process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogPath    string
}

// StartState reports what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures engine start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures engine stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached `sweetexp run` process. Output goes to LogPath
// when set, otherwise it is discarded.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if opts.LogPath != "" {
		out, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open launch log: %w", err)
		}
		defer out.Close()
		proc.Stdout = out
		proc.Stderr = out
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch engine: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for the control socket and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.ControlClient, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for engine")
	}
	return nil, fmt.Errorf("engine failed to start: %w", lastErr)
}

// EnsureStarted launches the engine unless one already answers on the
// control socket. A disabled config exits the child immediately, which
// surfaces here as a start timeout.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	socketPath := cfg.ControlSocketPath()
	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		status, statusErr := client.Status()
		if statusErr != nil {
			return StartResult{}, statusErr
		}
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	}
	if !cfg.Engine.Enabled {
		return StartResult{}, errors.New("engine disabled in config; set engine.enabled = true")
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// Stop sends SIGTERM to the engine and waits up to gracePeriod for it to
// exit, then sends SIGKILL and cleans up the pid file.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pid, err := ResolvePID(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			_ = os.Remove(cfg.PIDPath())
			return StopResult{}, ErrNotRunning
		}
		return StopResult{}, fmt.Errorf("signal engine %d: %w", pid, err)
	}
	if WaitForExit(pid, gracePeriod) {
		return StopResult{PID: pid}, nil
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return StopResult{PID: pid}, fmt.Errorf("kill engine %d: %w", pid, err)
	}
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return StopResult{PID: pid}, fmt.Errorf("remove pid file: %w", err)
	}
	_ = os.Remove(cfg.ControlSocketPath())
	return StopResult{PID: pid, ForcedKill: true}, nil
}

// ResolvePID asks the control socket for the engine pid and falls back to
// the pid file. Returns ErrNotRunning when neither names a live process.
func ResolvePID(cfg *config.Config) (int, error) {
	if client, err := ipc.Dial(cfg.ControlSocketPath()); err == nil {
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && status.PID > 0 {
			return status.PID, nil
		}
	}
	pid, err := ReadPIDFile(cfg.PIDPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	if !Alive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// ReadPIDFile parses the pid written by `sweetexp run`.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// Alive reports whether pid names a running process. A permission error
// still means the process exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// WaitForExit polls until pid disappears or timeout elapses.
func WaitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
