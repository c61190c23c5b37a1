package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"sweetexp/internal/achievement"
	"sweetexp/internal/config"
	"sweetexp/internal/engine"
	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
	"sweetexp/internal/notification"
	"sweetexp/internal/store"
	"sweetexp/internal/watch"
)

// ErrAlreadyRunning is returned when another engine holds the lock.
var ErrAlreadyRunning = errors.New("another sweetexp engine is already running")

const configDebounce = 200 * time.Millisecond

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	deliverer ipc.Deliverer
	clock     clockwork.Clock
	signal    watch.Signal
	sessionID string
}

// WithDeliverer replaces the Unix socket delivery client.
func WithDeliverer(d ipc.Deliverer) Option {
	return func(o *options) { o.deliverer = d }
}

// WithClock replaces the real clock driving the workers.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSignal replaces the configured change signal.
func WithSignal(s watch.Signal) Option {
	return func(o *options) { o.signal = s }
}

// WithSessionID tags status responses with the run's session ID.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// Daemon owns the engine and the resources it runs against.
type Daemon struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	sessionID  string

	engine *engine.Engine
	store  store.Store
	audit  *logging.Audit
	signal watch.Signal

	lockPath string
	lock     *flock.Flock

	mu     sync.Mutex
	locked bool
	closed bool
}

var _ ipc.Controller = (*Daemon)(nil)

// New opens the store and audit log and builds the engine. configPath is the
// file Reload re-reads; it may be empty when no file exists yet.
func New(cfg *config.Config, configPath string, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	audit, err := logging.OpenAudit(cfg.AuditLogPath())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		sessionID:  o.sessionID,
		store:      st,
		audit:      audit,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}

	deliverer := o.deliverer
	if deliverer == nil {
		deliverer = ipc.NewClient(cfg.Paths.SocketPath, cfg.DeliveryTimeout())
	}
	d.signal = o.signal
	if d.signal == nil {
		d.signal = d.openSignal(logger)
	}

	eng, err := engine.New(cfg, engine.Deps{
		Store:     st,
		Deliverer: deliverer,
		Signal:    d.signal,
		Audit:     audit,
		Clock:     o.clock,
		Logger:    logger,
		Seed:      d.loadSeed(),
	})
	if err != nil {
		_ = d.closeResources()
		return nil, err
	}
	d.engine = eng
	return d, nil
}

func (d *Daemon) openSignal(logger *slog.Logger) watch.Signal {
	var (
		sig watch.Signal
		err error
	)
	switch d.cfg.Watcher.Backend {
	case config.WatcherBackendFSNotify:
		sig, err = watch.WatchFile(d.cfg.Watcher.MetricPath, logger)
	case config.WatcherBackendUEvent:
		sig, err = watch.WatchUEvents("", logger)
	default:
		return nil
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "change watcher unavailable; evaluations run on the timer only", "watcher_setup_failed",
			logging.Error(err),
			logging.String("backend", d.cfg.Watcher.Backend),
			logging.String(logging.FieldErrorHint, "check watcher.metric_path or switch watcher.backend"),
			logging.String(logging.FieldImpact, "unlocks may be noticed up to one evaluate interval later"))
		return nil
	}
	return sig
}

func (d *Daemon) loadSeed() []achievement.Achievement {
	path := strings.TrimSpace(d.cfg.Catalog.SeedPath)
	if path == "" {
		return nil
	}
	list, err := achievement.LoadCatalogFile(path)
	if err != nil {
		logging.WarnWithContext(d.logger, "seed catalog unreadable; using built-in achievements", "seed_catalog_invalid",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "fix the YAML catalog or clear catalog.seed_path"),
			logging.String(logging.FieldImpact, "custom achievements are not seeded"))
		return nil
	}
	return list
}

// Lock acquires the single-instance lock and loads the catalog.
func (d *Daemon) Lock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return nil
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	d.locked = true
	d.engine.Load(ctx)
	return nil
}

// Start launches the engine workers. Lock must have succeeded.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	locked := d.locked
	d.mu.Unlock()
	if !locked {
		return errors.New("daemon lock not held")
	}
	d.engine.Start(ctx)
	d.logger.Info("sweetexp engine running",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the workers and performs the final save.
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.engine.Running() {
		return nil
	}
	err := d.engine.Stop(ctx)
	d.logger.Info("sweetexp engine paused", logging.String(logging.FieldEventType, "daemon_stop"))
	return err
}

// Running reports whether the engine workers are active.
func (d *Daemon) Running() bool {
	return d.engine.Running()
}

// Reload re-reads the enable switch from the config file and starts or stops
// the engine to match. An unreadable file counts as disabled.
func (d *Daemon) Reload(ctx context.Context) bool {
	enabled, err := config.ReadEnabled(d.configPath)
	if err != nil {
		logging.WarnWithContext(d.logger, "config unreadable; treating engine as disabled", "config_reload_failed",
			logging.Error(err),
			logging.String("path", d.configPath),
			logging.String(logging.FieldErrorHint, "fix the config file; changes are picked up automatically"),
			logging.String(logging.FieldImpact, "engine paused until the config is valid"))
	}
	d.apply(ctx, enabled)
	return enabled
}

func (d *Daemon) apply(ctx context.Context, enabled bool) {
	switch {
	case enabled && !d.engine.Running():
		if err := d.Start(ctx); err != nil {
			logging.ErrorWithContext(d.logger, "engine start failed", "daemon_start_failed", logging.Error(err))
		}
	case !enabled && d.engine.Running():
		if err := d.Stop(ctx); err != nil {
			d.logger.Debug("stop reported error", logging.Error(err))
		}
	}
}

// WatchConfig follows the config file until ctx is canceled, calling Reload
// after each change. Watch setup failures are logged and the daemon keeps its
// current state.
func (d *Daemon) WatchConfig(ctx context.Context) {
	if strings.TrimSpace(d.configPath) == "" {
		return
	}
	sig, err := watch.WatchFileInDir(d.configPath, configDebounce, d.logger)
	if err != nil {
		logging.WarnWithContext(d.logger, "config watcher unavailable", "config_watch_failed",
			logging.Error(err),
			logging.String("path", d.configPath),
			logging.String(logging.FieldErrorHint, "restart the daemon after editing the config"),
			logging.String(logging.FieldImpact, "enable switch changes are not applied live"))
		return
	}
	defer sig.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig.C():
			enabled := d.Reload(ctx)
			d.logger.Info("config reloaded",
				logging.String(logging.FieldEventType, "config_reloaded"),
				logging.Bool("enabled", enabled))
		}
	}
}

// Status implements ipc.Controller.
func (d *Daemon) Status(context.Context) ipc.StatusResponse {
	st := d.engine.Status()
	resp := ipc.StatusResponse{
		Running:       st.Running,
		Enabled:       st.Enabled,
		PID:           os.Getpid(),
		SessionID:     d.sessionID,
		QueueLength:   st.QueueLength,
		QueueCapacity: st.QueueCapacity,
		StorePath:     st.StorePath,
		LockPath:      d.lockPath,
		Achievements:  make([]ipc.AchievementStatus, 0, len(st.Achievements)),
	}
	for _, a := range st.Achievements {
		resp.Achievements = append(resp.Achievements, ipc.AchievementStatus{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Progress:    a.Progress,
			Target:      a.Target,
			Unlocked:    a.Unlocked,
			UnlockTime:  a.UnlockTime,
		})
	}
	return resp
}

// Notify implements ipc.Controller by queueing the notification.
func (d *Daemon) Notify(_ context.Context, req ipc.NotifyRequest) (ipc.NotifyResponse, error) {
	category := notification.Category(strings.ToLower(strings.TrimSpace(req.Category)))
	if category == "" {
		category = notification.CategorySystem
	}
	n, err := d.engine.Notify(category, req.Message)
	if errors.Is(err, engine.ErrQueueFull) {
		return ipc.NotifyResponse{Queued: false, ID: n.ID}, nil
	}
	if err != nil {
		return ipc.NotifyResponse{}, err
	}
	return ipc.NotifyResponse{Queued: true, ID: n.ID}, nil
}

// Close stops the engine, releases the lock, and closes owned resources.
func (d *Daemon) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	stopErr := d.Stop(context.Background())

	d.mu.Lock()
	if d.locked {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
				logging.String(logging.FieldImpact, "next start may report another instance"))
		}
		d.locked = false
	}
	d.mu.Unlock()

	return errors.Join(stopErr, d.closeResources())
}

func (d *Daemon) closeResources() error {
	var errs []error
	if d.signal != nil {
		errs = append(errs, d.signal.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	errs = append(errs, d.audit.Close())
	return errors.Join(errs...)
}
