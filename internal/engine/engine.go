package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"sweetexp/internal/achievement"
	"sweetexp/internal/config"
	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
	"sweetexp/internal/notification"
	"sweetexp/internal/store"
	"sweetexp/internal/watch"
)

// Deps are the collaborators an Engine runs against. Store and Deliverer are
// required; the rest have defaults.
type Deps struct {
	Store     store.Store
	Deliverer ipc.Deliverer
	// Signal triggers extra evaluations. Nil leaves the change watcher idle.
	Signal watch.Signal
	Audit  Auditor
	Clock  clockwork.Clock
	// Rand returns a fresh random source per worker.
	Rand   func() Rand
	Logger *slog.Logger
	// Seed replaces achievement.Defaults when the store is empty.
	Seed []achievement.Achievement
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running       bool
	Enabled       bool
	QueueLength   int
	QueueCapacity int
	StorePath     string
	Achievements  []achievement.Achievement
}

// Engine owns the shared state and the four workers.
type Engine struct {
	cfg    *config.Config
	state  *State
	store  store.Store
	audit  Auditor
	clock  clockwork.Clock
	logger *slog.Logger
	seed   []achievement.Achievement

	evaluator  *Evaluator
	dispatcher *Dispatcher
	activity   *ActivityWorker
	boot       *EvaluationCounter
	watcher    *ChangeWatcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires the state and workers from cfg.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine requires configuration")
	}
	if deps.Store == nil {
		return nil, errors.New("engine requires a store")
	}
	if deps.Deliverer == nil {
		return nil, errors.New("engine requires a deliverer")
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	audit := deps.Audit
	if audit == nil {
		audit = (*logging.Audit)(nil)
	}
	newRandFn := deps.Rand
	if newRandFn == nil {
		newRandFn = func() Rand { return newRand() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	state := NewState(cfg.Engine.QueueCapacity)
	evaluator := NewEvaluator(state, deps.Store, audit, clock, logger)
	activity := NewActivityWorker(state, newRandFn(), cfg.Engine.ActivityMilestone, clock, logger)
	boot := &EvaluationCounter{}
	evaluator.AddSource(CounterBoot, boot)
	evaluator.AddSource(CounterActivity, activity)

	return &Engine{
		cfg:        cfg,
		state:      state,
		store:      deps.Store,
		audit:      audit,
		clock:      clock,
		logger:     logging.NewComponentLogger(logger, "engine"),
		seed:       deps.Seed,
		evaluator:  evaluator,
		dispatcher: NewDispatcher(state, deps.Deliverer, newRandFn(), cfg.Engine.AmbientProbability, clock, logger),
		activity:   activity,
		boot:       boot,
		watcher:    NewChangeWatcher(state, deps.Signal, evaluator, logger),
	}, nil
}

// Load reads the catalog from the store. An empty or unreadable store seeds
// the default catalog; read errors are logged, never returned.
func (e *Engine) Load(ctx context.Context) {
	list, err := e.store.Load(ctx)
	if err != nil {
		logging.WarnWithContext(e.logger, "failed to load achievements; starting from defaults", "store_load_failed",
			logging.Error(err),
			logging.String("path", e.store.Path()),
			logging.String(logging.FieldErrorHint, "inspect or remove the data file"),
			logging.String(logging.FieldImpact, "previous progress is ignored until the file is fixed"))
		list = nil
	}
	source := "store"
	if len(list) == 0 {
		list = e.seedCatalog()
		source = "defaults"
		if len(e.seed) > 0 {
			source = "seed catalog"
		}
	}
	if skipped := e.state.Replace(list); skipped > 0 {
		e.logger.Warn("skipped invalid achievements",
			logging.String(logging.FieldEventType, "catalog_entries_skipped"),
			logging.Int("skipped", skipped),
			logging.String(logging.FieldErrorHint, "check for duplicate IDs in the seed catalog"),
			logging.String(logging.FieldImpact, "skipped achievements are not tracked"))
	}
	e.evaluator.seedCounters(list)
	e.logger.Info("achievements loaded",
		logging.String(logging.FieldEventType, "catalog_loaded"),
		logging.String("source", source),
		logging.Int("count", len(list)))
}

func (e *Engine) seedCatalog() []achievement.Achievement {
	if len(e.seed) > 0 {
		return append([]achievement.Achievement(nil), e.seed...)
	}
	return achievement.Defaults()
}

// Start enables the engine and launches the workers. It is a no-op when
// already running.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state.SetEnabled(true)
	e.running = true

	e.wg.Add(4)
	go func() {
		defer e.wg.Done()
		runEvery(runCtx, e.clock, e.cfg.EvaluateEvery(), e.state, func(ctx context.Context) {
			e.evaluator.Evaluate(ctx)
		})
	}()
	go func() {
		defer e.wg.Done()
		runEvery(runCtx, e.clock, e.cfg.DispatchEvery(), e.state, func(ctx context.Context) {
			e.dispatcher.Tick(ctx)
		})
	}()
	go func() {
		defer e.wg.Done()
		runEvery(runCtx, e.clock, e.cfg.ActivityEvery(), e.state, func(context.Context) {
			e.activity.Step()
		})
	}()
	go func() {
		defer e.wg.Done()
		e.watcher.Run(runCtx)
	}()

	e.event("Engine started")
	e.logger.Info("engine started",
		logging.String(logging.FieldEventType, "engine_started"),
		logging.Int("queue_capacity", e.state.QueueCap()))
}

// Stop disables the engine, waits for the workers, and saves the catalog.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}

	e.state.SetEnabled(false)
	e.cancel()
	e.wg.Wait()
	e.running = false

	var saveErr error
	e.state.locked(func(catalog *achievement.Catalog, _ *notification.Queue) {
		if err := e.store.Save(ctx, catalog.Snapshot()); err != nil {
			saveErr = fmt.Errorf("final save: %w", err)
		}
	})
	if saveErr != nil {
		logging.ErrorWithContext(e.logger, "final save failed", "store_save_failed",
			logging.Error(saveErr),
			logging.String("path", e.store.Path()),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the data directory"))
	}

	e.event("Engine stopped")
	e.logger.Info("engine stopped", logging.String(logging.FieldEventType, "engine_stopped"))
	return saveErr
}

// Running reports whether the workers are active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status returns the current engine view.
func (e *Engine) Status() Status {
	return Status{
		Running:       e.Running(),
		Enabled:       e.state.Enabled(),
		QueueLength:   e.state.QueueLen(),
		QueueCapacity: e.state.QueueCap(),
		StorePath:     e.store.Path(),
		Achievements:  e.state.Snapshot(),
	}
}

// Notify queues a notification from outside the workers.
func (e *Engine) Notify(category notification.Category, message string) (notification.Notification, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return notification.Notification{}, errors.New("notification message is required")
	}
	if !category.Valid() {
		return notification.Notification{}, fmt.Errorf("unknown notification category %q", category)
	}
	n := notification.New(category, message, e.clock.Now())
	if !e.state.Enqueue(n) {
		return n, ErrQueueFull
	}
	return n, nil
}

// ErrQueueFull is returned by Notify when the queue is at capacity.
var ErrQueueFull = errors.New("notification queue full")

// Evaluate runs one evaluation pass outside the timer.
func (e *Engine) Evaluate(ctx context.Context) []achievement.Achievement {
	return e.evaluator.Evaluate(ctx)
}

// Bind extends the unlock bindings; see Evaluator.Bind.
func (e *Engine) Bind(id, counter string) {
	e.evaluator.Bind(id, counter)
}

func (e *Engine) event(msg string, attrs ...logging.Attr) {
	if err := e.audit.Event(msg, attrs...); err != nil {
		e.logger.Debug("audit write failed", logging.Error(err))
	}
}
