package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"

	"sweetexp/internal/achievement"
	"sweetexp/internal/logging"
	"sweetexp/internal/notification"
	"sweetexp/internal/store"
)

// Auditor records human-readable engine events.
type Auditor interface {
	Event(msg string, attrs ...logging.Attr) error
}

var _ Auditor = (*logging.Audit)(nil)

// Evaluator unlocks achievements whose bound counter has reached the target.
type Evaluator struct {
	state  *State
	store  store.Store
	audit  Auditor
	clock  clockwork.Clock
	logger *slog.Logger

	// Guarded by state.mu.
	sources  map[string]CounterSource
	bindings map[string]string
}

// NewEvaluator returns an evaluator with the built-in bindings:
// boot_master to the boot counter, activity_pro and wayland_pro to the
// activity counter. Counters are attached with AddSource.
func NewEvaluator(state *State, st store.Store, audit Auditor, clock clockwork.Clock, logger *slog.Logger) *Evaluator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if audit == nil {
		audit = (*logging.Audit)(nil)
	}
	return &Evaluator{
		state:   state,
		store:   st,
		audit:   audit,
		clock:   clock,
		logger:  logging.NewComponentLogger(logger, "evaluator"),
		sources: make(map[string]CounterSource),
		bindings: map[string]string{
			achievement.BootMaster:  CounterBoot,
			achievement.ActivityPro: CounterActivity,
			achievement.WaylandPro:  CounterActivity,
		},
	}
}

// AddSource attaches the counter that drives bindings named counter.
func (e *Evaluator) AddSource(counter string, src CounterSource) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	if src == nil {
		delete(e.sources, counter)
		return
	}
	e.sources[counter] = src
}

// Bind makes achievement id unlock from counter. Achievements without a
// binding are never evaluated.
func (e *Evaluator) Bind(id, counter string) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	e.bindings[id] = counter
}

// Evaluate samples every counter once and unlocks each locked achievement
// whose counter has reached its target. Each unlock queues an achievement
// notification, writes an audit line, and saves the catalog before the lock
// is released. It returns the achievements unlocked by this pass.
func (e *Evaluator) Evaluate(ctx context.Context) []achievement.Achievement {
	var unlocked []achievement.Achievement
	e.state.locked(func(catalog *achievement.Catalog, queue *notification.Queue) {
		values := e.sample()
		now := e.clock.Now()

		catalog.Each(func(a *achievement.Achievement) {
			if a.Unlocked {
				return
			}
			counter, ok := e.bindings[a.ID]
			if !ok {
				return
			}
			value, ok := values[counter]
			if !ok {
				return
			}
			a.RecordProgress(value)
			if value < a.Target || !a.Unlock(now) {
				return
			}
			unlocked = append(unlocked, *a)

			n := notification.Achievement(a.Name, a.Description, now)
			if !queue.Push(n) {
				e.logger.Debug("notification queue full; unlock notification dropped",
					logging.String(logging.FieldAchievementID, a.ID))
			}
			e.logger.Info("achievement unlocked",
				logging.String(logging.FieldEventType, "achievement_unlocked"),
				logging.String(logging.FieldAchievementID, a.ID),
				logging.Int("counter", value))
			if err := e.audit.Event("Achievement unlocked",
				logging.String(logging.FieldAchievementID, a.ID),
				logging.String("name", a.Name)); err != nil {
				e.logger.Debug("audit write failed", logging.Error(err))
			}
			e.save(ctx, catalog.Snapshot())
		})
	})
	return unlocked
}

// sample reads each source once, in name order.
func (e *Evaluator) sample() map[string]int {
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make(map[string]int, len(names))
	for _, name := range names {
		values[name] = e.sources[name].Counter()
	}
	return values
}

func (e *Evaluator) save(ctx context.Context, list []achievement.Achievement) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, list); err != nil {
		logging.WarnWithContext(e.logger, "failed to save achievements", "store_save_failed",
			logging.Error(err),
			logging.String("path", e.store.Path()),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the data directory"),
			logging.String(logging.FieldImpact, "unlock may be lost if the engine stops before the next save"))
	}
}

// seedCounters resumes seedable counters from persisted progress.
func (e *Evaluator) seedCounters(list []achievement.Achievement) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	highest := make(map[string]int)
	for _, a := range list {
		counter, ok := e.bindings[a.ID]
		if !ok {
			continue
		}
		if a.Progress > highest[counter] {
			highest[counter] = a.Progress
		}
	}
	for counter, value := range highest {
		if s, ok := e.sources[counter].(seeder); ok {
			s.Seed(value)
		}
	}
}
