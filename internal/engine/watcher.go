package engine

import (
	"context"
	"log/slog"

	"sweetexp/internal/logging"
	"sweetexp/internal/watch"
)

// ChangeWatcher runs an extra evaluation for every change signal.
type ChangeWatcher struct {
	state     *State
	signal    watch.Signal
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewChangeWatcher returns a watcher; a nil signal leaves it idle.
func NewChangeWatcher(state *State, signal watch.Signal, evaluator *Evaluator, logger *slog.Logger) *ChangeWatcher {
	return &ChangeWatcher{
		state:     state,
		signal:    signal,
		evaluator: evaluator,
		logger:    logging.NewComponentLogger(logger, "change-watcher"),
	}
}

// Run blocks until ctx is canceled or the engine is disabled.
func (w *ChangeWatcher) Run(ctx context.Context) {
	if w.signal == nil {
		<-ctx.Done()
		return
	}
	for {
		if !w.state.Enabled() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.signal.C():
			if !ok {
				return
			}
			w.logger.Debug("change observed; evaluating")
			w.evaluator.Evaluate(ctx)
		}
	}
}
