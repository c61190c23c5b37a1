package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"sweetexp/internal/logging"
	"sweetexp/internal/notification"
)

const maxActivityStep = 10

// ActivityWorker simulates compositor activity: each step adds a random
// amount below ten to its counter, and passing a multiple of the milestone
// queues a system notification.
type ActivityWorker struct {
	state     *State
	rng       Rand
	milestone int
	clock     clockwork.Clock
	logger    *slog.Logger
	count     atomic.Int64
}

// NewActivityWorker returns a worker starting at zero.
func NewActivityWorker(state *State, rng Rand, milestone int, clock clockwork.Clock, logger *slog.Logger) *ActivityWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rng == nil {
		rng = newRand()
	}
	return &ActivityWorker{
		state:     state,
		rng:       rng,
		milestone: milestone,
		clock:     clock,
		logger:    logging.NewComponentLogger(logger, "activity"),
	}
}

// Counter returns the current count.
func (w *ActivityWorker) Counter() int {
	return int(w.count.Load())
}

// Seed raises the counter to n if it is lower.
func (w *ActivityWorker) Seed(n int) {
	for {
		cur := w.count.Load()
		if int64(n) <= cur || w.count.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// Step advances the counter once and returns the new value.
func (w *ActivityWorker) Step() int {
	inc := int64(w.rng.IntN(maxActivityStep))
	cur := w.count.Add(inc)
	prev := cur - inc
	if w.milestone > 0 && prev/int64(w.milestone) < cur/int64(w.milestone) {
		n := notification.New(notification.CategorySystem, fmt.Sprintf("Compositor events: %d processed", cur), w.clock.Now())
		if !w.state.Enqueue(n) {
			w.logger.Debug("notification queue full; milestone notification dropped",
				logging.Int64("count", cur))
		}
	}
	return int(cur)
}

func newRand() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}
