package engine

import "sync/atomic"

// Counter names achievements can be bound to.
const (
	CounterBoot     = "boot"
	CounterActivity = "activity"
)

// CounterSource reports the current value of an activity counter.
type CounterSource interface {
	Counter() int
}

// CounterFunc adapts a function to CounterSource.
type CounterFunc func() int

func (f CounterFunc) Counter() int { return f() }

// seeder is implemented by counters that can resume from persisted progress.
type seeder interface {
	Seed(n int)
}

// EvaluationCounter stands in for a real boot counter: every sample advances
// it by one, so it counts evaluation passes.
type EvaluationCounter struct {
	n atomic.Int64
}

func (c *EvaluationCounter) Counter() int {
	return int(c.n.Add(1))
}

// Seed raises the counter to n if it is lower.
func (c *EvaluationCounter) Seed(n int) {
	for {
		cur := c.n.Load()
		if int64(n) <= cur || c.n.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}
