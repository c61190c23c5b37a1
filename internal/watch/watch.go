// Package watch turns filesystem and kernel events into coalesced change
// signals. Each Signal delivers at most one pending tick; bursts of events
// collapse into one.
package watch

import (
	"sync"
	"time"
)

// Signal delivers a tick each time the watched resource changes.
type Signal interface {
	C() <-chan struct{}
	Close() error
}

var (
	_ Signal = (*FileSignal)(nil)
	_ Signal = (*UEventSignal)(nil)
	_ Signal = (*Manual)(nil)
)

type ticker struct {
	ch chan struct{}

	mu       sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	closed   bool
}

func newTicker(debounce time.Duration) *ticker {
	return &ticker{ch: make(chan struct{}, 1), debounce: debounce}
}

func (t *ticker) fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

func (t *ticker) trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.debounce <= 0 {
		t.fire()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.debounce, t.fire)
}

func (t *ticker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Manual is a Signal fired by calling Trigger. The `none` backend uses no
// signal at all; Manual exists for driving evaluations from tests.
type Manual struct {
	t *ticker
}

// NewManual returns an idle manual signal.
func NewManual() *Manual {
	return &Manual{t: newTicker(0)}
}

// Trigger queues one tick if none is pending.
func (m *Manual) Trigger() { m.t.trigger() }

func (m *Manual) C() <-chan struct{} { return m.t.ch }

func (m *Manual) Close() error {
	m.t.stop()
	return nil
}
