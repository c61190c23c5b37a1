package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// runEvery calls fn once per interval until ctx is canceled or the state is
// disabled. The enabled flag is checked before each wait and again on wake.
func runEvery(ctx context.Context, clock clockwork.Clock, interval time.Duration, state *State, fn func(context.Context)) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		if !state.Enabled() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !state.Enabled() {
				return
			}
			fn(ctx)
		}
	}
}
