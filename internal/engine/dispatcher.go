package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
	"sweetexp/internal/notification"
)

// Rand is the randomness the dispatcher and activity worker draw from.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Dispatcher delivers queued notifications and occasional ambient ones.
type Dispatcher struct {
	state       *State
	deliverer   ipc.Deliverer
	rng         Rand
	probability float64
	messages    []string
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewDispatcher returns a dispatcher that synthesizes an ambient message with
// the given probability per tick.
func NewDispatcher(state *State, deliverer ipc.Deliverer, rng Rand, probability float64, clock clockwork.Clock, logger *slog.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rng == nil {
		rng = newRand()
	}
	return &Dispatcher{
		state:       state,
		deliverer:   deliverer,
		rng:         rng,
		probability: probability,
		messages:    AmbientMessages(),
		clock:       clock,
		logger:      logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Tick pops at most one queued notification and delivers it, then maybe
// delivers an ambient notification directly. Failed deliveries are logged and
// dropped. It returns the number of successful deliveries.
func (d *Dispatcher) Tick(ctx context.Context) int {
	delivered := 0
	if n, ok := d.state.Pop(); ok {
		if d.deliver(ctx, n) {
			delivered++
		}
	}
	if len(d.messages) > 0 && d.probability > 0 && d.rng.Float64() < d.probability {
		msg := d.messages[d.rng.IntN(len(d.messages))]
		if d.deliver(ctx, notification.New(notification.CategoryAmbient, msg, d.clock.Now())) {
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, n notification.Notification) bool {
	if d.deliverer == nil {
		return false
	}
	err := d.deliverer.Deliver(ctx, n)
	if err == nil {
		d.logger.Debug("notification delivered",
			logging.String(logging.FieldNotificationID, n.ID),
			logging.String(logging.FieldCategory, string(n.Category)))
		return true
	}
	hint := "check that the notification consumer is running"
	if !errors.Is(err, ipc.ErrNoConsumer) {
		hint = "check the notification socket path and permissions"
	}
	logging.WarnWithContext(d.logger, "notification delivery failed", "notification_delivery_failed",
		logging.Error(err),
		logging.String(logging.FieldNotificationID, n.ID),
		logging.String(logging.FieldCategory, string(n.Category)),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "notification dropped"))
	return false
}
