package scheduler

import (
	"context"
	"sync"
	"time"
)

// Driver owns the IO side Handle's pure state transition cannot: arming
// and cancelling the throttle timer (spec.md §4.4.4, §5's "Throttle timers
// are cancelled implicitly by absence of deferred updates"). Handle itself
// only flips EvaluateHandlerState.ThrottleRunning; Driver watches that flag
// after every dispatched action and starts a real time.Timer when it turns
// true, delivering EffectThrottleEmitAction back through Handle when it
// fires. One Driver serializes access to one EvaluateHandlerState, matching
// §5's "each actor processes one message at a time."
type Driver struct {
	handler *Handler
	state   *EvaluateHandlerState

	mu    sync.Mutex
	timer *time.Timer
}

// NewDriver wraps a Handler/EvaluateHandlerState pair for IO-driven use.
func NewDriver(handler *Handler, state *EvaluateHandlerState) *Driver {
	return &Driver{handler: handler, state: state}
}

// Dispatch runs action through the handler and arms or leaves alone the
// throttle timer depending on the resulting DeferredUpdates state. ctx
// cancellation stops a pending timer from firing a late throttle flush.
func (d *Driver) Dispatch(ctx context.Context, action Action) ([]Action, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out, err := d.handler.Handle(d.state, action)
	if err != nil {
		return nil, err
	}

	if d.state.ThrottleRunning && d.timer == nil {
		d.armTimer(ctx)
	}
	if !d.state.ThrottleRunning && d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return out, nil
}

func (d *Driver) armTimer(ctx context.Context) {
	d.timer = time.AfterFunc(d.handler.Config.ThrottleDuration, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, _ = d.Dispatch(ctx, EffectThrottleEmitAction{})
	})
}

// Close stops any pending throttle timer without flushing it.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
