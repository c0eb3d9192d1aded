package capture

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the auto-capture period.
const DefaultInterval = 1500 * time.Millisecond

// AsyncTrigger is the part of Pipeline the auto-capture loop drives.
type AsyncTrigger interface {
	TriggerAsync(ctx context.Context) bool
}

// AutoCapture fires a capture cycle at a fixed interval while the capture
// screen is focused.
type AutoCapture struct {
	target   AsyncTrigger
	interval time.Duration

	// Ready, when set, is consulted on every tick; the tick is skipped while
	// it reports false. Set it before the first Focus.
	Ready func() bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoCapture creates a stopped auto-capture loop. A non-positive
// interval means DefaultInterval.
func NewAutoCapture(target AsyncTrigger, interval time.Duration) *AutoCapture {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &AutoCapture{target: target, interval: interval}
}

// Focus starts the timer, replacing a running one. Cycles started by the
// loop run on a context detached from ctx's cancellation.
func (a *AutoCapture) Focus(ctx context.Context) {
	a.Blur()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go a.loop(loopCtx, context.WithoutCancel(ctx), done)
}

// Blur stops the timer. When it returns no further cycle will be started;
// a cycle already in flight is left to finish.
func (a *AutoCapture) Blur() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the timer is active.
func (a *AutoCapture) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

func (a *AutoCapture) loop(ctx, cycleCtx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a cancelled loop must not start a cycle even if a tick is pending
			if ctx.Err() != nil {
				return
			}
			if a.Ready != nil && !a.Ready() {
				continue
			}
			a.target.TriggerAsync(cycleCtx)
		}
	}
}
