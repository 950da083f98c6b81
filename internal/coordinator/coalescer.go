package coordinator

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// coalescer is a trailing-edge debounce timer. Every restart pushes expiry a
// full window into the future; C fires once the window elapses without one.
type coalescer struct {
	clock  clockwork.Clock
	window time.Duration
	timer  clockwork.Timer
	armed  bool
}

func newCoalescer(clock clockwork.Clock, window time.Duration) *coalescer {
	return &coalescer{clock: clock, window: window, timer: newStoppedTimer(clock)}
}

// C returns the expiry channel, or nil while the coalescer is idle so the
// select case never fires.
func (c *coalescer) C() <-chan time.Time {
	if !c.armed {
		return nil
	}
	return c.timer.Chan()
}

func (c *coalescer) restart() {
	resetTimer(c.timer, c.window)
	c.armed = true
}

// fired must be called after receiving from C.
func (c *coalescer) fired() { c.armed = false }

func (c *coalescer) cancel() {
	stopTimer(c.timer)
	c.armed = false
}

func (c *coalescer) active() bool { return c.armed }

func newStoppedTimer(clock clockwork.Clock) clockwork.Timer {
	t := clock.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func stopTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

func resetTimer(t clockwork.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
