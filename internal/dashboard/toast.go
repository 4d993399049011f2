package dashboard

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultToastDuration is how long a notification stays up.
const DefaultToastDuration = 4 * time.Second

// Toast is the single notification slot. Arming it again replaces the
// pending expiry, so the most recent notification always gets the full
// duration. Not safe for concurrent use; the Controller guards it.
type Toast struct {
	clock    clock.Clock
	duration time.Duration
	timer    *clock.Timer
	gen      uint64
	visible  bool
}

// NewToast creates a hidden toast.
func NewToast(clk clock.Clock, d time.Duration) *Toast {
	if clk == nil {
		clk = clock.New()
	}
	if d <= 0 {
		d = DefaultToastDuration
	}
	return &Toast{clock: clk, duration: d}
}

// Arm marks the toast visible and schedules expire(gen) after the duration,
// cancelling any earlier schedule.
func (t *Toast) Arm(expire func(gen uint64)) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	t.visible = true
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.duration, func() { expire(gen) })
}

// Expire hides the toast if gen is the latest arming. A timer that fired
// after being replaced reports false.
func (t *Toast) Expire(gen uint64) bool {
	if gen != t.gen || !t.visible {
		return false
	}
	t.visible = false
	t.timer = nil
	return true
}

// Visible reports whether a notification is showing.
func (t *Toast) Visible() bool { return t.visible }

// Stop cancels the pending expiry without hiding.
func (t *Toast) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}
