package trigger

import (
	"time"
)

// debouncer is a trailing-edge debounce timer: every schedule call resets
// the pending window, so bursts of visibility batches collapse into one
// resolution pass delay after the last batch. There is no leading-edge
// emission.
type debouncer struct {
	delay   time.Duration
	timer   *time.Timer
	timerCh <-chan time.Time
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

// schedule (re)starts the window.
func (d *debouncer) schedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.delay)
	d.timerCh = d.timer.C
}

// timerC returns the channel that fires when the window expires. Nil while
// nothing is pending.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// fired clears the pending state after the timer channel delivered.
func (d *debouncer) fired() {
	d.timer = nil
	d.timerCh = nil
}

// cancel stops any pending timer. Guaranteed on teardown.
func (d *debouncer) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
