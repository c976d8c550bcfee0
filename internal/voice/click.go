package voice

import "time"

// defaultDoubleClickInterval is the disambiguation window used when no
// interval is configured. It trades responsiveness of single clicks against
// false-negative double clicks; expose it via config rather than tuning the
// constant.
const defaultDoubleClickInterval = 300 * time.Millisecond

// ClickDisambiguator converts raw presses on a single control into exactly
// one SingleClick or DoubleClick decision per completed window.
//
// A first press arms a single-shot timer of the configured interval. A
// second press inside the window cancels the timer and emits DoubleClick
// synchronously; if the timer fires first, SingleClick is emitted.
//
// Precondition: Press must only be called from the event loop. The timer
// callback re-enters through post, so the pending flag is never touched
// from two goroutines and no locking is needed.
type ClickDisambiguator struct {
	interval time.Duration
	post     func(func()) bool

	onSingle func()
	onDouble func()

	pending bool
	timer   *time.Timer
}

// NewClickDisambiguator creates a disambiguator that reports decisions to
// onSingle and onDouble. post must schedule a closure onto the event loop;
// it is how the timer expiry re-joins single-threaded execution. A
// non-positive interval selects the default of 300 ms.
func NewClickDisambiguator(interval time.Duration, post func(func()) bool, onSingle, onDouble func()) *ClickDisambiguator {
	if interval <= 0 {
		interval = defaultDoubleClickInterval
	}
	return &ClickDisambiguator{
		interval: interval,
		post:     post,
		onSingle: onSingle,
		onDouble: onDouble,
	}
}

// Press records one physical press. Must be called on the event loop.
func (d *ClickDisambiguator) Press() {
	if d.pending {
		// Second press inside the window: double click.
		d.timer.Stop()
		d.timer = nil
		d.pending = false
		d.onDouble()
		return
	}

	d.pending = true
	d.timer = time.AfterFunc(d.interval, func() {
		// AfterFunc runs on its own goroutine; re-enter the loop before
		// touching any state.
		d.post(d.expire)
	})
}

// Cancel discards a pending window without emitting an event. Used on
// session teardown so a stray timer cannot fire into a dead controller.
// Must be called on the event loop.
func (d *ClickDisambiguator) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
}

// expire runs on the event loop when the window elapses without a second
// press.
func (d *ClickDisambiguator) expire() {
	if !d.pending {
		// The window was resolved (double click or Cancel) after the timer
		// fired but before this closure ran.
		return
	}
	d.pending = false
	d.timer = nil
	d.onSingle()
}
