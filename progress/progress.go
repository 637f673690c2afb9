// Package progress implements the 0-100 progress protocol shared by all
// operations: values never decrease, and a successful run ends at exactly 100.
package progress

import "sync"

// Func receives progress percentages.
type Func func(percent int)

// Tracker filters raw progress reports into a monotonic sequence. It is safe
// for concurrent use, which lets concurrent strategies share one tracker.
type Tracker struct {
	mu     sync.Mutex
	fn     Func
	last   int
	closed bool
}

// New returns a tracker forwarding to fn. A nil fn is allowed.
func New(fn Func) *Tracker {
	return &Tracker{fn: fn, last: -1}
}

// Report forwards p, clamped to [0,99], unless it is lower than the last
// value sent. 100 is reserved for Done.
func (t *Tracker) Report(p int) {
	if p < 0 {
		p = 0
	}
	if p > 99 {
		p = 99
	}
	t.emit(p, false)
}

// Fraction reports the position done/total inside the [from,to] band.
func (t *Tracker) Fraction(done, total, from, to int) {
	if total <= 0 {
		t.Report(to)
		return
	}
	if done > total {
		done = total
	}
	t.Report(from + (to-from)*done/total)
}

// Band returns a callback mapping (done, total) onto [from,to]. It matches
// the shape of the writer's progress hook.
func (t *Tracker) Band(from, to int) func(done, total int) {
	return func(done, total int) { t.Fraction(done, total, from, to) }
}

// Done sends the final 100. Later reports are dropped.
func (t *Tracker) Done() { t.emit(100, true) }

// Fail stops the tracker without sending 100.
func (t *Tracker) Fail() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Last returns the last value forwarded, or -1.
func (t *Tracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) emit(p int, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || p < t.last {
		return
	}
	if final {
		t.closed = true
	}
	if p == t.last {
		return
	}
	t.last = p
	if t.fn != nil {
		t.fn(p)
	}
}
