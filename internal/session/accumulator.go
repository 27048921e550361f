package session

import (
	"math"
	"time"
)

// Accumulator converts wall-clock deltas into payable whole seconds for one
// session. The running total keeps fractional precision; only whole seconds
// are ever committed, and each second is committed exactly once.
type Accumulator struct {
	total     float64 // accumulated wall time, fractional seconds
	committed int64   // whole seconds already billed
}

// Seed initializes the accumulator from a prior duration, marking it fully
// committed so the next commit yields a delta of zero rather than a re-count.
func (a *Accumulator) Seed(seconds float64) {
	a.total = seconds
	a.committed = int64(math.Floor(seconds))
}

// Advance adds an elapsed wall-clock delta. Negative deltas (clock skew) are
// ignored.
func (a *Accumulator) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	a.total += d.Seconds()
}

// Payable returns the whole seconds accumulated but not yet committed.
func (a *Accumulator) Payable() int64 {
	delta := int64(math.Floor(a.total)) - a.committed
	if delta < 0 {
		return 0
	}
	return delta
}

// MarkCommitted records that all currently payable seconds have been billed.
func (a *Accumulator) MarkCommitted() {
	a.committed = int64(math.Floor(a.total))
}

// Total returns the accumulated duration including the fractional remainder.
func (a *Accumulator) Total() time.Duration {
	return time.Duration(a.total * float64(time.Second))
}

// Committed returns the whole seconds billed so far.
func (a *Accumulator) Committed() int64 {
	return a.committed
}
