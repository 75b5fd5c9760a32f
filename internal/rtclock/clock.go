// Package rtclock provides a drift-free periodic clock for the control
// loop: it anchors wake times to a fixed schedule rather than re-deriving
// them from each wake's wall-clock reading, so accumulated jitter does not
// turn into accumulated drift.
package rtclock

import "time"

// PeriodicClock sleeps until a sequence of absolute wake times spaced
// exactly period apart. It is owned by the loop goroutine and is not safe
// for concurrent use.
type PeriodicClock struct {
	period time.Duration
	next   time.Time
}

// NewPeriodicClock returns a clock whose first wake time is now+period.
func NewPeriodicClock(period time.Duration) *PeriodicClock {
	return &PeriodicClock{period: period, next: time.Now().Add(period)}
}

// WaitNext blocks until the next scheduled wake time, then advances the
// schedule by exactly one period. Because next is only ever advanced by
// addition, drift never accumulates even if wake-ups run late.
func (c *PeriodicClock) WaitNext() {
	time.Sleep(time.Until(c.next))
	c.next = c.next.Add(c.period)
}

// Period returns the clock's current period.
func (c *PeriodicClock) Period() time.Duration {
	return c.period
}

// SetPeriod changes the period and re-anchors the next wake time to
// now+period, avoiding a large jump if the old schedule had drifted far
// from the new one.
func (c *PeriodicClock) SetPeriod(period time.Duration) {
	c.period = period
	c.next = time.Now().Add(period)
}

// TimeToNext returns the duration until the next scheduled wake, or zero if
// it has already passed.
func (c *PeriodicClock) TimeToNext() time.Duration {
	d := time.Until(c.next)
	if d < 0 {
		return 0
	}
	return d
}
