package rtclock

import (
	"testing"
	"time"
)

func TestWaitNextDoesNotDrift(t *testing.T) {
	c := NewPeriodicClock(5 * time.Millisecond)
	start := time.Now()
	const ticks = 20
	for i := 0; i < ticks; i++ {
		c.WaitNext()
	}
	elapsed := time.Since(start)
	want := 5 * time.Millisecond * ticks
	// generous tolerance: scheduler jitter, not drift accumulation
	if elapsed < want-10*time.Millisecond || elapsed > want+50*time.Millisecond {
		t.Fatalf("elapsed %v far from expected %v", elapsed, want)
	}
}

func TestSetPeriodReanchors(t *testing.T) {
	c := NewPeriodicClock(time.Hour)
	before := c.next
	c.SetPeriod(time.Millisecond)
	if !c.next.Before(before) {
		t.Fatalf("expected next wake to re-anchor to a near time, got %v (was %v)", c.next, before)
	}
}
