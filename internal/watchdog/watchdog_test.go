package watchdog

import (
	"testing"
	"time"
)

func TestCheckDetectsMiss(t *testing.T) {
	w := New(time.Millisecond, 0.8)
	if w.CheckDuration(2 * time.Millisecond) != true {
		t.Fatalf("expected deadline miss")
	}
	if !w.IsTripped() {
		t.Fatalf("expected tripped=true")
	}
	if w.CheckDuration(500 * time.Microsecond) != false {
		t.Fatalf("expected no miss for fast cycle")
	}
	if w.IsTripped() {
		t.Fatalf("expected tripped=false after a fast cycle")
	}
}

func TestConsecutiveMissesResetOnSuccess(t *testing.T) {
	w := New(time.Millisecond, 0.8)
	w.CheckDuration(2 * time.Millisecond)
	w.CheckDuration(2 * time.Millisecond)
	if w.ConsecutiveMisses() != 2 {
		t.Fatalf("expected 2 consecutive misses, got %d", w.ConsecutiveMisses())
	}
	w.CheckDuration(100 * time.Microsecond)
	if w.ConsecutiveMisses() != 0 {
		t.Fatalf("expected consecutive misses reset, got %d", w.ConsecutiveMisses())
	}
}

func TestCriticalCallbackFiresAtThreshold(t *testing.T) {
	w := New(time.Millisecond, 0.8)
	w.SetThresholds(3, 10)

	fired := 0
	w.SetCriticalCallback(func(*Watchdog) { fired++ })

	for i := 0; i < 5; i++ {
		w.CheckDuration(2 * time.Millisecond)
	}
	if fired != 3 { // fires once per check once threshold reached (3,4,5)
		t.Fatalf("expected callback to fire 3 times, fired %d times", fired)
	}
}

func TestSetBudgetUpdatesWarningProportionally(t *testing.T) {
	w := New(time.Millisecond, 0.8)
	w.SetBudget(2 * time.Millisecond)
	if w.WarningThreshold() != time.Duration(float64(2*time.Millisecond)*0.8) {
		t.Fatalf("warning threshold not updated proportionally: %v", w.WarningThreshold())
	}
}

func TestResetAllClearsStatistics(t *testing.T) {
	w := New(time.Millisecond, 0.8)
	w.CheckDuration(2 * time.Millisecond)
	w.ResetAll()
	if w.TotalChecks() != 0 || w.TotalViolations() != 0 || w.MinExecutionNs() != 0 {
		t.Fatalf("ResetAll did not clear statistics")
	}
}
