// Package watchdog implements a per-cycle deadline monitor: it tracks
// execution-time statistics, consecutive miss/warning streaks, and invokes
// optional callbacks when those streaks cross configured thresholds. The
// statistics and streak counters live behind atomics so an external
// observer goroutine can read them without locking the control loop; the
// thresholds and callbacks are plain fields.
package watchdog

import (
	"sync/atomic"
	"time"
)

// Callback receives the watchdog whose threshold was crossed. It runs on
// the control loop goroutine and must not block, allocate, or perform I/O.
type Callback func(*Watchdog)

// Watchdog checks each cycle's measured execution time against a budget and
// a warning ratio of that budget (0.8 by default).
type Watchdog struct {
	budget           atomic.Int64 // nanoseconds
	warningThreshold atomic.Int64 // nanoseconds

	tripped             atomic.Bool
	consecutiveMisses   atomic.Uint32
	consecutiveWarnings atomic.Uint32

	totalViolations atomic.Uint64
	totalWarnings   atomic.Uint64
	totalChecks     atomic.Uint64

	minExecNs atomic.Uint64
	maxExecNs atomic.Uint64
	sumExecNs atomic.Uint64

	criticalThreshold uint32
	warningThresholdN uint32

	criticalCallback Callback
	warningCallback  Callback
}

// New returns a Watchdog with the given execution budget and warning ratio
// (fraction of budget that counts as a warning, default semantics at 0.8).
func New(budget time.Duration, warningRatio float64) *Watchdog {
	w := &Watchdog{criticalThreshold: 5, warningThresholdN: 10}
	w.budget.Store(int64(budget))
	w.warningThreshold.Store(int64(float64(budget) * warningRatio))
	w.minExecNs.Store(^uint64(0))
	return w
}

// Check evaluates one cycle's execution time. It returns true if the
// deadline was missed.
func (w *Watchdog) Check(start, end time.Time) bool {
	return w.CheckDuration(end.Sub(start))
}

// CheckDuration is Check expressed directly in terms of the elapsed
// execution time, for callers that measured it some other way.
func (w *Watchdog) CheckDuration(execution time.Duration) bool {
	execNs := uint64(execution)
	w.totalChecks.Add(1)
	w.updateStatistics(execNs)

	missed := int64(execNs) > w.budget.Load()
	w.tripped.Store(missed)

	if missed {
		w.handleDeadlineMiss()
	} else {
		w.consecutiveMisses.Store(0)
	}

	if int64(execNs) > w.warningThreshold.Load() {
		w.handleWarning()
	} else {
		w.consecutiveWarnings.Store(0)
	}

	return missed
}

func (w *Watchdog) updateStatistics(execNs uint64) {
	for {
		cur := w.minExecNs.Load()
		if execNs >= cur || w.minExecNs.CompareAndSwap(cur, execNs) {
			break
		}
	}
	for {
		cur := w.maxExecNs.Load()
		if execNs <= cur || w.maxExecNs.CompareAndSwap(cur, execNs) {
			break
		}
	}
	w.sumExecNs.Add(execNs)
}

func (w *Watchdog) handleDeadlineMiss() {
	w.totalViolations.Add(1)
	consecutive := w.consecutiveMisses.Add(1)
	if consecutive >= w.criticalThreshold && w.criticalCallback != nil {
		w.criticalCallback(w)
	}
}

func (w *Watchdog) handleWarning() {
	w.totalWarnings.Add(1)
	consecutive := w.consecutiveWarnings.Add(1)
	if consecutive >= w.warningThresholdN && w.warningCallback != nil {
		w.warningCallback(w)
	}
}

// Reset clears the tripped flag and consecutive counters but preserves
// cumulative statistics.
func (w *Watchdog) Reset() {
	w.tripped.Store(false)
	w.consecutiveMisses.Store(0)
	w.consecutiveWarnings.Store(0)
}

// ResetAll clears state and all cumulative statistics.
func (w *Watchdog) ResetAll() {
	w.Reset()
	w.totalViolations.Store(0)
	w.totalWarnings.Store(0)
	w.totalChecks.Store(0)
	w.minExecNs.Store(^uint64(0))
	w.maxExecNs.Store(0)
	w.sumExecNs.Store(0)
}

// SetBudget updates the execution budget and proportionally updates the
// warning threshold to 0.8 of the new budget.
func (w *Watchdog) SetBudget(budget time.Duration) {
	w.budget.Store(int64(budget))
	w.warningThreshold.Store(int64(float64(budget) * 0.8))
}

// SetThresholds sets the consecutive-miss and consecutive-warning counts
// that trigger the critical and warning callbacks.
func (w *Watchdog) SetThresholds(critical, warning uint32) {
	w.criticalThreshold = critical
	w.warningThresholdN = warning
}

// SetCriticalCallback installs the callback invoked once consecutive misses
// reach the critical threshold. Runs on the loop goroutine.
func (w *Watchdog) SetCriticalCallback(cb Callback) { w.criticalCallback = cb }

// SetWarningCallback installs the callback invoked once consecutive
// warnings reach the warning threshold. Runs on the loop goroutine.
func (w *Watchdog) SetWarningCallback(cb Callback) { w.warningCallback = cb }

func (w *Watchdog) IsTripped() bool               { return w.tripped.Load() }
func (w *Watchdog) ConsecutiveMisses() uint32     { return w.consecutiveMisses.Load() }
func (w *Watchdog) ConsecutiveWarnings() uint32   { return w.consecutiveWarnings.Load() }
func (w *Watchdog) TotalViolations() uint64       { return w.totalViolations.Load() }
func (w *Watchdog) TotalWarnings() uint64         { return w.totalWarnings.Load() }
func (w *Watchdog) TotalChecks() uint64           { return w.totalChecks.Load() }
func (w *Watchdog) Budget() time.Duration         { return time.Duration(w.budget.Load()) }
func (w *Watchdog) WarningThreshold() time.Duration { return time.Duration(w.warningThreshold.Load()) }

// ViolationRate returns the percentage of checks that missed the deadline.
func (w *Watchdog) ViolationRate() float64 {
	checks := w.totalChecks.Load()
	if checks == 0 {
		return 0
	}
	return float64(w.totalViolations.Load()) / float64(checks) * 100
}

// WarningRate returns the percentage of checks that exceeded the warning
// threshold.
func (w *Watchdog) WarningRate() float64 {
	checks := w.totalChecks.Load()
	if checks == 0 {
		return 0
	}
	return float64(w.totalWarnings.Load()) / float64(checks) * 100
}

// MeanExecutionNs returns the running mean execution time.
func (w *Watchdog) MeanExecutionNs() float64 {
	checks := w.totalChecks.Load()
	if checks == 0 {
		return 0
	}
	return float64(w.sumExecNs.Load()) / float64(checks)
}

// MinExecutionNs returns the minimum observed execution time, or 0 if no
// checks have run yet.
func (w *Watchdog) MinExecutionNs() uint64 {
	v := w.minExecNs.Load()
	if v == ^uint64(0) {
		return 0
	}
	return v
}

func (w *Watchdog) MaxExecutionNs() uint64 { return w.maxExecNs.Load() }

// IsCritical reports whether consecutive misses have reached the critical
// threshold.
func (w *Watchdog) IsCritical() bool {
	return w.consecutiveMisses.Load() >= w.criticalThreshold
}

// IsHealthy reports whether the lifetime violation rate is under 1% and the
// watchdog is not currently in a critical streak.
func (w *Watchdog) IsHealthy() bool {
	return w.ViolationRate() < 1.0 && !w.IsCritical()
}
