// Package rtprio applies advisory OS-level real-time preparation to the
// calling thread: memory locking, CPU affinity, and scheduling priority.
// None of it is required for correctness; it exists to reduce scheduling
// jitter on the control loop's goroutine. Every step is best-effort and
// logged at warn on failure rather than treated as fatal.
package rtprio

import (
	"runtime"

	"beamctl/internal/logging"
)

var logger = logging.GetLogger("rtprio")

// Options configures the real-time prelude. Core of -1 auto-selects the
// last available CPU. Priority is a nice-value style scheduling priority
// passed to unix.Setpriority (lower is higher priority).
type Options struct {
	Core       int
	Priority   int
	LockMemory bool
}

func DefaultOptions() Options {
	return Options{
		Core:       -1,
		Priority:   -10,
		LockMemory: true,
	}
}

// Apply pins the calling goroutine's OS thread (via runtime.LockOSThread),
// then attempts memory locking, CPU affinity, and priority elevation in
// that order, logging and continuing past any failure. The caller must
// keep running on this goroutine afterward; Apply does not unlock the
// thread.
func Apply(opts Options) {
	runtime.LockOSThread()

	if opts.LockMemory {
		if err := lockMemory(); err != nil {
			logger.Warn("could not lock memory, timing may suffer from page faults", "error", err)
		} else {
			logger.Info("memory locked")
		}
	}

	core := opts.Core
	if core < 0 {
		n := runtime.NumCPU()
		if n > 0 {
			core = n - 1
		} else {
			core = 0
		}
	}
	if err := setAffinity(core); err != nil {
		logger.Warn("could not set cpu affinity", "core", core, "error", err)
	} else {
		logger.Info("cpu affinity set", "core", core)
	}

	if err := setPriority(opts.Priority); err != nil {
		logger.Warn("could not raise scheduling priority, run as root or raise rtprio limits", "priority", opts.Priority, "error", err)
	} else {
		logger.Info("scheduling priority set", "priority", opts.Priority)
	}
}
