//go:build linux

package rtprio

import "golang.org/x/sys/unix"

func lockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

func setAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

func setPriority(priority int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, priority)
}
