//go:build !linux

package rtprio

import "errors"

var errUnsupported = errors.New("rtprio: not supported on this platform")

func lockMemory() error {
	return errUnsupported
}

func setAffinity(core int) error {
	return errUnsupported
}

func setPriority(priority int) error {
	return errUnsupported
}
