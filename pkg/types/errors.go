// Package types holds the data model shared by every component of the
// beam steering controller: readings, setpoints, limits, and the error
// taxonomy that crosses package boundaries without losing its shape.
package types

// ErrorKind classifies a hardware or protocol failure without collapsing it
// into an opaque error string. Device bookkeeping records and checks the
// ErrorKind; only the human-readable message is allowed to vary freely.
type ErrorKind int

const (
	ErrOK ErrorKind = iota
	ErrTimeout
	ErrCommunication
	ErrOutOfRange
	ErrCalibration
	ErrHardwareFault
	ErrRateLimit
	ErrInterlock
	ErrPowerFault
	ErrOverTemperature
	ErrNotInitialized
	ErrUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOK:
		return "ok"
	case ErrTimeout:
		return "timeout"
	case ErrCommunication:
		return "communication"
	case ErrOutOfRange:
		return "out_of_range"
	case ErrCalibration:
		return "calibration"
	case ErrHardwareFault:
		return "hardware_fault"
	case ErrRateLimit:
		return "rate_limit"
	case ErrInterlock:
		return "interlock"
	case ErrPowerFault:
		return "power_fault"
	case ErrOverTemperature:
		return "over_temperature"
	case ErrNotInitialized:
		return "not_initialized"
	default:
		return "unknown"
	}
}

// HardwareError pairs an ErrorKind with the operation that produced it so
// that %w-wrapped errors still carry a taxonomy a caller can switch on via
// errors.As.
type HardwareError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *HardwareError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *HardwareError) Unwrap() error { return e.Err }

func NewHardwareError(op string, kind ErrorKind, err error) *HardwareError {
	return &HardwareError{Kind: kind, Op: op, Err: err}
}
