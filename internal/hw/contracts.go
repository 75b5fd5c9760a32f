// Package hw defines the sensor/actuator capability contracts that the
// simulated BPM, BIC, and magnet models satisfy, plus the bookkeeping
// (statistics, health predicates, rate limiting) common to all of them.
// The Modbus and serial clients under hw/modbus and hw/serialps implement
// comm.CommunicationInterface, not these contracts.
//
// Nothing in the module calls through the Sensor or Actuator interfaces;
// the control loop is monomorphized over a concrete Bundle so the hot path
// never pays for dynamic dispatch.
package hw

import (
	"time"

	"beamctl/pkg/types"
)

// Sensor is satisfied by every readable beamline device.
type Sensor interface {
	Read() (float64, error)
	ReadWithMetadata() types.SensorReading
	Initialize() error
	Shutdown()
	SelfTest() bool

	ID() string
	TypeName() string
	Units() string
	Range() (float64, float64)
	Resolution() float64

	Statistics() types.Stats
	ResetStatistics()
	LastError() types.ErrorKind
	IsHealthy() bool
}

// Actuator is satisfied by every commandable beamline device.
type Actuator interface {
	Set(value float64) error
	Get() float64
	SetWithResult(value float64) types.ActuatorSetResult
	Initialize() error
	Shutdown()
	SelfTest() bool
	EmergencyStop()

	ID() string
	TypeName() string
	Units() string
	Resolution() float64

	SetLimits(min, max float64)
	Limits() (float64, float64)
	SetRateLimit(maxRatePerSec float64)
	RateLimit() float64
	IsAtTarget(tolerance float64) bool
	Target() float64

	Statistics() types.Stats
	ResetStatistics()
	LastError() types.ErrorKind
	IsHealthy() bool
}

// BaseSensor holds the bookkeeping every concrete Sensor implementation
// shares: id, init flag, last error, and rolling statistics. Concrete
// models embed it and add Read, ReadWithMetadata, TypeName, Units, Range,
// Resolution, SelfTest, and IsHealthy, overriding Initialize where they
// have state of their own to reset.
type BaseSensor struct {
	id          string
	initialized bool
	lastError   types.ErrorKind
	stats       types.Stats
}

func NewBaseSensor(id string) BaseSensor {
	return BaseSensor{id: id}
}

func (b *BaseSensor) ID() string               { return b.id }
func (b *BaseSensor) Initialize() error        { b.initialized = true; return nil }
func (b *BaseSensor) Shutdown()                { b.initialized = false }
func (b *BaseSensor) LastError() types.ErrorKind { return b.lastError }
func (b *BaseSensor) Statistics() types.Stats  { return b.stats }
func (b *BaseSensor) ResetStatistics()         { b.stats = types.Stats{} }

func (b *BaseSensor) isHealthy(threshold float64) bool {
	return b.initialized && b.lastError == types.ErrOK && b.stats.SuccessRate() > threshold
}

func (b *BaseSensor) recordSuccess(readTimeUs float64) {
	b.stats.Total++
	b.stats.Successful++
	if b.stats.Total == 1 || readTimeUs < b.stats.MinLatencyUs {
		b.stats.MinLatencyUs = readTimeUs
	}
	if readTimeUs > b.stats.MaxLatencyUs {
		b.stats.MaxLatencyUs = readTimeUs
	}
	b.stats.SumLatencyUs += readTimeUs
	b.lastError = types.ErrOK
}

func (b *BaseSensor) recordError(kind types.ErrorKind) {
	b.stats.Total++
	b.stats.Errors++
	if kind == types.ErrTimeout {
		b.stats.Timeouts++
	}
	b.lastError = kind
}

// ReadWithMetadataFrom runs readFn, timing it and updating statistics, and
// returns a fully populated types.SensorReading. readFn never panics in
// this codebase's models; a HardwareError is returned normally instead.
func (b *BaseSensor) ReadWithMetadataFrom(readFn func() (float64, error)) types.SensorReading {
	start := time.Now()
	value, err := readFn()
	elapsedUs := float64(time.Since(start).Microseconds())

	if err != nil {
		kind := types.ErrUnknown
		var herr *types.HardwareError
		if as, ok := err.(*types.HardwareError); ok {
			herr = as
			kind = herr.Kind
		}
		b.recordError(kind)
		return types.SensorReading{Value: 0, Timestamp: time.Now(), Kind: kind, Valid: false, Quality: 0}
	}

	b.recordSuccess(elapsedUs)
	return types.SensorReading{Value: value, Timestamp: time.Now(), Kind: types.ErrOK, Valid: true, Quality: 1}
}

// BaseActuator holds the bookkeeping every concrete Actuator shares: range
// checking, rate limiting against the last accepted command, and rolling
// statistics.
type BaseActuator struct {
	id          string
	initialized bool
	lastError   types.ErrorKind
	stats       types.Stats

	minValue float64
	maxValue float64
	maxRate  float64

	current float64
	target  float64

	haveLastCommand  bool
	lastCommandTime  time.Time
	lastCommandValue float64
}

func NewBaseActuator(id string) BaseActuator {
	return BaseActuator{id: id, minValue: -1e6, maxValue: 1e6, maxRate: 1e6}
}

func (b *BaseActuator) ID() string                 { return b.id }
func (b *BaseActuator) Initialize() error          { b.initialized = true; return nil }
func (b *BaseActuator) Shutdown()                  { b.initialized = false }
func (b *BaseActuator) LastError() types.ErrorKind { return b.lastError }
func (b *BaseActuator) Statistics() types.Stats    { return b.stats }
func (b *BaseActuator) ResetStatistics()           { b.stats = types.Stats{} }
func (b *BaseActuator) SetLimits(min, max float64) { b.minValue, b.maxValue = min, max }
func (b *BaseActuator) Limits() (float64, float64) { return b.minValue, b.maxValue }
func (b *BaseActuator) SetRateLimit(r float64)     { b.maxRate = r }
func (b *BaseActuator) RateLimit() float64         { return b.maxRate }
func (b *BaseActuator) Target() float64            { return b.target }

func (b *BaseActuator) IsAtTarget(tolerance float64) bool {
	diff := b.current - b.target
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func (b *BaseActuator) isHealthy(threshold float64) bool {
	return b.initialized && b.lastError == types.ErrOK && b.stats.SuccessRate() > threshold
}

// checkRangeAndRate validates value against the configured range and
// against the rate limit measured since the last accepted command. On the
// first call after Initialize, the rate check is skipped: there is no
// history yet.
func (b *BaseActuator) checkRangeAndRate(value float64) types.ErrorKind {
	if !b.initialized {
		return types.ErrNotInitialized
	}
	if value < b.minValue || value > b.maxValue {
		return types.ErrOutOfRange
	}
	if b.haveLastCommand {
		dt := time.Since(b.lastCommandTime).Seconds()
		if dt > 0 {
			rate := (value - b.lastCommandValue) / dt
			if rate < 0 {
				rate = -rate
			}
			if rate > b.maxRate {
				return types.ErrRateLimit
			}
		}
	}
	return types.ErrOK
}

// SetWithResultUsing performs the range/rate check, calls setFn on success,
// and reads back via getFn, updating statistics and bookkeeping the same
// way for every concrete actuator.
func (b *BaseActuator) SetWithResultUsing(value float64, setFn func(float64) error, getFn func() float64) types.ActuatorSetResult {
	start := time.Now()

	if kind := b.checkRangeAndRate(value); kind != types.ErrOK {
		b.recordActuatorError(kind)
		return types.ActuatorSetResult{Success: false, Commanded: value, Actual: getFn(), Kind: kind, Timestamp: time.Now()}
	}

	if err := setFn(value); err != nil {
		kind := types.ErrUnknown
		if herr, ok := err.(*types.HardwareError); ok {
			kind = herr.Kind
		}
		b.recordActuatorError(kind)
		return types.ActuatorSetResult{Success: false, Commanded: value, Actual: getFn(), Kind: kind, Timestamp: time.Now()}
	}

	execUs := float64(time.Since(start).Microseconds())
	b.target = value
	b.haveLastCommand = true
	b.lastCommandTime = time.Now()
	b.lastCommandValue = value
	b.recordActuatorSuccess(value, execUs)

	actual := getFn()
	b.current = actual

	return types.ActuatorSetResult{Success: true, Commanded: value, Actual: actual, Kind: types.ErrOK, Timestamp: time.Now(), ExecTimeUs: execUs}
}

func (b *BaseActuator) recordActuatorSuccess(commanded, execUs float64) {
	b.stats.Total++
	b.stats.Successful++
	if execUs > b.stats.MaxLatencyUs {
		b.stats.MaxLatencyUs = execUs
	}
	if b.stats.Total == 1 || execUs < b.stats.MinLatencyUs {
		b.stats.MinLatencyUs = execUs
	}
	b.stats.SumLatencyUs += execUs
	b.lastError = types.ErrOK
}

func (b *BaseActuator) recordActuatorError(kind types.ErrorKind) {
	b.stats.Total++
	b.stats.Errors++
	b.lastError = kind
}
