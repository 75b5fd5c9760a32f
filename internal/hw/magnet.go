package hw

import (
	"math"
	"time"

	"beamctl/internal/noise"
	"beamctl/pkg/types"
)

// Magnet simulates a steering-magnet power supply: slew-rate-limited
// setpoint tracking, first-order L/R current dynamics, hysteresis and
// saturation in the resulting field, a quench interlock, and accumulated
// resistive energy dissipation.
type Magnet struct {
	BaseActuator

	noiseGen *noise.MagnetNoise
	noiseOn  bool

	inductanceH   float64
	resistanceOhm float64
	fieldConstant float64

	saturationA     float64
	saturationField float64
	slewRateAPerS   float64

	temperatureC   float64
	tempCoeffR     float64
	tempCoeffB     float64
	hysteresis     float64
	quenchThreshold float64 // percent of saturation current

	actualCurrent   float64
	currentSetpoint float64
	magneticField   float64
	totalEnergyJ    float64

	emergencyStopActive bool
	interlockActive     bool

	lastUpdateTime time.Time
}

// NewMagnet returns a Magnet with representative steering-corrector
// parameters and the given noise seed.
func NewMagnet(id string, noiseSeed uint64) *Magnet {
	return &Magnet{
		BaseActuator:    NewBaseActuator(id),
		noiseGen:        noise.NewMagnetNoise(noiseSeed),
		noiseOn:         true,
		inductanceH:     0.1,
		resistanceOhm:   1.0,
		fieldConstant:   0.01,
		saturationA:     10.0,
		saturationField: 0.08,
		slewRateAPerS:   5.0,
		temperatureC:    20.0,
		tempCoeffR:      0.004,
		tempCoeffB:      -0.0002,
		hysteresis:      0.0005,
		quenchThreshold: 95.0,
		lastUpdateTime:  time.Now(),
	}
}

// Initialize marks the magnet ready and restarts the clock Set integrates
// over. Current, field, and the quench/emergency-stop latches are left as
// they are; ResetInterlock and ResetEmergencyStop clear the latches.
func (m *Magnet) Initialize() error {
	if err := m.BaseActuator.Initialize(); err != nil {
		return err
	}
	m.lastUpdateTime = time.Now()
	return nil
}

func (m *Magnet) SetInductance(h float64)       { m.inductanceH = h }
func (m *Magnet) SetResistance(ohm float64)      { m.resistanceOhm = ohm }
func (m *Magnet) SetFieldConstant(k float64)     { m.fieldConstant = k }
func (m *Magnet) SetSaturation(ampsCap, fieldCap float64) {
	m.saturationA, m.saturationField = ampsCap, fieldCap
}
func (m *Magnet) SetSlewRate(aPerS float64)   { m.slewRateAPerS = aPerS }
func (m *Magnet) SetTemperature(c float64)    { m.temperatureC = c }
func (m *Magnet) SetTempCoeffR(v float64)     { m.tempCoeffR = v }
func (m *Magnet) SetTempCoeffB(v float64)     { m.tempCoeffB = v }
func (m *Magnet) SetHysteresis(v float64)     { m.hysteresis = v }
func (m *Magnet) SetQuenchThreshold(pct float64) { m.quenchThreshold = pct }
func (m *Magnet) EnableNoise(enable bool)     { m.noiseOn = enable }

func (m *Magnet) Current() float64       { return m.actualCurrent }
func (m *Magnet) Field() float64         { return m.magneticField }
func (m *Magnet) TotalEnergy() float64   { return m.totalEnergyJ }
func (m *Magnet) IsInterlocked() bool    { return m.interlockActive }
func (m *Magnet) IsEmergencyStopped() bool { return m.emergencyStopActive }

func (m *Magnet) ResetInterlock() { m.interlockActive = false }
func (m *Magnet) ResetEmergencyStop() { m.emergencyStopActive = false }

// Set implements the Actuator contract's raw command.
func (m *Magnet) Set(requestedCurrent float64) error {
	if !m.initialized {
		return types.NewHardwareError("magnet.set", types.ErrNotInitialized, nil)
	}
	if m.emergencyStopActive {
		return types.NewHardwareError("magnet.set", types.ErrInterlock, nil)
	}
	if m.interlockActive {
		return types.NewHardwareError("magnet.set", types.ErrInterlock, nil)
	}

	now := time.Now()
	dt := now.Sub(m.lastUpdateTime).Seconds()
	if dt <= 0 {
		dt = 1e-6
	}
	m.lastUpdateTime = now

	maxChange := m.slewRateAPerS * dt
	requestedChange := requestedCurrent - m.actualCurrent
	if requestedChange > maxChange {
		requestedChange = maxChange
	} else if requestedChange < -maxChange {
		requestedChange = -maxChange
	}
	slewLimited := m.actualCurrent + requestedChange

	rEff := m.resistanceOhm * (1.0 + (m.temperatureC-20.0)*m.tempCoeffR)
	tau := m.inductanceH / rEff
	alpha := dt / (tau + dt)
	newCurrent := alpha*slewLimited + (1.0-alpha)*m.actualCurrent

	if m.noiseOn {
		newCurrent += m.noiseGen.Generate(newCurrent, dt)
	}

	if m.saturationA > 0 {
		ratio := math.Abs(newCurrent) / m.saturationA * 100.0
		if ratio > m.quenchThreshold {
			m.interlockActive = true
			newCurrent = 0
		}
	}

	currentChange := newCurrent - m.actualCurrent
	m.actualCurrent = newCurrent
	m.currentSetpoint = requestedCurrent

	m.updateMagneticField(currentChange, rEff)

	power := newCurrent * newCurrent * rEff
	m.totalEnergyJ += power * dt

	return nil
}

func (m *Magnet) updateMagneticField(currentChange, rEff float64) {
	current := m.actualCurrent

	linearField := current * m.fieldConstant
	var saturatedField float64
	if m.saturationA > 0 {
		saturatedField = m.saturationField * math.Tanh(current/m.saturationA)
	}

	var field float64
	if math.Abs(current) < m.saturationA*0.9 {
		field = linearField
	} else {
		field = saturatedField
	}

	if currentChange > 0 {
		field -= m.hysteresis * 0.5
	} else if currentChange < 0 {
		field += m.hysteresis * 0.5
	}

	field *= 1.0 + (m.temperatureC-20.0)*m.tempCoeffB

	m.magneticField = field
}

// Get implements the Actuator contract's raw readback.
func (m *Magnet) Get() float64 { return m.actualCurrent }

// SetWithResult implements the Actuator contract.
func (m *Magnet) SetWithResult(value float64) types.ActuatorSetResult {
	return m.SetWithResultUsing(value, m.Set, m.Get)
}

// EmergencyStop latches the stop and zeroes current, setpoint, and field
// immediately, bypassing slew-rate and L/R dynamics entirely.
func (m *Magnet) EmergencyStop() {
	m.emergencyStopActive = true
	m.actualCurrent = 0
	m.currentSetpoint = 0
	m.magneticField = 0
}

func (m *Magnet) TypeName() string    { return "Magnet" }
func (m *Magnet) Units() string       { return "A" }
func (m *Magnet) Resolution() float64 { return 0.001 }

func (m *Magnet) IsHealthy() bool { return m.isHealthy(95.0) }

// SelfTest commands a small current step with noise disabled and checks
// the actuator responds in the right direction without tripping the
// quench interlock.
func (m *Magnet) SelfTest() bool {
	if !m.initialized || m.emergencyStopActive || m.interlockActive {
		return false
	}

	oldNoise := m.noiseOn
	oldCurrent := m.actualCurrent
	m.EnableNoise(false)

	start := m.actualCurrent
	err := m.Set(start + 0.1)

	m.EnableNoise(oldNoise)

	if err != nil {
		return false
	}
	ok := m.actualCurrent > oldCurrent && !m.interlockActive
	return ok
}
