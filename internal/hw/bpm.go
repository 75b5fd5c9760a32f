package hw

import (
	"math"
	"time"

	"beamctl/internal/noise"
	"beamctl/pkg/types"
)

// BPM simulates a beam position monitor: true (x, y) position rotated into
// the electrode frame, selected down to one readout axis, calibrated,
// corrected for temperature, and finally perturbed by noise and a small
// electrode-gain-mismatch nonlinearity.
type BPM struct {
	BaseSensor

	noiseGen *noise.BPMNoise
	noiseOn  bool

	trueX, trueY  float64
	beamCurrentMa float64
	chamberRadius float64

	sensitivityX, sensitivityY float64
	offsetX, offsetY           float64
	rotationRad                float64
	readoutAxis                types.Axis

	temperatureC     float64
	tempCoeff        float64
	electrodeGainMismatch float64

	lastReadTime time.Time
	lastReading  float64
	readCount    uint64
}

// NewBPM returns a BPM with the default calibration (unit sensitivity, no
// offset, X readout, 10mm chamber) and the given noise seed.
func NewBPM(id string, noiseSeed uint64) *BPM {
	return &BPM{
		BaseSensor:    NewBaseSensor(id),
		noiseGen:      noise.NewBPMNoise(noiseSeed),
		noiseOn:       true,
		chamberRadius: 10.0,
		sensitivityX:  1.0,
		sensitivityY:  1.0,
		readoutAxis:   types.AxisX,
		temperatureC:  20.0,
		tempCoeff:     0.001,
		electrodeGainMismatch: 0.02,
		lastReadTime:  time.Now(),
	}
}

// Initialize resets read statistics and the vibration/drift state.
func (b *BPM) Initialize() error {
	if err := b.BaseSensor.Initialize(); err != nil {
		return err
	}
	b.readCount = 0
	b.noiseGen.Reset()
	b.lastReadTime = time.Now()
	return nil
}

// SetBeamPosition sets the true, unperturbed beam position (for simulation
// control — not a hardware operation).
func (b *BPM) SetBeamPosition(xMm, yMm float64) { b.trueX, b.trueY = xMm, yMm }

func (b *BPM) BeamPosition() (float64, float64) { return b.trueX, b.trueY }

func (b *BPM) SetBeamCurrent(ma float64) { b.beamCurrentMa = ma }
func (b *BPM) BeamCurrent() float64      { return b.beamCurrentMa }

func (b *BPM) SetReadoutAxis(axis types.Axis) { b.readoutAxis = axis }
func (b *BPM) ReadoutAxis() types.Axis        { return b.readoutAxis }

// SetCalibration configures per-axis sensitivity/offset and the rotation
// (in degrees) applied before axis selection.
func (b *BPM) SetCalibration(sensX, sensY, offX, offY, rotationDeg float64) {
	b.sensitivityX, b.sensitivityY = sensX, sensY
	b.offsetX, b.offsetY = offX, offY
	b.rotationRad = rotationDeg * math.Pi / 180.0
}

func (b *BPM) SetTemperature(c float64)          { b.temperatureC = c }
func (b *BPM) EnableNoise(enable bool)           { b.noiseOn = enable }
func (b *BPM) SetChamberRadius(radiusMm float64) { b.chamberRadius = radiusMm }
func (b *BPM) SetElectrodeGainMismatch(m float64) { b.electrodeGainMismatch = m }
func (b *BPM) LastReading() float64              { return b.lastReading }
func (b *BPM) ReadCount() uint64                 { return b.readCount }

// Read implements the Sensor contract's raw read.
func (b *BPM) Read() (float64, error) {
	if !b.initialized {
		return 0, types.NewHardwareError("bpm.read", types.ErrNotInitialized, nil)
	}

	b.readCount++
	now := time.Now()
	dt := now.Sub(b.lastReadTime).Seconds()
	b.lastReadTime = now

	rotatedX := b.trueX*math.Cos(b.rotationRad) - b.trueY*math.Sin(b.rotationRad)
	rotatedY := b.trueX*math.Sin(b.rotationRad) + b.trueY*math.Cos(b.rotationRad)

	var truePos, sensitivity, offset float64
	if b.readoutAxis == types.AxisX {
		truePos, sensitivity, offset = rotatedX, b.sensitivityX, b.offsetX
	} else {
		truePos, sensitivity, offset = rotatedY, b.sensitivityY, b.offsetY
	}

	position := truePos*sensitivity + offset
	position += (b.temperatureC - 20.0) * b.tempCoeff

	if b.noiseOn {
		position += b.noiseGen.Generate(b.beamCurrentMa, dt)
	}

	if b.electrodeGainMismatch > 0 {
		normalized := position / b.chamberRadius
		position += b.electrodeGainMismatch * normalized * normalized * sign(normalized)
	}

	b.lastReading = position
	return position, nil
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// ReadWithMetadata implements the Sensor contract.
func (b *BPM) ReadWithMetadata() types.SensorReading {
	return b.ReadWithMetadataFrom(b.Read)
}

func (b *BPM) TypeName() string          { return "BPM" }
func (b *BPM) Units() string             { return "mm" }
func (b *BPM) Range() (float64, float64) { return -b.chamberRadius, b.chamberRadius }
func (b *BPM) Resolution() float64       { return 0.001 }

func (b *BPM) IsHealthy() bool { return b.isHealthy(90.0) }

// SelfTest drives a known position with noise disabled and checks the
// readout is within tolerance of the expected value.
func (b *BPM) SelfTest() bool {
	if !b.initialized {
		return false
	}
	if b.sensitivityX <= 0.1 || b.sensitivityX >= 10.0 {
		return false
	}
	if b.sensitivityY <= 0.1 || b.sensitivityY >= 10.0 {
		return false
	}

	oldX, oldY := b.trueX, b.trueY
	oldAxis := b.readoutAxis
	oldNoise := b.noiseOn

	b.SetBeamPosition(1.0, 0.0)
	b.SetReadoutAxis(types.AxisX)
	b.EnableNoise(false)

	reading, err := b.Read()

	b.SetBeamPosition(oldX, oldY)
	b.SetReadoutAxis(oldAxis)
	b.EnableNoise(oldNoise)

	if err != nil {
		return false
	}
	return math.Abs(reading-1.0) < 0.5
}
