package noise

import "math"

// BPMNoise composes the noise sources seen by a beam position monitor:
// thermal and electronics Gaussian floors, beam-current-dependent shot
// noise, sinusoidal mechanical vibration with jitter, and pink drift.
type BPMNoise struct {
	gen *Generator

	ThermalLevelMm     float64
	ElectronicsLevelMm float64
	VibrationAmplitude float64
	VibrationHz        float64

	phase float64
}

func NewBPMNoise(seed uint64) *BPMNoise {
	return &BPMNoise{
		gen:                NewGenerator(seed),
		ThermalLevelMm:     0.001,
		ElectronicsLevelMm: 0.0005,
		VibrationAmplitude: 0.01,
		VibrationHz:        50.0,
	}
}

// Generate returns the total BPM noise in mm for the given beam current
// (mA) and elapsed time since the previous read.
func (n *BPMNoise) Generate(beamCurrentMa, dt float64) float64 {
	thermal := n.gen.GaussianFast(n.ThermalLevelMm)
	electronics := n.gen.GaussianFast(n.ElectronicsLevelMm)

	shotLevel := 0.01 / math.Sqrt(math.Max(beamCurrentMa, 1.0))
	shot := n.gen.GaussianFast(shotLevel)

	n.phase += 2.0 * math.Pi * n.VibrationHz * dt
	vibration := n.VibrationAmplitude*math.Sin(n.phase) + n.gen.GaussianFast(n.VibrationAmplitude*0.1)

	drift := n.gen.PinkNoise(0.002)

	return thermal + electronics + shot + vibration + drift
}

func (n *BPMNoise) Reset() { n.gen.Reset(); n.phase = 0 }

// BICNoise composes the noise sources seen by a beam intensity counter:
// Poisson counting statistics, multiplicative gain variation, and additive
// electronics noise, all relative to a dark-current floor.
type BICNoise struct {
	gen *Generator

	DarkCurrentCps float64
	GainVariation  float64
}

func NewBICNoise(seed uint64) *BICNoise {
	return &BICNoise{gen: NewGenerator(seed), DarkCurrentCps: 10.0, GainVariation: 0.02}
}

// Generate returns a noisy measured-intensity sample for the given true
// intensity.
func (n *BICNoise) Generate(trueIntensity float64) float64 {
	baseCounts := trueIntensity + n.DarkCurrentCps
	poissonCounts := n.gen.Poisson(baseCounts)

	gainFactor := 1.0 + n.gen.GaussianFast(n.GainVariation)
	electronics := n.gen.GaussianFast(math.Sqrt(baseCounts) * 0.1)

	return math.Max(0, (poissonCounts+electronics)*gainFactor-n.DarkCurrentCps)
}

func (n *BICNoise) Reset() { n.gen.Reset() }

// MagnetNoise composes the noise sources seen by a steering-magnet power
// supply: current stability, supply ripple, pink drift, and 16-bit DAC
// quantization.
type MagnetNoise struct {
	gen *Generator

	CurrentStability float64
	RippleAmplitude  float64
	RippleHz         float64

	ripplePhase float64
}

func NewMagnetNoise(seed uint64) *MagnetNoise {
	return &MagnetNoise{
		gen:              NewGenerator(seed),
		CurrentStability: 1e-5,
		RippleAmplitude:  1e-4,
		RippleHz:         100.0,
	}
}

// Generate returns the noise term (not the noisy current itself) to add to
// the commanded current for the given commanded value and elapsed time.
func (n *MagnetNoise) Generate(commandedCurrent, dt float64) float64 {
	stability := n.gen.GaussianFast(math.Abs(commandedCurrent) * n.CurrentStability)

	n.ripplePhase += 2.0 * math.Pi * n.RippleHz * dt
	ripple := n.RippleAmplitude * math.Abs(commandedCurrent) * math.Sin(n.ripplePhase)

	drift := n.gen.PinkNoise(math.Abs(commandedCurrent) * 1e-6)

	const fullScale = 20.0 // span of the +-10A DAC range
	quantized := n.gen.QuantizationNoise(commandedCurrent, 16, fullScale)

	return (quantized - commandedCurrent) + stability + ripple + drift
}

func (n *MagnetNoise) Reset() { n.gen.Reset(); n.ripplePhase = 0 }
