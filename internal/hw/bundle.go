package hw

import "beamctl/pkg/types"

// Bundle groups the concrete simulated devices the control loop is
// monomorphized over. The loop calls BPM.Read/BIC.Read/Magnet.SetWithResult
// directly on these concrete types — never through the Sensor/Actuator
// interfaces — so the hot path pays no dynamic-dispatch cost.
type Bundle struct {
	BPM    *BPM
	BIC    *BIC
	Magnet *Magnet
}

// NewSimulatedBundle builds a Bundle from SystemConfig's bpm/bic/magnet
// sections, entirely in the deterministic simulation backend. This is the
// only bundle constructor in the module. The Modbus and serial clients are
// transport-level comm.CommunicationInterface implementations, not
// Sensor/Actuator devices, and the config's backend fields are not read
// here or anywhere else.
func NewSimulatedBundle(cfg types.SystemConfig) *Bundle {
	bpm := NewBPM(cfg.Bpm.ID, cfg.Bpm.NoiseSeed)
	bpm.EnableNoise(cfg.Bpm.NoiseEnabled)
	if cfg.Bpm.ChamberRadiusMm > 0 {
		bpm.SetChamberRadius(cfg.Bpm.ChamberRadiusMm)
	}
	sensX, sensY := cfg.Bpm.SensitivityX, cfg.Bpm.SensitivityY
	if sensX == 0 {
		sensX = 1
	}
	if sensY == 0 {
		sensY = 1
	}
	bpm.SetCalibration(sensX, sensY, cfg.Bpm.OffsetX, cfg.Bpm.OffsetY, cfg.Bpm.RotationDeg)
	if cfg.Bpm.TemperatureC != 0 {
		bpm.SetTemperature(cfg.Bpm.TemperatureC)
	}
	if cfg.Bpm.TempCoeff != 0 {
		bpm.tempCoeff = cfg.Bpm.TempCoeff
	}
	if cfg.Bpm.GainMismatch != 0 {
		bpm.SetElectrodeGainMismatch(cfg.Bpm.GainMismatch)
	}
	bpm.SetBeamCurrent(cfg.Bpm.BeamCurrentMa)
	if cfg.Bpm.ReadoutAxis == "y" {
		bpm.SetReadoutAxis(types.AxisY)
	}
	_ = bpm.Initialize()

	bic := NewBIC(cfg.Bic.ID, cfg.Bic.NoiseSeed)
	bic.EnableNoise(cfg.Bic.NoiseEnabled)
	bic.SetTrueIntensity(cfg.Bic.TrueIntensityCps)
	bic.SetDarkCurrent(cfg.Bic.DarkCurrentCps)
	if cfg.Bic.QuantumEfficiency > 0 {
		bic.SetQuantumEfficiency(cfg.Bic.QuantumEfficiency)
	}
	if cfg.Bic.IntegrationTimeS > 0 {
		bic.SetIntegrationTime(cfg.Bic.IntegrationTimeS)
	}
	if cfg.Bic.SaturationCps > 0 {
		bic.SetSaturation(cfg.Bic.SaturationCps, cfg.Bic.SaturationEnabled)
	}
	if cfg.Bic.GainStability != 0 {
		bic.SetGainVariationRate(cfg.Bic.GainStability)
	}
	if cfg.Bic.TemperatureC != 0 {
		bic.SetTemperature(cfg.Bic.TemperatureC)
	}
	if cfg.Bic.TempCoeff != 0 {
		bic.SetTempCoeff(cfg.Bic.TempCoeff)
	}
	if cfg.Bic.LinearityCoeff != 0 {
		bic.SetLinearityError(cfg.Bic.LinearityCoeff)
	}
	scale := cfg.Bic.CalibrationScale
	if scale == 0 {
		scale = 1
	}
	conv := cfg.Bic.ConversionFactor
	if conv == 0 {
		conv = 1
	}
	bic.SetCalibration(scale, cfg.Bic.CalibrationOffset, conv)
	_ = bic.Initialize()

	magnet := NewMagnet(cfg.Magnet.ID, cfg.Magnet.NoiseSeed)
	magnet.EnableNoise(cfg.Magnet.NoiseEnabled)
	if cfg.Magnet.InductanceH > 0 {
		magnet.SetInductance(cfg.Magnet.InductanceH)
	}
	if cfg.Magnet.ResistanceOhm > 0 {
		magnet.SetResistance(cfg.Magnet.ResistanceOhm)
	}
	if cfg.Magnet.FieldConstant != 0 {
		magnet.SetFieldConstant(cfg.Magnet.FieldConstant)
	}
	if cfg.Magnet.SaturationA > 0 {
		magnet.SetSaturation(cfg.Magnet.SaturationA, cfg.Magnet.SaturationField)
	}
	if cfg.Magnet.SlewRateAPerS > 0 {
		magnet.SetSlewRate(cfg.Magnet.SlewRateAPerS)
	}
	if cfg.Magnet.TemperatureC != 0 {
		magnet.SetTemperature(cfg.Magnet.TemperatureC)
	}
	if cfg.Magnet.TempCoeffR != 0 {
		magnet.SetTempCoeffR(cfg.Magnet.TempCoeffR)
	}
	if cfg.Magnet.TempCoeffB != 0 {
		magnet.SetTempCoeffB(cfg.Magnet.TempCoeffB)
	}
	if cfg.Magnet.HysteresisWidth != 0 {
		magnet.SetHysteresis(cfg.Magnet.HysteresisWidth)
	}
	if cfg.Magnet.QuenchThreshold > 0 {
		// SystemConfig carries quench_threshold as a 0..1 fraction of
		// saturation current; Magnet's own setter takes a 0..100 percent.
		magnet.SetQuenchThreshold(cfg.Magnet.QuenchThreshold * 100)
	}
	magnet.SetLimits(cfg.Limits.MagnetMin, cfg.Limits.MagnetMax)
	_ = magnet.Initialize()

	return &Bundle{BPM: bpm, BIC: bic, Magnet: magnet}
}
