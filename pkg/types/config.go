package types

import "time"

// SystemConfig is the top-level YAML-deserializable configuration for the
// whole controller: loop cadence, transport endpoints, PID gains, the
// simulated or real hardware backends, MPS thresholds, and the ambient
// logging/real-time knobs.
type SystemConfig struct {
	Loop            LoopSection     `yaml:"loop"`
	CommandEndpoint string          `yaml:"command_endpoint"`
	TelemetryEndpoint string        `yaml:"telemetry_endpoint"`
	Pid             PidSection      `yaml:"pid"`
	Limits          LimitsSection   `yaml:"limits"`
	Bpm             BpmSection      `yaml:"bpm"`
	Bic             BicSection      `yaml:"bic"`
	Magnet          MagnetSection   `yaml:"magnet"`
	Mps             MpsSection      `yaml:"mps"`
	Realtime        RealtimeSection `yaml:"realtime"`
	Logging         LoggingSection  `yaml:"logging"`
}

type LoopSection struct {
	FrequencyHz    float64 `yaml:"frequency_hz"`
	ControlEnabled bool    `yaml:"control_enabled"`
}

type PidSection struct {
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	Kd            float64 `yaml:"kd"`
	Setpoint      float64 `yaml:"setpoint"`
	IntegratorMin float64 `yaml:"integrator_min"`
	IntegratorMax float64 `yaml:"integrator_max"`
}

type LimitsSection struct {
	MagnetMin float64 `yaml:"magnet_min"`
	MagnetMax float64 `yaml:"magnet_max"`
}

type BpmSection struct {
	ID              string  `yaml:"id"`
	Backend         string  `yaml:"backend"` // sim|modbus|serial
	NoiseSeed       uint64  `yaml:"noise_seed"`
	NoiseEnabled    bool    `yaml:"noise_enabled"`
	ChamberRadiusMm float64 `yaml:"chamber_radius_mm"`
	SensitivityX    float64 `yaml:"sensitivity_x"`
	SensitivityY    float64 `yaml:"sensitivity_y"`
	OffsetX         float64 `yaml:"offset_x"`
	OffsetY         float64 `yaml:"offset_y"`
	RotationDeg     float64 `yaml:"rotation_deg"`
	ReadoutAxis     string  `yaml:"readout_axis"` // "x"|"y"
	TemperatureC    float64 `yaml:"temperature_c"`
	TempCoeff       float64 `yaml:"temp_coeff"`
	GainMismatch    float64 `yaml:"gain_mismatch"`
	BeamCurrentMa   float64 `yaml:"beam_current_ma"`
	VibrationHz     float64 `yaml:"vibration_hz"`
	Modbus          ModbusBackendSection `yaml:"modbus"`
}

type BicSection struct {
	ID                  string  `yaml:"id"`
	Backend             string  `yaml:"backend"`
	NoiseSeed           uint64  `yaml:"noise_seed"`
	NoiseEnabled        bool    `yaml:"noise_enabled"`
	TrueIntensityCps    float64 `yaml:"true_intensity_cps"`
	DarkCurrentCps      float64 `yaml:"dark_current_cps"`
	QuantumEfficiency   float64 `yaml:"quantum_efficiency"`
	IntegrationTimeS    float64 `yaml:"integration_time_s"`
	SaturationCps       float64 `yaml:"saturation_cps"`
	SaturationEnabled   bool    `yaml:"saturation_enabled"`
	Gain                float64 `yaml:"gain"`
	GainStability       float64 `yaml:"gain_stability"`
	TemperatureC        float64 `yaml:"temperature_c"`
	TempCoeff           float64 `yaml:"temp_coeff"`
	LinearityCoeff      float64 `yaml:"linearity_coeff"`
	CalibrationScale    float64 `yaml:"calibration_scale"`
	CalibrationOffset   float64 `yaml:"calibration_offset"`
	ConversionFactor    float64 `yaml:"conversion_factor"`
	Modbus              ModbusBackendSection `yaml:"modbus"`
}

type MagnetSection struct {
	ID               string  `yaml:"id"`
	Backend          string  `yaml:"backend"` // sim|modbus|serial
	NoiseSeed        uint64  `yaml:"noise_seed"`
	NoiseEnabled     bool    `yaml:"noise_enabled"`
	InductanceH      float64 `yaml:"inductance_h"`
	ResistanceOhm    float64 `yaml:"resistance_ohm"`
	FieldConstant    float64 `yaml:"field_constant"`
	SaturationA      float64 `yaml:"saturation_a"`
	SaturationField  float64 `yaml:"saturation_field"`
	SlewRateAPerS    float64 `yaml:"slew_rate_a_per_s"`
	TemperatureC     float64 `yaml:"temperature_c"`
	TempCoeffR       float64 `yaml:"temp_coeff_r"`
	TempCoeffB       float64 `yaml:"temp_coeff_b"`
	HysteresisWidth  float64 `yaml:"hysteresis_width"`
	QuenchThreshold  float64 `yaml:"quench_threshold"`
	Modbus           ModbusBackendSection `yaml:"modbus"`
	Serial           SerialBackendSection `yaml:"serial"`
}

type ModbusBackendSection struct {
	Type     string        `yaml:"type"` // tcp|rtu|ascii
	Address  string        `yaml:"address"`
	Port     int           `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	SlaveID  byte          `yaml:"slave_id"`
	Register uint16        `yaml:"register"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SerialBackendSection struct {
	PortName string        `yaml:"port_name"`
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MpsSection struct {
	Blms           []string `yaml:"blms"`
	WarnThreshold  float64  `yaml:"warn_threshold"`
	AbortThreshold float64  `yaml:"abort_threshold"`
}

type RealtimeSection struct {
	Enabled  bool `yaml:"enabled"`
	CPUCore  int  `yaml:"cpu_core"`
	Priority int  `yaml:"priority"`
	MlockAll bool `yaml:"mlock_all"`
}

type LoggingSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultSystemConfig returns the configuration used by the end-to-end
// scenarios: 1 kHz simulated loop, default PID gains, default magnet
// limits, three BLMs.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Loop:              LoopSection{FrequencyHz: 1000, ControlEnabled: true},
		CommandEndpoint:   "127.0.0.1:5555",
		TelemetryEndpoint: "127.0.0.1:5556",
		Pid: PidSection{
			Kp: 0.6, Ki: 0.05, Kd: 0,
			IntegratorMin: -10, IntegratorMax: 10,
		},
		Limits: LimitsSection{MagnetMin: -2.0, MagnetMax: 2.0},
		Bpm: BpmSection{
			ID: "BPM_01", Backend: "sim", NoiseSeed: 12345, NoiseEnabled: true,
			ChamberRadiusMm: 10.0, SensitivityX: 1, SensitivityY: 1,
			ReadoutAxis: "x", TemperatureC: 20, BeamCurrentMa: 500, VibrationHz: 50,
		},
		Bic: BicSection{
			ID: "BIC_01", Backend: "sim", NoiseSeed: 12346, NoiseEnabled: true,
			TrueIntensityCps: 1e6, QuantumEfficiency: 0.9, IntegrationTimeS: 0.001,
			SaturationCps: 5e6, SaturationEnabled: true, Gain: 1, GainStability: 0.01,
			TemperatureC: 20, CalibrationScale: 1, ConversionFactor: 1,
		},
		Magnet: MagnetSection{
			ID: "MAG_01", Backend: "sim", NoiseSeed: 12347, NoiseEnabled: true,
			InductanceH: 0.05, ResistanceOhm: 2.0, FieldConstant: 0.1,
			SaturationA: 2.0, SaturationField: 0.2, SlewRateAPerS: 5.0,
			TemperatureC: 20, HysteresisWidth: 0.01, QuenchThreshold: 0.95,
		},
		Mps: MpsSection{
			Blms:           []string{"upstream", "target", "downstream"},
			WarnThreshold:  1e-6,
			AbortThreshold: 1e-5,
		},
		Realtime: RealtimeSection{Enabled: false, CPUCore: -1, Priority: 0},
		Logging:  LoggingSection{Level: "info", Format: "text", Output: "stdout"},
	}
}
