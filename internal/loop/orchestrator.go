// Package loop implements the control loop orchestrator: the single
// cooperative real-time goroutine that owns the PID controller, the
// hardware bundle, the safety system, and the command/telemetry boundary,
// and drives them through one fixed cycle every period.
package loop

import (
	"context"
	"math"
	"time"

	"beamctl/internal/command"
	"beamctl/internal/hw"
	"beamctl/internal/logging"
	"beamctl/internal/pid"
	"beamctl/internal/rtclock"
	"beamctl/internal/safety"
	"beamctl/internal/telemetry"
	"beamctl/internal/watchdog"
	"beamctl/pkg/types"

	"sync/atomic"
)

// Orchestrator is the sole writer of every piece of loop state. External
// observers only ever see it through the atomic fields below (running,
// control_enabled, emergency_stop, frequency, loop_count, deadline_misses)
// or through the published telemetry stream — never through a raw pointer
// into loop internals.
type Orchestrator struct {
	bundle   *hw.Bundle
	pidCtl   *pid.Controller
	limits   types.Limits
	clock    *rtclock.PeriodicClock
	watchdog *watchdog.Watchdog
	mps      *safety.MPS

	cmdServer *command.Server
	publisher *telemetry.Publisher

	running        atomic.Bool
	controlEnabled atomic.Bool
	emergencyStop  atomic.Bool
	frequencyHz    atomic.Uint64 // float64 bits
	loopCount      atomic.Uint64
	deadlineMisses atomic.Uint64

	lastLoopTimeNs atomic.Uint64
	maxLoopTimeNs  atomic.Uint64
	sumLoopTimeNs  atomic.Uint64

	startTime time.Time
	logger    *logging.Logger
}

// NewOrchestrator wires a loop around bundle using cfg's PID gains, limits,
// loop frequency, and MPS/BLM thresholds. cmdServer and publisher may be
// nil (useful for tests that drive runCycle directly without a transport).
func NewOrchestrator(cfg types.SystemConfig, bundle *hw.Bundle, cmdServer *command.Server, publisher *telemetry.Publisher) *Orchestrator {
	period := time.Duration(float64(time.Second) / cfg.Loop.FrequencyHz)

	o := &Orchestrator{
		bundle:    bundle,
		pidCtl:    pid.NewController(cfg.Pid.Kp, cfg.Pid.Ki, cfg.Pid.Kd),
		limits:    types.Limits{Min: cfg.Limits.MagnetMin, Max: cfg.Limits.MagnetMax},
		clock:     rtclock.NewPeriodicClock(period),
		watchdog:  watchdog.New(period, 0.8),
		mps:       safety.NewMPS(cfg.Mps.Blms...),
		cmdServer: cmdServer,
		publisher: publisher,
		startTime: time.Now(),
		logger:    logging.GetLogger("loop_orchestrator"),
	}

	o.pidCtl.SetIntegratorLimits(cfg.Pid.IntegratorMin, cfg.Pid.IntegratorMax)
	o.pidCtl.SetSetpoint(cfg.Pid.Setpoint, false)
	o.controlEnabled.Store(cfg.Loop.ControlEnabled)
	o.frequencyHz.Store(math.Float64bits(cfg.Loop.FrequencyHz))

	for _, id := range cfg.Mps.Blms {
		blm := o.mps.BLM(id)
		if blm == nil {
			continue
		}
		if cfg.Mps.WarnThreshold > 0 {
			blm.SetWarningThreshold(cfg.Mps.WarnThreshold)
		}
		if cfg.Mps.AbortThreshold > 0 {
			blm.SetAbortThreshold(cfg.Mps.AbortThreshold)
		}
	}

	o.mps.SetBeamAbortCallback(func() { o.logger.Warn("beam abort triggered") })
	o.mps.SetAlarmCallback(func(message string) { o.logger.Warn("mps alarm", "message", message) })

	return o
}

// Run executes the loop until Stop is called, ctx is cancelled, or the
// "stop" command is received. It always performs the §4.10 shutdown
// sequence before returning.
func (o *Orchestrator) Run(ctx context.Context) {
	o.running.Store(true)

	for o.running.Load() {
		select {
		case <-ctx.Done():
			o.running.Store(false)
			continue
		default:
		}

		o.runCycle()
	}

	o.shutdown()
}

// Stop requests a graceful exit after the current cycle completes.
func (o *Orchestrator) Stop()         { o.running.Store(false) }
func (o *Orchestrator) IsRunning() bool { return o.running.Load() }

// runCycle executes exactly one pass of the documented nine-step cycle.
func (o *Orchestrator) runCycle() {
	loopStart := time.Now()

	position, posErr := o.bundle.BPM.Read()
	intensity, intErr := o.bundle.BIC.Read()

	if posErr != nil || intErr != nil {
		err := posErr
		if err == nil {
			err = intErr
		}
		o.emitErrorFrame(err)
		o.emergencyStop.Store(true)
		o.finishCycle()
		return
	}

	mpsOK := o.mps.CheckSafety(intensity, position)
	if !mpsOK {
		o.emergencyStop.Store(true)
		o.controlEnabled.Store(false)
	}

	controlEnabled := o.controlEnabled.Load()
	emergencyStop := o.emergencyStop.Load()

	if controlEnabled && !emergencyStop {
		dt := o.clock.Period().Seconds()
		u := o.pidCtl.Step(position, dt, o.limits.Min, o.limits.Max)
		u = o.limits.Clamp(u)
		o.bundle.Magnet.SetWithResult(u)

		// Plant-coupling simulation: the steering magnet's command feeds
		// back into the BPM's true position so the closed loop is
		// testable without physical hardware. The orchestrator is the
		// sole writer of both devices each cycle.
		o.bundle.BPM.SetBeamPosition(-0.4*u, 0)
	} else {
		o.bundle.Magnet.SetWithResult(0)
	}

	loopEnd := time.Now()
	missed := o.watchdog.Check(loopStart, loopEnd)
	loopTimeNs := uint64(loopEnd.Sub(loopStart))
	o.updateLoopTimeStats(loopTimeNs)

	o.emitTelemetryFrame(position, intensity, loopTimeNs, missed, mpsOK)

	if missed {
		misses := o.deadlineMisses.Add(1)
		if misses%10 == 0 {
			o.reduceFrequency()
		}
	}

	o.finishCycle()
}

func (o *Orchestrator) finishCycle() {
	o.drainCommand()
	o.loopCount.Add(1)
	o.clock.WaitNext()
	o.watchdog.Reset()
}

// drainCommand performs the ≤1ms non-blocking command poll. Dispatch runs
// here, on the loop goroutine, so it can read and mutate loop state
// without any locking.
func (o *Orchestrator) drainCommand() {
	if o.cmdServer == nil {
		return
	}
	req, reply, ok := o.cmdServer.Receive(1 * time.Millisecond)
	if !ok {
		return
	}
	reply(o.dispatch(req))
}

func (o *Orchestrator) dispatch(req types.CommandRequest) types.CommandResponse {
	switch req.Cmd {
	case "set_pid":
		if kp, ok := floatParam(req.Raw, "kp"); ok {
			o.pidCtl.Kp = kp
		}
		if ki, ok := floatParam(req.Raw, "ki"); ok {
			o.pidCtl.Ki = ki
		}
		if kd, ok := floatParam(req.Raw, "kd"); ok {
			o.pidCtl.Kd = kd
		}
		return types.OkResponse()

	case "set_freq":
		hz, ok := floatParam(req.Raw, "hz")
		if !ok {
			return types.ErrResponse("missing hz")
		}
		o.setFrequency(types.ClampFrequency(hz))
		return types.OkResponse()

	case "set_setpoint":
		sp, ok := floatParam(req.Raw, "sp")
		if !ok {
			return types.ErrResponse("missing sp")
		}
		o.pidCtl.SetSetpoint(sp, true)
		return types.OkResponse()

	case "recommission":
		o.pidCtl.Reset()
		o.pidCtl.SetSetpoint(0, true)
		o.bundle.Magnet.ResetEmergencyStop()
		o.bundle.Magnet.ResetInterlock()
		_ = o.bundle.Magnet.Set(0)
		o.emergencyStop.Store(false)
		o.mps.ResetMPS()
		o.deadlineMisses.Store(0)
		o.loopCount.Store(0)
		return types.OkResponse()

	case "emergency_stop":
		o.emergencyStop.Store(true)
		o.controlEnabled.Store(false)
		o.bundle.Magnet.EmergencyStop()
		return types.OkResponse()

	case "enable_control":
		enable, _ := req.Raw["enable"].(bool)
		if o.emergencyStop.Load() {
			return types.OkResponse()
		}
		o.controlEnabled.Store(enable)
		if !enable {
			o.bundle.Magnet.SetWithResult(0)
		}
		return types.OkResponse()

	case "get_status":
		return types.CommandResponse{
			"ok":              true,
			"loop_frequency":  math.Float64frombits(o.frequencyHz.Load()),
			"loop_count":      o.loopCount.Load(),
			"deadline_misses": o.deadlineMisses.Load(),
			"control_enabled": o.controlEnabled.Load(),
			"emergency_stop":  o.emergencyStop.Load(),
			"mps_safe":        o.mps.IsBeamPermitted(),
			"pid_gains": map[string]interface{}{
				"kp": o.pidCtl.Kp, "ki": o.pidCtl.Ki, "kd": o.pidCtl.Kd,
			},
			"setpoint": o.pidCtl.Setpoint,
		}

	case "stop":
		o.running.Store(false)
		return types.OkResponse()

	default:
		return types.ErrResponse("Unknown command")
	}
}

func (o *Orchestrator) setFrequency(hz float64) {
	period := time.Duration(float64(time.Second) / hz)
	o.clock.SetPeriod(period)
	o.watchdog.SetBudget(period)
	o.frequencyHz.Store(math.Float64bits(hz))
}

// reduceFrequency implements the every-10th-cumulative-miss frequency
// backoff: multiply by 0.8, clamp to the supported band, and announce it
// on the alarm topic.
func (o *Orchestrator) reduceFrequency() {
	oldFreq := math.Float64frombits(o.frequencyHz.Load())
	newFreq := types.ClampFrequency(oldFreq * 0.8)
	o.setFrequency(newFreq)
	o.publish(types.TopicAlarm, map[string]interface{}{
		"type":     "frequency_reduced",
		"old_freq": oldFreq,
		"new_freq": newFreq,
		"reason":   "deadline_misses",
	})
}

func (o *Orchestrator) updateLoopTimeStats(ns uint64) {
	o.lastLoopTimeNs.Store(ns)
	for {
		cur := o.maxLoopTimeNs.Load()
		if ns <= cur || o.maxLoopTimeNs.CompareAndSwap(cur, ns) {
			break
		}
	}
	o.sumLoopTimeNs.Add(ns)
}

func (o *Orchestrator) emitTelemetryFrame(position, intensity float64, loopTimeNs uint64, missed, mpsOK bool) {
	o.publish(types.TopicTelemetry, map[string]interface{}{
		"t":               time.Since(o.startTime).Seconds(),
		"pos":             position,
		"intensity":       intensity,
		"mag":             o.bundle.Magnet.Current(),
		"deadline_miss":   boolToInt(missed),
		"loop_time_ms":    float64(loopTimeNs) / 1e6,
		"pid_error":       o.pidCtl.Error(),
		"pid_p":           o.pidCtl.Proportional(),
		"pid_i":           o.pidCtl.Integral(),
		"pid_d":           o.pidCtl.Derivative(),
		"control_enabled": o.controlEnabled.Load(),
		"emergency_stop":  o.emergencyStop.Load(),
		"mps_safe":        mpsOK,
		"mps_abort":       o.mps.IsAbortActive(),
	})
}

func (o *Orchestrator) emitErrorFrame(err error) {
	o.logger.Error("loop cycle error", "error", err)
	o.publish(types.TopicError, map[string]interface{}{
		"type":       "loop_error",
		"error":      err.Error(),
		"loop_count": o.loopCount.Load(),
	})
}

func (o *Orchestrator) shutdown() {
	_ = o.bundle.Magnet.Set(0)
	o.publish(types.TopicStatus, map[string]interface{}{
		"type":       "shutdown",
		"loop_count": o.loopCount.Load(),
	})
	o.logger.Info("loop stopped", "loop_count", o.loopCount.Load())
}

func (o *Orchestrator) publish(topic string, fields map[string]interface{}) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(types.TelemetryFrame{Topic: topic, Fields: fields}); err != nil {
		o.logger.Warn("telemetry publish failed", "error", err)
	}
}

func floatParam(raw map[string]interface{}, key string) (float64, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
