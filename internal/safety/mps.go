package safety

import "sync/atomic"

// MPS coordinates an ordered chain of beam loss monitors and can latch a
// beam-wide abort the instant any one of them reports an unsafe condition.
// Once tripped, CheckSafety returns false on every subsequent call until
// ResetMPS clears the abort.
type MPS struct {
	blms []*BLM

	beamPermit     atomic.Bool
	abortTriggered atomic.Bool
	totalAborts    atomic.Uint64

	onBeamAbort func()
	onAlarm     AlarmCallback
}

// NewMPS returns an MPS owning BLMs at the given ids, in order. The default
// beamline layout is upstream/target/downstream.
func NewMPS(blmIDs ...string) *MPS {
	if len(blmIDs) == 0 {
		blmIDs = []string{"BLM_UPSTREAM", "BLM_TARGET", "BLM_DOWNSTREAM"}
	}
	m := &MPS{}
	m.beamPermit.Store(true)
	for _, id := range blmIDs {
		m.addBLM(id)
	}
	return m
}

func (m *MPS) addBLM(id string) {
	blm := NewBLM(id)
	blm.setAbortCallback(func(blmID string, lossRate float64) {
		m.TriggerBeamAbort("BLM_THRESHOLD_EXCEEDED", blmID)
	})
	blm.SetWarningCallback(func(message string) {
		if m.onAlarm != nil {
			m.onAlarm(message)
		}
	})
	m.blms = append(m.blms, blm)
}

// CheckSafety updates every BLM in order with the current beam conditions.
// It stops at the first unsafe BLM and triggers an abort, exactly matching
// a hardware interlock chain's fail-fast behavior.
func (m *MPS) CheckSafety(beamCurrentMa, beamPositionMm float64) bool {
	if !m.beamPermit.Load() {
		return false
	}
	if m.abortTriggered.Load() {
		return false
	}

	for _, blm := range m.blms {
		if !blm.UpdateMeasurement(beamCurrentMa, beamPositionMm) {
			return false
		}
	}
	return true
}

// TriggerBeamAbort latches the abort state, revokes the beam permit, and
// fires the abort/alarm callbacks. Safe to call directly (e.g. from a
// watchdog critical callback) as well as from a tripped BLM.
func (m *MPS) TriggerBeamAbort(reason, source string) {
	m.abortTriggered.Store(true)
	m.beamPermit.Store(false)
	m.totalAborts.Add(1)

	if m.onBeamAbort != nil {
		m.onBeamAbort()
	}
	if m.onAlarm != nil {
		message := "BEAM ABORT: " + reason
		if source != "" {
			message += " (source: " + source + ")"
		}
		m.onAlarm(message)
	}
}

// ResetMPS clears the abort latch, restores the beam permit, and resets
// every BLM's statistics.
func (m *MPS) ResetMPS() {
	m.abortTriggered.Store(false)
	m.beamPermit.Store(true)
	for _, blm := range m.blms {
		blm.ResetStatistics()
	}
}

func (m *MPS) SetBeamAbortCallback(cb func())       { m.onBeamAbort = cb }
func (m *MPS) SetAlarmCallback(cb AlarmCallback)     { m.onAlarm = cb }
func (m *MPS) IsBeamPermitted() bool                 { return m.beamPermit.Load() && !m.abortTriggered.Load() }
func (m *MPS) IsAbortActive() bool                   { return m.abortTriggered.Load() }
func (m *MPS) TotalAborts() uint64                   { return m.totalAborts.Load() }

func (m *MPS) BLM(id string) *BLM {
	for _, blm := range m.blms {
		if blm.ID() == id {
			return blm
		}
	}
	return nil
}

func (m *MPS) AllStatistics() []Stats {
	stats := make([]Stats, 0, len(m.blms))
	for _, blm := range m.blms {
		stats = append(stats, blm.Statistics())
	}
	return stats
}
