// Package safety implements the machine protection system: a chain of beam
// loss monitors arbitrated by an MPS that can latch a beam abort the moment
// any one of them crosses its threshold.
package safety

import (
	"math"
	"sync/atomic"
)

// AlarmCallback receives a human-readable alarm message. Runs on the
// control loop goroutine and must not block.
type AlarmCallback func(message string)

// BLM simulates a radiation detector watching for dangerous beam loss at a
// fixed point along the beamline.
type BLM struct {
	id string

	lossRate        atomic.Uint64 // float64 bits
	warningThreshold atomic.Uint64
	abortThreshold  atomic.Uint64

	warningActive atomic.Bool
	abortActive   atomic.Bool

	totalMeasurements atomic.Uint64
	warningCount      atomic.Uint64
	abortCount        atomic.Uint64

	onWarning AlarmCallback
	onAbort   func(id string, lossRate float64)
}

// NewBLM returns a BLM with the default warning/abort thresholds (1e-6 and
// 1e-5 Gy/s).
func NewBLM(id string) *BLM {
	b := &BLM{id: id}
	b.warningThreshold.Store(math.Float64bits(1e-6))
	b.abortThreshold.Store(math.Float64bits(1e-5))
	return b
}

func (b *BLM) ID() string { return b.id }

func (b *BLM) SetWarningThreshold(v float64) { b.warningThreshold.Store(math.Float64bits(v)) }
func (b *BLM) SetAbortThreshold(v float64)   { b.abortThreshold.Store(math.Float64bits(v)) }
func (b *BLM) SetWarningCallback(cb AlarmCallback) { b.onWarning = cb }
func (b *BLM) setAbortCallback(cb func(id string, lossRate float64)) { b.onAbort = cb }

func (b *BLM) LossRate() float64 { return math.Float64frombits(b.lossRate.Load()) }
func (b *BLM) IsWarningActive() bool { return b.warningActive.Load() }
func (b *BLM) IsAbortActive() bool   { return b.abortActive.Load() }

// UpdateMeasurement simulates one loss-rate sample from the given beam
// conditions and reports whether it is within safe limits. Loss grows with
// beam current and with how far off-center the beam sits.
func (b *BLM) UpdateMeasurement(beamCurrentMa, beamPositionMm float64) bool {
	b.totalMeasurements.Add(1)

	// base rate tuned so that check_safety(50000, 10) against the default
	// 1e-6/1e-5 thresholds lands in abort, matching the documented scenario.
	const baseLoss = 1.2e-7
	positionFactor := 1.0 + math.Abs(beamPositionMm)*0.1
	currentFactor := beamCurrentMa / 1000.0
	simulatedLoss := baseLoss * positionFactor * currentFactor
	b.lossRate.Store(math.Float64bits(simulatedLoss))

	warnThresh := math.Float64frombits(b.warningThreshold.Load())
	abortThresh := math.Float64frombits(b.abortThreshold.Load())

	warningTriggered := simulatedLoss > warnThresh
	abortTriggered := simulatedLoss > abortThresh

	if abortTriggered {
		if !b.abortActive.Load() {
			b.abortActive.Store(true)
			b.abortCount.Add(1)
			if b.onAbort != nil {
				b.onAbort(b.id, simulatedLoss)
			}
		}
		return false
	}

	if warningTriggered && !b.warningActive.Load() {
		b.warningActive.Store(true)
		b.warningCount.Add(1)
		if b.onWarning != nil {
			b.onWarning("BLM warning: " + b.id)
		}
	}

	if !warningTriggered {
		b.warningActive.Store(false)
	}
	if !abortTriggered {
		b.abortActive.Store(false)
	}

	return true
}

// Stats is a point-in-time snapshot of a BLM's counters.
type Stats struct {
	TotalMeasurements uint64
	WarningCount      uint64
	AbortCount        uint64
	CurrentLossRate   float64
	WarningActive     bool
	AbortActive       bool
}

func (b *BLM) Statistics() Stats {
	return Stats{
		TotalMeasurements: b.totalMeasurements.Load(),
		WarningCount:      b.warningCount.Load(),
		AbortCount:        b.abortCount.Load(),
		CurrentLossRate:   b.LossRate(),
		WarningActive:     b.warningActive.Load(),
		AbortActive:       b.abortActive.Load(),
	}
}

func (b *BLM) ResetStatistics() {
	b.totalMeasurements.Store(0)
	b.warningCount.Store(0)
	b.abortCount.Store(0)
	b.warningActive.Store(false)
	b.abortActive.Store(false)
}
