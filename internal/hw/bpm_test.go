package hw

import (
	"testing"

	"beamctl/pkg/types"
)

func TestBPMReadsCalibratedPosition(t *testing.T) {
	b := NewBPM("bpm1", 111)
	b.Initialize()
	b.EnableNoise(false)
	b.SetElectrodeGainMismatch(0)
	b.SetBeamPosition(2.5, 0)

	v, err := b.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v < 2.0 || v > 3.0 {
		t.Fatalf("expected reading near 2.5, got %v", v)
	}
}

func TestBPMRejectsReadBeforeInitialize(t *testing.T) {
	b := NewBPM("bpm1", 111)
	if _, err := b.Read(); err == nil {
		t.Fatalf("expected error reading uninitialized BPM")
	}
}

func TestBPMAxisSelect(t *testing.T) {
	b := NewBPM("bpm1", 222)
	b.Initialize()
	b.EnableNoise(false)
	b.SetElectrodeGainMismatch(0)
	b.SetBeamPosition(1.0, 5.0)
	b.SetReadoutAxis(types.AxisY)

	v, _ := b.Read()
	if v < 4.0 || v > 6.0 {
		t.Fatalf("expected Y-axis reading near 5.0, got %v", v)
	}
}

func TestBPMHealthAfterManyGoodReads(t *testing.T) {
	b := NewBPM("bpm1", 333)
	b.Initialize()
	for i := 0; i < 50; i++ {
		b.Read()
	}
	if !b.IsHealthy() {
		t.Fatalf("expected healthy BPM after successful reads")
	}
}

func TestBPMSelfTest(t *testing.T) {
	b := NewBPM("bpm1", 444)
	b.Initialize()
	if !b.SelfTest() {
		t.Fatalf("expected self test to pass")
	}
}
