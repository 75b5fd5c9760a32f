package hw

import (
	"testing"
	"time"
)

func TestMagnetTracksSetpointWithinSlewLimit(t *testing.T) {
	m := NewMagnet("mag1", 1111)
	m.Initialize()
	m.EnableNoise(false)

	for i := 0; i < 200; i++ {
		// Set integrates over the wall-clock time since the previous call;
		// back-date it so each step covers 100ms instead of microseconds.
		m.lastUpdateTime = time.Now().Add(-100 * time.Millisecond)
		if err := m.Set(1.0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if m.Current() < 0.8 {
		t.Fatalf("expected current to converge near 1.0A, got %v", m.Current())
	}
}

func TestMagnetRejectsSetBeforeInitialize(t *testing.T) {
	m := NewMagnet("mag1", 2222)
	if err := m.Set(1.0); err == nil {
		t.Fatalf("expected error setting uninitialized magnet")
	}
}

func TestMagnetQuenchLatchesInterlock(t *testing.T) {
	m := NewMagnet("mag1", 3333)
	m.Initialize()
	m.EnableNoise(false)
	m.SetSlewRate(1e6)
	m.SetQuenchThreshold(50.0)

	// One second of elapsed time: alpha = 1/(0.1+1) so the current lands
	// near 91% of saturation, well above the 50% quench threshold.
	m.lastUpdateTime = time.Now().Add(-time.Second)
	m.Set(m.saturationA)
	if !m.IsInterlocked() {
		t.Fatalf("expected quench interlock to latch")
	}
	if m.Current() != 0 {
		t.Fatalf("expected current forced to zero on quench, got %v", m.Current())
	}
}

func TestMagnetEmergencyStopZeroesImmediately(t *testing.T) {
	m := NewMagnet("mag1", 4444)
	m.Initialize()
	m.EnableNoise(false)
	m.SetSlewRate(1e6)
	m.Set(2.0)

	m.EmergencyStop()
	if m.Current() != 0 || m.Field() != 0 {
		t.Fatalf("expected current and field zeroed by emergency stop")
	}
	if err := m.Set(1.0); err == nil {
		t.Fatalf("expected Set to be rejected while emergency stop is latched")
	}
}

func TestMagnetResetEmergencyStopAllowsSetAgain(t *testing.T) {
	m := NewMagnet("mag1", 5555)
	m.Initialize()
	m.EmergencyStop()
	m.ResetEmergencyStop()

	if err := m.Set(0.1); err != nil {
		t.Fatalf("expected Set to succeed after reset, got %v", err)
	}
}

func TestMagnetSelfTest(t *testing.T) {
	m := NewMagnet("mag1", 6666)
	m.Initialize()
	if !m.SelfTest() {
		t.Fatalf("expected self test to pass")
	}
}
