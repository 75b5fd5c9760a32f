package safety

import "testing"

func TestCheckSafetyPassesUnderThreshold(t *testing.T) {
	m := NewMPS()
	if !m.CheckSafety(100, 0) {
		t.Fatalf("expected safe condition at low current/position")
	}
	if m.IsAbortActive() {
		t.Fatalf("expected no abort")
	}
}

func TestCheckSafetyAbortsOverThreshold(t *testing.T) {
	m := NewMPS()
	// matches the documented end-to-end scenario: high current and large
	// off-center position drives the simulated loss rate over the abort
	// threshold.
	if m.CheckSafety(50000, 10) {
		t.Fatalf("expected beam abort at high current/position")
	}
	if !m.IsAbortActive() {
		t.Fatalf("expected abort to be latched")
	}
}

func TestCheckSafetyStaysAbortedUntilReset(t *testing.T) {
	m := NewMPS()
	m.CheckSafety(50000, 10)
	if m.CheckSafety(0, 0) {
		t.Fatalf("expected MPS to stay tripped even with safe conditions")
	}
	m.ResetMPS()
	if !m.CheckSafety(0, 0) {
		t.Fatalf("expected MPS to recover after reset")
	}
}

func TestTriggerBeamAbortFiresCallbacks(t *testing.T) {
	m := NewMPS()
	abortFired := false
	var alarmMsg string
	m.SetBeamAbortCallback(func() { abortFired = true })
	m.SetAlarmCallback(func(msg string) { alarmMsg = msg })

	m.TriggerBeamAbort("manual", "test")

	if !abortFired {
		t.Fatalf("expected beam abort callback to fire")
	}
	if alarmMsg == "" {
		t.Fatalf("expected alarm callback to fire")
	}
}

func TestBLMLookupByID(t *testing.T) {
	m := NewMPS("A", "B", "C")
	if m.BLM("B") == nil {
		t.Fatalf("expected to find BLM B")
	}
	if m.BLM("missing") != nil {
		t.Fatalf("expected nil for unknown BLM id")
	}
}
