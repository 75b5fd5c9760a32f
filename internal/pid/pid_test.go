package pid

import "testing"

func TestIntegratorStaysWithinLimits(t *testing.T) {
	c := NewController(0, 10, 0)
	c.SetIntegratorLimits(-1, 1)
	c.Setpoint = 5

	for i := 0; i < 1000; i++ {
		c.Step(0, 0.01, -1, 1)
		if c.Integrator() < -1 || c.Integrator() > 1 {
			t.Fatalf("integrator escaped limits: %v", c.Integrator())
		}
	}
}

func TestConditionalAntiWindupHoldsWhenSaturating(t *testing.T) {
	c := NewController(1, 10, 0)
	c.Setpoint = 5
	c.SetIntegratorLimits(-100, 100)

	// Drive the output hard into positive saturation and hold it there.
	var out float64
	for i := 0; i < 200; i++ {
		out = c.Step(0, 0.01, -1, 1)
	}
	if out != 1 {
		t.Fatalf("expected output to saturate at 1, got %v", out)
	}
	integAfterSaturation := c.Integrator()

	// Continuing to saturate further must not push the integrator up more.
	for i := 0; i < 50; i++ {
		c.Step(0, 0.01, -1, 1)
	}
	if c.Integrator() > integAfterSaturation+1e-9 {
		t.Fatalf("integrator grew further into saturation: %v -> %v", integAfterSaturation, c.Integrator())
	}
}

func TestSetSetpointNoDerivativeKick(t *testing.T) {
	c := NewController(0, 0, 2)
	c.Setpoint = 0

	c.Step(0, 0.01, -100, 100) // prime prevErr

	before := c.prevErr
	c.SetSetpoint(10, true)

	// The next step's derivative should equal kd*(e - prevErr)/dt where e is
	// computed against the NEW setpoint; the transform keeps this term at
	// what it would have been without the jump.
	expectedErr := c.Setpoint - 0
	gotDerivativeInput := expectedErr - c.prevErr
	wantDerivativeInput := expectedErr - (10 - (0 - before))
	if gotDerivativeInput != wantDerivativeInput {
		t.Fatalf("derivative kick not suppressed: got %v want %v", gotDerivativeInput, wantDerivativeInput)
	}
}

func TestResetClearsState(t *testing.T) {
	c := NewController(1, 1, 1)
	c.Setpoint = 5
	c.Step(0, 0.01, -10, 10)
	c.Reset()

	if c.Integrator() != 0 || c.prevErr != 0 || c.Error() != 0 {
		t.Fatalf("reset did not clear state: integ=%v prevErr=%v err=%v", c.Integrator(), c.prevErr, c.Error())
	}
}

func TestStepClampsOutput(t *testing.T) {
	c := NewController(100, 0, 0)
	c.Setpoint = 1000
	out := c.Step(0, 0.01, -1, 1)
	if out != 1 {
		t.Fatalf("expected clamp to 1, got %v", out)
	}
}
