package hw

import "testing"

func TestBICTracksTrueIntensity(t *testing.T) {
	c := NewBIC("bic1", 555)
	c.Initialize()
	c.EnableNoise(false)
	c.SetTrueIntensity(10000)

	v, err := c.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v < 5000 || v > 15000 {
		t.Fatalf("expected reading near 10000, got %v", v)
	}
}

func TestBICNeverNegative(t *testing.T) {
	c := NewBIC("bic1", 666)
	c.Initialize()
	c.SetTrueIntensity(0)

	for i := 0; i < 200; i++ {
		v, err := c.Read()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v < 0 {
			t.Fatalf("BIC reading went negative: %v", v)
		}
	}
}

func TestBICGainVariationIsPerInstance(t *testing.T) {
	a := NewBIC("bicA", 777)
	b := NewBIC("bicB", 777)
	a.Initialize()
	b.Initialize()
	a.SetTrueIntensity(1000)
	b.SetTrueIntensity(1000)

	for i := 0; i < 20; i++ {
		a.Read()
	}
	// b has not been read yet; its gain variation must still be at the
	// initial value, proving the two sensors don't share state.
	if b.gainVariation != 1.0 {
		t.Fatalf("expected untouched instance to retain initial gain variation, got %v", b.gainVariation)
	}
}

func TestBICRejectsReadBeforeInitialize(t *testing.T) {
	c := NewBIC("bic1", 888)
	if _, err := c.Read(); err == nil {
		t.Fatalf("expected error reading uninitialized BIC")
	}
}

func TestBICSelfTest(t *testing.T) {
	c := NewBIC("bic1", 999)
	c.Initialize()
	if !c.SelfTest() {
		t.Fatalf("expected self test to pass")
	}
}
