package noise

import (
	"math"
	"testing"
)

func TestBPMShotNoiseScalesWithCurrent(t *testing.T) {
	lowCurrent := NewBPMNoise(1)
	highCurrent := NewBPMNoise(1)

	var lowSum, highSum float64
	const n = 5000
	for i := 0; i < n; i++ {
		lowSum += math.Abs(lowCurrent.Generate(1, 0.001))
		highSum += math.Abs(highCurrent.Generate(1000, 0.001))
	}

	if highSum >= lowSum {
		t.Fatalf("expected noise at high current (%v) to be smaller than at low current (%v)", highSum, lowSum)
	}
}

func TestBICNoiseNeverNegative(t *testing.T) {
	n := NewBICNoise(9)
	for i := 0; i < 1000; i++ {
		if v := n.Generate(10); v < 0 {
			t.Fatalf("BIC noise produced negative intensity: %v", v)
		}
	}
}

func TestMagnetNoiseReproducible(t *testing.T) {
	a := NewMagnetNoise(55)
	b := NewMagnetNoise(55)

	for i := 0; i < 1000; i++ {
		va := a.Generate(0.5, 0.001)
		vb := b.Generate(0.5, 0.001)
		if va != vb {
			t.Fatalf("sample %d diverged", i)
		}
	}
}
