package noise

import (
	"math"
	"testing"
)

func TestReproducibleSequence(t *testing.T) {
	a := NewGenerator(12345)
	b := NewGenerator(12345)

	for i := 0; i < 10000; i++ {
		va := a.Gaussian(0, 1)
		vb := b.Gaussian(0, 1)
		if va != vb {
			t.Fatalf("sample %d diverged: %v != %v", i, va, vb)
		}
	}
}

func TestResetClearsState(t *testing.T) {
	g := NewGenerator(42)
	g.PinkNoise(1)
	g.BrownNoise(1)
	g.GaussianFast(1) // prime the spare cache

	g.Reset()

	if g.pinkState != [7]float64{} {
		t.Fatalf("pink state not cleared: %v", g.pinkState)
	}
	if g.brownState != 0 {
		t.Fatalf("brown state not cleared: %v", g.brownState)
	}
	if g.hasSpare {
		t.Fatalf("spare cache not cleared")
	}
	if g.GenerationCount() != 0 {
		t.Fatalf("generation count not cleared")
	}
}

func TestPoissonConverges(t *testing.T) {
	for _, lambda := range []float64{1, 5, 20, 100} {
		g := NewGenerator(7)
		const n = 10000
		sum, sumSq := 0.0, 0.0
		for i := 0; i < n; i++ {
			v := g.Poisson(lambda)
			sum += v
			sumSq += v * v
		}
		mean := sum / n
		variance := sumSq/n - mean*mean

		if math.Abs(mean-lambda)/lambda > 0.05 {
			t.Errorf("lambda=%v mean=%v outside 5%%", lambda, mean)
		}
		if math.Abs(variance-lambda)/lambda > 0.2 {
			t.Errorf("lambda=%v variance=%v outside tolerance", lambda, variance)
		}
	}
}

func TestQuantizationNoiseRoundsToLsb(t *testing.T) {
	g := NewGenerator(1)
	const bits = 16
	const fullScale = 10.0
	lsb := fullScale / float64(uint64(1)<<bits)

	v := g.QuantizationNoise(1.2345, bits, fullScale)
	if math.Abs(v-1.2345) > lsb {
		t.Fatalf("quantized value %v too far from input within one LSB (%v)", v, lsb)
	}
}
