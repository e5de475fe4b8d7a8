package workflow

import (
	"math"
	"testing"
)

func TestDetectSpike_KnownFixture(t *testing.T) {
	window := []float64{48, 49, 51, 50, 49.5}

	z, spike := DetectSpike(window, 62.0, 5, 3.0)
	if !spike {
		t.Fatalf("expected 62.0 to signal against %v", window)
	}
	// mean 49.5, population stddev 1.0 -> z = 12.5
	if math.Abs(z-12.5) > 0.01 {
		t.Fatalf("expected z close to 12.5, got %f", z)
	}

	z, spike = DetectSpike(window, 50.2, 5, 3.0)
	if spike {
		t.Fatalf("expected 50.2 to be unremarkable, got z=%f", z)
	}
}

func TestDetectSpike_BelowMinWindowNeverSignals(t *testing.T) {
	window := []float64{10, 90, 10, 90}
	if _, spike := DetectSpike(window, 500, 5, 3.0); spike {
		t.Fatalf("window of %d must not signal with min window 5", len(window))
	}
}

func TestDetectSpike_FlatWindowNeverSignals(t *testing.T) {
	window := []float64{25, 25, 25, 25, 25, 25}
	// stddev is 0; must not divide, must not signal regardless of the jump.
	if z, spike := DetectSpike(window, 1000, 5, 3.0); spike || z != 0 {
		t.Fatalf("flat window signalled (z=%f spike=%v)", z, spike)
	}
}

func TestDetectSpike_NegativeDirection(t *testing.T) {
	window := []float64{48, 49, 51, 50, 49.5}
	// A collapse in price is as anomalous as a jump.
	if _, spike := DetectSpike(window, 35.0, 5, 3.0); !spike {
		t.Fatalf("expected 35.0 to signal against %v", window)
	}
}

func TestSpikeStats(t *testing.T) {
	mean, stddev := spikeStats([]float64{48, 49, 51, 50, 49.5})
	if math.Abs(mean-49.5) > 1e-9 {
		t.Fatalf("mean: expected 49.5, got %f", mean)
	}
	if math.Abs(stddev-1.0) > 1e-9 {
		t.Fatalf("stddev: expected 1.0, got %f", stddev)
	}

	mean, stddev = spikeStats(nil)
	if mean != 0 || stddev != 0 {
		t.Fatalf("empty window should be (0,0), got (%f,%f)", mean, stddev)
	}
}
