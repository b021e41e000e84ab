package learning

import (
	"math"
	"testing"
)

// batchStats computes mean and unbiased variance the naive two-pass
// way, as an oracle for the streaming implementation.
func batchStats(xs []float64) (mean, variance float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	if len(xs) > 1 {
		variance /= float64(len(xs) - 1)
	} else {
		variance = 0
	}
	return mean, variance
}

func TestWelfordMatchesBatchOracle(t *testing.T) {
	cases := [][]float64{
		{300},
		{300, 320},
		{280, 310, 295, 330, 305},
		{120.5, 119.8, 121.2, 400.0, 118.9, 120.1}, // one wild value
		{60, 60, 60, 60, 60, 60},                   // zero spread
	}

	for _, xs := range cases {
		var w WelfordState
		for _, x := range xs {
			w.Update(x)
		}

		wantMean, wantVar := batchStats(xs)
		if w.Count != int64(len(xs)) {
			t.Errorf("after %v: count = %d, want %d", xs, w.Count, len(xs))
		}
		if math.Abs(w.Mean-wantMean) > 1e-9 {
			t.Errorf("after %v: mean = %f, want %f", xs, w.Mean, wantMean)
		}
		if math.Abs(w.Variance()-wantVar) > 1e-9 {
			t.Errorf("after %v: variance = %f, want %f", xs, w.Variance(), wantVar)
		}
	}
}

func TestWelfordVarianceUndefinedBelowTwoSamples(t *testing.T) {
	var w WelfordState
	if v := w.Variance(); v != 0 {
		t.Errorf("variance of empty state = %f, want 0", v)
	}
	w.Update(300)
	if v := w.Variance(); v != 0 {
		t.Errorf("variance after one sample = %f, want 0", v)
	}
	w.Update(320)
	// Two samples 300, 320: unbiased variance is 200.
	if v := w.Variance(); math.Abs(v-200) > 1e-9 {
		t.Errorf("variance after two samples = %f, want 200", v)
	}
}

func TestWelfordStdDev(t *testing.T) {
	var w WelfordState
	for _, x := range []float64{10, 20, 30} {
		w.Update(x)
	}
	if got := w.StdDev(); math.Abs(got-10) > 1e-9 {
		t.Errorf("stddev = %f, want 10", got)
	}
}
