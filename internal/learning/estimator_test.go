package learning

import (
	"math"
	"testing"
)

func TestUpdateEMAConverges(t *testing.T) {
	mean, variance := 300.0, 0.0
	for i := 0; i < 200; i++ {
		mean, variance = UpdateEMA(mean, variance, 360.0, 0.1)
	}
	if math.Abs(mean-360) > 1.0 {
		t.Errorf("EMA mean after 200 identical observations = %f, want ~360", mean)
	}
	if variance > 1.0 {
		t.Errorf("EMA variance should decay toward 0 on constant input, got %f", variance)
	}
}

func TestUpdateEMASingleStep(t *testing.T) {
	// alpha=0.1, mean 300, observation 400: new mean is 310.
	mean, _ := UpdateEMA(300, 0, 400, 0.1)
	if math.Abs(mean-310) > 1e-9 {
		t.Errorf("EMA mean = %f, want 310", mean)
	}
}

func TestBlendWeightMonotonic(t *testing.T) {
	prev := -1.0
	for _, n := range []int64{0, 1, 5, 20, 100, 10000} {
		w := BlendWeight(n, 20)
		if w < 0 || w >= 1 {
			t.Errorf("BlendWeight(%d, 20) = %f, want in [0, 1)", n, w)
		}
		if w <= prev {
			t.Errorf("BlendWeight(%d, 20) = %f not greater than previous %f", n, w, prev)
		}
		prev = w
	}

	if w := BlendWeight(0, 20); w != 0 {
		t.Errorf("BlendWeight(0, 20) = %f, want 0: no samples means full schedule trust", w)
	}
	if w := BlendWeight(20, 20); w != 0.5 {
		t.Errorf("BlendWeight(20, 20) = %f, want 0.5", w)
	}
}

func TestBlendedMeanBetweenInputs(t *testing.T) {
	// With samples present, the prediction must lie strictly between
	// the EMA mean and the schedule baseline.
	got := BlendedMean(320.5, 300.0, 10, 20)
	if got <= 300.0 || got >= 320.5 {
		t.Errorf("BlendedMean = %f, want strictly between 300 and 320.5", got)
	}

	// No samples: prediction is the schedule alone.
	if got := BlendedMean(999, 300, 0, 20); got != 300 {
		t.Errorf("BlendedMean with n=0 = %f, want 300", got)
	}
}

func TestIsOutlier(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		mean     float64
		variance float64
		n        int64
		want     bool
	}{
		{"within 3 sigma", 320, 300, 100, 10, false}, // 2 sigma away
		{"beyond 3 sigma", 340, 300, 100, 10, true},  // 4 sigma away
		{"cold start accepts everything", 10000, 300, 100, 4, false},
		{"at threshold n applies test", 10000, 300, 100, 5, true},
		{"zero spread disables test", 400, 300, 0, 10, false},
	}

	for _, tt := range tests {
		got := IsOutlier(tt.x, tt.mean, tt.variance, tt.n, 5, 3.0)
		if got != tt.want {
			t.Errorf("%s: IsOutlier(%f, %f, %f, n=%d) = %v, want %v",
				tt.name, tt.x, tt.mean, tt.variance, tt.n, got, tt.want)
		}
	}
}

func TestPercentiles(t *testing.T) {
	p50, p90 := Percentiles(300, 100, 10, 280)
	if p50 != 300 {
		t.Errorf("p50 = %f, want 300 (the prediction itself)", p50)
	}
	want := 300 + 1.2816*10
	if math.Abs(p90-want) > 1e-9 {
		t.Errorf("p90 = %f, want %f", p90, want)
	}
	if p90 <= p50 {
		t.Errorf("p90 (%f) must exceed p50 (%f) when spread is positive", p90, p50)
	}
}

func TestPercentilesColdStartFallback(t *testing.T) {
	// Below two samples the spread comes from the schedule: 20% of
	// the baseline.
	_, p90 := Percentiles(300, 0, 1, 300)
	want := 300 + 1.2816*60
	if math.Abs(p90-want) > 1e-9 {
		t.Errorf("cold-start p90 = %f, want %f", p90, want)
	}
}
