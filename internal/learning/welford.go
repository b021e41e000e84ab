package learning

import "math"

// WelfordState holds running statistics using Welford's online algorithm.
// Mean and variance are computed incrementally in O(1) time and space,
// without storing the observations themselves.
type WelfordState struct {
	Count int64   // n - number of observations
	Mean  float64 // running mean
	M2    float64 // sum of squared differences from the running mean
}

// Update adds a new observation using Welford's online algorithm.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
func (w *WelfordState) Update(x float64) {
	w.Count++
	delta := x - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := x - w.Mean
	w.M2 += delta * delta2
}

// Variance returns the unbiased sample variance M2/(n-1).
// Returns 0 if fewer than 2 observations; callers fall back to the
// schedule-implied variance in that case.
func (w *WelfordState) Variance() float64 {
	if w.Count < 2 {
		return 0
	}
	return w.M2 / float64(w.Count-1)
}

// StdDev returns the sample standard deviation.
func (w *WelfordState) StdDev() float64 {
	return math.Sqrt(w.Variance())
}
