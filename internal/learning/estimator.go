// Package learning implements the statistical machinery behind segment
// ETA predictions: streaming mean/variance (Welford), an exponential
// moving average, schedule blending, outlier detection, and
// normal-approximation percentiles.
package learning

import "math"

// z90 is the one-sided 90th percentile of the standard normal
// distribution.
const z90 = 1.2816

// UpdateEMA advances an exponential moving average and its variance by
// one observation with a fixed decay constant alpha.
func UpdateEMA(mean, variance, x, alpha float64) (float64, float64) {
	meanNew := alpha*x + (1-alpha)*mean
	diff := x - meanNew
	varNew := alpha*diff*diff + (1-alpha)*variance
	return meanNew, varNew
}

// BlendWeight returns w = n/(n+n0): the fraction of trust given to
// learned data over the schedule baseline. n0 acts as a pseudo-count
// of schedule observations, so w rises toward 1 as samples accumulate.
func BlendWeight(n int64, n0 int) float64 {
	return float64(n) / (float64(n) + float64(n0))
}

// BlendedMean mixes the learned EMA mean with the schedule baseline
// according to the blend weight.
func BlendedMean(emaMean, scheduleMean float64, n int64, n0 int) float64 {
	w := BlendWeight(n, n0)
	return w*emaMean + (1-w)*scheduleMean
}

// IsOutlier reports whether x lies more than sigma standard deviations
// from the streaming mean. The test is only applied once n >= minN;
// below that the statistics are too thin to judge and every
// observation is accepted (cold start). A near-zero spread also
// disables the test to avoid rejecting everything after a run of
// identical observations.
func IsOutlier(x, mean, variance float64, n int64, minN int64, sigma float64) bool {
	if n < minN {
		return false
	}
	std := math.Sqrt(variance)
	if std < 1e-6 {
		return false
	}
	return math.Abs(x-mean) > sigma*std
}

// Percentiles returns (p50, p90) for a blended prediction under a
// normal approximation. When n < 2 the streaming variance is
// undefined and the spread falls back to 20% of the schedule mean.
// p90 is floored at zero.
func Percentiles(predicted, variance float64, n int64, scheduleMean float64) (float64, float64) {
	std := math.Sqrt(variance)
	if n < 2 {
		std = 0.2 * scheduleMean
	}
	p50 := predicted
	p90 := predicted + z90*std
	if p90 < 0 {
		p90 = 0
	}
	return p50, p90
}
