// Package outcome aggregates independent per-district probabilities into
// the exact discrete distribution over "number of districts that qualify".
//
// The distribution is a standard convolution of independent Bernoulli
// variables computed by dynamic programming: O(n²) time, exact, no sampling
// error. Independence is the base assumption; a single scalar correlation
// deflator accounts for shared systemic risk (an administrative ruling or
// fraud sweep hitting many districts at once). The deflator is a scalar and
// not a joint model: the available evidence supports a rough systemic-risk
// estimate, not a calibrated covariance structure.
package outcome

import (
	"fmt"
	"math"
)

// distributionTolerance bounds acceptable floating drift in the DP result.
// A distribution outside this tolerance indicates an aggregator defect and
// must abort the run rather than being silently published.
const distributionTolerance = 1e-9

// Distribution returns dp where dp[k] = P(exactly k of the given districts
// qualify), k = 0..len(probs). Probabilities must each be in [0, 1].
func Distribution(probs []float64) ([]float64, error) {
	for i, p := range probs {
		if p < 0.0 || p > 1.0 || math.IsNaN(p) {
			return nil, fmt.Errorf("probability %d out of range: %v", i, p)
		}
	}

	dp := make([]float64, len(probs)+1)
	dp[0] = 1.0
	for _, p := range probs {
		next := make([]float64, len(dp))
		for k, mass := range dp {
			if mass == 0 {
				continue
			}
			next[k+1] += mass * p
			next[k] += mass * (1 - p)
		}
		dp = next
	}

	sum := 0.0
	for _, mass := range dp {
		sum += mass
	}
	if math.Abs(sum-1.0) > distributionTolerance {
		return nil, fmt.Errorf("distribution sums to %.12f, expected 1.0", sum)
	}
	return dp, nil
}

// QualifyProbability sums the upper tail: P(at least required districts
// qualify).
func QualifyProbability(dp []float64, required int) float64 {
	if required < 0 {
		required = 0
	}
	total := 0.0
	for k := required; k < len(dp); k++ {
		total += dp[k]
	}
	return total
}

// ApplyCorrelationDeflator shaves a fixed fraction off the independence-
// assumption qualification probability. Scale is a policy knob in [0, 1).
func ApplyCorrelationDeflator(rawQualify, scale float64) float64 {
	return math.Max(0.0, rawQualify*(1.0-scale))
}

// ExpectedQualifying returns the expected number of qualifying districts.
// By linearity of expectation this is exactly the sum of the probabilities,
// independent of the DP.
func ExpectedQualifying(probs []float64) float64 {
	total := 0.0
	for _, p := range probs {
		total += p
	}
	return total
}

// Stdev returns the standard deviation of the qualifying-district count
// under the distribution.
func Stdev(dp []float64) float64 {
	var mean float64
	for k, mass := range dp {
		mean += float64(k) * mass
	}
	var variance float64
	for k, mass := range dp {
		diff := float64(k) - mean
		variance += diff * diff * mass
	}
	return math.Sqrt(variance)
}
