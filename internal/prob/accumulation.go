// Package prob computes per-district qualification probabilities. Two
// mutually exclusive temporal models share the work:
//
//   - Accumulation (pre-cutoff): trajectory scoring. A weighted composite of
//     the verified-over-threshold ratio, the projected ratio at the deadline,
//     and a trend-adjusted base, behind a structural feasibility gate.
//   - Attrition (post-cutoff): survival scoring. Districts above threshold
//     are discounted only when the buffer is thin and removals elevated;
//     districts below read a monotone gap-fraction table.
//
// During the posting-lag window the two scores are blended by the mode
// selector's weight. All functions here are pure.
package prob

import (
	"math"

	"github.com/korhall/sigcast/internal/models"
)

// Accumulation composite weights. The base ratio carries the most signal;
// the projection rewards trajectory; the trend-adjusted term lets sustained
// acceleration or decay move the estimate without dominating it.
const (
	weightBase      = 0.45
	weightProjected = 0.35
	weightTrended   = 0.20

	// rejectionPenaltyScale converts a removal rate into a direct score
	// penalty: a 10% removal rate costs 5 points.
	rejectionPenaltyScale = 0.5
)

// Trend multipliers for the trended composite term.
const (
	accelMultiplier  = 1.08
	stableMultiplier = 1.00
	decelMultiplier  = 0.90
)

// AccumulationInputs are one district's trajectory statistics as of the run.
type AccumulationInputs struct {
	Verified  int
	Threshold int
	// ProjectedAdjusted is the rejection-adjusted trajectory projection to
	// the deadline.
	ProjectedAdjusted float64
	Trend             models.Trend
	// RejectionRate is the effective (anomaly-bumped) lifetime removal rate.
	RejectionRate float64
	// FinalIntervalGain is the net gain over the most recent interval,
	// used for the late-surge bonus.
	FinalIntervalGain int
}

// AccumulationScore computes P(district meets threshold) while signatures
// are still being collected. Output is in [0, 1].
//
// The feasibility gate forces near-zero probability whenever the projection
// falls below 65% of threshold: no plausible trend reversal closes a gap
// that large in the remaining time, so trend noise must not assign it
// nontrivial probability.
func AccumulationScore(in AccumulationInputs) float64 {
	if in.Threshold <= 0 {
		return 0.0
	}
	if in.Verified >= in.Threshold {
		return 1.0
	}

	projPct := in.ProjectedAdjusted / float64(in.Threshold)
	switch {
	case projPct < 0.65:
		// Very far off: scale from 0 up to 0.02 at the gate.
		return math.Max(projPct*0.031, 0.0)
	case projPct < 0.80:
		// Hard climb zone: 0.02 -> 0.08.
		return 0.02 + (projPct-0.65)*0.40
	case projPct < 0.90:
		// Getting realistic: 0.08 -> 0.18.
		return 0.08 + (projPct-0.80)*1.00
	}

	base := float64(in.Verified) / float64(in.Threshold)

	mult := stableMultiplier
	switch in.Trend {
	case models.TrendAccel:
		mult = accelMultiplier
	case models.TrendDecel:
		mult = decelMultiplier
	}

	raw := weightBase*base + weightProjected*projPct + weightTrended*(base*mult)
	raw -= in.RejectionRate * rejectionPenaltyScale

	// Squeeze: a low verified fraction caps optimism from projections
	// alone, while a nearly complete district is floored high.
	switch {
	case base < 0.50:
		raw *= 0.60
	case base < 0.75:
		raw *= 0.85
	case base >= 0.95:
		raw = math.Max(raw, 0.85)
	}

	// Late-surge bonus from the most recent interval.
	if in.FinalIntervalGain > 500 {
		raw += 0.03
	} else if in.FinalIntervalGain > 200 {
		raw += 0.01
	}

	return clamp(raw, 0.0, 0.99)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
