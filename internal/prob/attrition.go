package prob

import (
	"math"
	"sort"
)

// GapBand maps a gap fraction upper bound to a survival probability.
// The bands are a domain calibration asserted from limited data, so they
// live in configuration rather than in code.
type GapBand struct {
	// GapUpperBound is the largest (threshold-effective)/threshold
	// fraction this band covers.
	GapUpperBound float64 `mapstructure:"gap" json:"gap"`
	Probability   float64 `mapstructure:"prob" json:"prob"`
}

// DefaultGapTable is the calibrated gap-fraction survival table. It must be
// monotone (probability non-increasing in gap) and anchored at zero for
// large gaps: no plausible late correction closes an arbitrarily large
// deficit.
func DefaultGapTable() []GapBand {
	return []GapBand{
		{GapUpperBound: 0.02, Probability: 0.20},
		{GapUpperBound: 0.05, Probability: 0.12},
		{GapUpperBound: 0.10, Probability: 0.06},
		{GapUpperBound: 0.15, Probability: 0.03},
		{GapUpperBound: 0.25, Probability: 0.01},
		{GapUpperBound: 1.00, Probability: 0.00},
	}
}

// AttritionParams tunes the survival model.
type AttritionParams struct {
	// GapTable is the sorted gap-fraction survival table.
	GapTable []GapBand
	// SafeBuffer is the above-threshold margin at which normal attrition
	// no longer threatens qualification.
	SafeBuffer float64
	// ElevatedRate is the blended removal rate above which a below-
	// threshold district takes a downward nudge.
	ElevatedRate float64
	// VelocityRef is the pre-cutoff per-day velocity at which the
	// pipeline boost saturates.
	VelocityRef float64
	// PipelineWindowDays is how long after the cutoff the pipeline boost
	// takes to decay to zero.
	PipelineWindowDays float64
	// PipelineMaxBoost is the maximum fractional uplift from the pipeline
	// multiplier.
	PipelineMaxBoost float64
}

// AttritionInputs are one district's survival-mode inputs.
type AttritionInputs struct {
	// EffectiveCount is the mode selector's effective count: the raw
	// verified count, possibly adjusted for posting lag or post-cutoff
	// velocity.
	EffectiveCount float64
	Threshold      int
	// BlendedRemovalRate is the Bayesian prior/observation blend.
	BlendedRemovalRate float64
	// PreCutoffVelocity is the district's per-day net gain over its last
	// pre-cutoff interval.
	PreCutoffVelocity float64
	DaysSinceCutoff   float64
}

// AttritionScore computes P(district still meets threshold at the deadline)
// once no new signatures can be added. Output is in [0, 1].
func AttritionScore(in AttritionInputs, p AttritionParams) float64 {
	if in.Threshold <= 0 {
		return 0.0
	}
	threshold := float64(in.Threshold)

	if in.EffectiveCount >= threshold {
		// Already met. A comfortable buffer is robust to normal
		// attrition; only a thin buffer with elevated removals is at risk.
		buffer := (in.EffectiveCount - threshold) / threshold
		if buffer >= p.SafeBuffer {
			return 1.0
		}
		removalRisk := math.Min(in.BlendedRemovalRate*3.0, 0.15)
		return math.Max(0.90, 1.0-removalRisk)
	}

	gapFrac := (threshold - in.EffectiveCount) / threshold
	prob := lookupGap(p.GapTable, gapFrac)

	// Pipeline boost: signatures submitted before the cutoff may still be
	// in the posting queue. Proportional to pre-cutoff velocity, decaying
	// linearly to zero over the pipeline window.
	if in.PreCutoffVelocity > 0 && p.VelocityRef > 0 && p.PipelineWindowDays > 0 {
		decay := math.Max(0.0, 1.0-in.DaysSinceCutoff/p.PipelineWindowDays)
		saturation := math.Min(in.PreCutoffVelocity/p.VelocityRef, 1.0)
		prob *= 1.0 + p.PipelineMaxBoost*saturation*decay
	}

	if in.BlendedRemovalRate > p.ElevatedRate {
		prob *= 0.85
	}

	return clamp(prob, 0.0, 1.0)
}

// lookupGap reads the survival probability for a gap fraction from the
// first band whose upper bound covers it. Gaps beyond the last band are
// structurally impossible and return 0.
func lookupGap(table []GapBand, gapFrac float64) float64 {
	for _, band := range table {
		if gapFrac <= band.GapUpperBound {
			return band.Probability
		}
	}
	return 0.0
}

// ValidateGapTable checks that a configured table is sorted by gap bound
// and monotone non-increasing in probability.
func ValidateGapTable(table []GapBand) bool {
	if len(table) == 0 {
		return false
	}
	if !sort.SliceIsSorted(table, func(i, j int) bool {
		return table[i].GapUpperBound < table[j].GapUpperBound
	}) {
		return false
	}
	for i := 1; i < len(table); i++ {
		if table[i].Probability > table[i-1].Probability {
			return false
		}
	}
	return true
}
