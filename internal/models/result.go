package models

import (
	"errors"
	"fmt"
)

// Trend classifies a district's recent velocity relative to its own
// historical average.
type Trend string

// Trend values.
const (
	TrendAccel  Trend = "ACCEL"
	TrendStable Trend = "STABLE"
	TrendDecel  Trend = "DECEL"
)

// Mode labels which temporal regime produced a probability.
type Mode string

// Mode values. Blend applies during the posting-lag window after the
// submission cutoff, when already-submitted signatures are still appearing.
const (
	ModeAccumulation Mode = "accumulation"
	ModeAttrition    Mode = "attrition"
	ModeBlend        Mode = "blend"
)

// Tier is a deterministic presentation bucket for a district probability.
type Tier string

// Tier values, ordered from best to worst.
const (
	TierConfirmed     Tier = "CONFIRMED"
	TierNearlyCertain Tier = "NEARLY_CERTAIN"
	TierVeryLikely    Tier = "VERY_LIKELY"
	TierLikely        Tier = "LIKELY"
	TierPossible      Tier = "POSSIBLE"
	TierUnlikely      Tier = "UNLIKELY"
	TierNoChance      Tier = "NO_CHANCE"
)

// DistrictResult is the per-district output of one engine run. It is a pure
// function of the snapshot history and the two fixed calendar dates, never
// stored as authoritative state.
type DistrictResult struct {
	District     int `json:"d"`
	Threshold    int `json:"threshold"`
	Verified     int `json:"verified"`
	PrevVerified int `json:"prev_verified"`
	Delta        int `json:"delta"`

	PctVerified    float64 `json:"pct_verified"`
	PeakVerified   int     `json:"peak_verified"`
	ProjectedRaw   float64 `json:"projected_raw"`
	ProjectedTotal float64 `json:"projected_total"`
	ProjectedPct   float64 `json:"projected_pct"`

	RejectionRate  float64 `json:"rejection_rate"`
	PostCutoffRate float64 `json:"post_cutoff_rate"`
	EffectiveCount float64 `json:"effective_count"`

	Probability       float64 `json:"prob"`
	GrowthProbability float64 `json:"growth_prob"`
	PrevProbability   float64 `json:"prev_prob"`
	ProbabilityDelta  float64 `json:"prob_delta"`

	Tier  Tier  `json:"tier"`
	Trend Trend `json:"trend"`
	Mode  Mode  `json:"mode"`

	// IntervalGains holds net gains over the most recent intervals,
	// zero-padded on the left to a fixed length for sparkline display.
	IntervalGains []int `json:"interval_gains"`
}

// Validate checks that all result fields are internally consistent.
func (r *DistrictResult) Validate() error {
	if r.District < 1 || r.District > TotalDistricts {
		return fmt.Errorf("district %d out of range 1..%d", r.District, TotalDistricts)
	}
	if r.Threshold <= 0 {
		return fmt.Errorf("district %d threshold must be positive, got %d", r.District, r.Threshold)
	}
	if r.Verified < 0 {
		return errors.New("verified count must not be negative")
	}
	if r.Probability < 0.0 || r.Probability > 1.0 {
		return errors.New("probability must be between 0.0 and 1.0")
	}
	if r.GrowthProbability < 0.0 || r.GrowthProbability > 1.0 {
		return errors.New("growth probability must be between 0.0 and 1.0")
	}
	switch r.Trend {
	case TrendAccel, TrendStable, TrendDecel:
	default:
		return fmt.Errorf("invalid trend %q", r.Trend)
	}
	switch r.Mode {
	case ModeAccumulation, ModeAttrition, ModeBlend:
	default:
		return fmt.Errorf("invalid mode %q", r.Mode)
	}
	if r.Tier == "" {
		return errors.New("tier must be set")
	}
	return nil
}
