package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// distributionTolerance bounds the allowed drift of a probability mass
// function away from summing to exactly 1.0.
const distributionTolerance = 1e-9

// Meta carries run-level context for a report.
type Meta struct {
	GeneratedAt    time.Time `json:"generated_at"`
	SnapshotCount  int       `json:"snapshot_count"`
	FirstSnapshot  time.Time `json:"first_snapshot"`
	LastSnapshot   time.Time `json:"last_snapshot"`
	TotalVerified  int       `json:"total_verified"`
	DaysToDeadline int       `json:"days_to_deadline"`
	DailyVelocity  float64   `json:"daily_velocity"`

	StatewideRejectionRate float64   `json:"statewide_rejection_rate"`
	Mode                   Mode      `json:"mode"`
	BlendWeight            float64   `json:"blend_weight"`
	Cutoff                 time.Time `json:"cutoff"`
	Deadline               time.Time `json:"deadline"`
	DistrictsRequired      int       `json:"districts_required"`
}

// ConfidenceComponents are the three multiplicative factors behind the
// composite confidence score.
type ConfidenceComponents struct {
	Maturity  float64 `json:"maturity"`
	Certainty float64 `json:"certainty"`
	Sharpness float64 `json:"sharpness"`
}

// Overall holds the statewide qualification outputs of one run.
type Overall struct {
	// Distribution[k] = P(exactly k districts qualify), k = 0..TotalDistricts.
	Distribution       []float64 `json:"distribution"`
	QualifyProbability float64   `json:"p_qualify"`
	RawQualify         float64   `json:"p_qualify_raw"`
	ExpectedQualifying float64   `json:"expected_qualifying"`

	// Shadow outputs from the accumulation model alone, computed in every
	// mode so the dashboard can toggle between the two views.
	GrowthDistribution []float64 `json:"growth_distribution"`
	GrowthQualify      float64   `json:"growth_p_qualify"`
	GrowthExpected     float64   `json:"growth_expected"`

	ProjectedStatewideRaw      float64 `json:"projected_statewide_raw"`
	ProjectedStatewideAdjusted float64 `json:"projected_statewide_adjusted"`

	Confidence           float64              `json:"confidence"`
	ConfidenceComponents ConfidenceComponents `json:"confidence_components"`
}

// DistrictDelta summarizes one district's movement between runs.
type DistrictDelta struct {
	District  int `json:"d"`
	Delta     int `json:"delta"`
	Verified  int `json:"verified"`
	Threshold int `json:"threshold"`
}

// Movers captures run-over-run movement for the report's change section.
type Movers struct {
	BiggestGains  []DistrictDelta `json:"biggest_gains"`
	BiggestLosses []DistrictDelta `json:"biggest_losses"`
	NewlyMet      []int           `json:"newly_met"`
	NewlyFailed   []int           `json:"newly_failed"`
	OverallDelta  float64         `json:"overall_prob_delta"`
	Anomalies     []Anomaly       `json:"anomalies"`
}

// Report is the complete output of one engine run, regenerated wholesale on
// every data refresh.
type Report struct {
	RunID     string           `json:"run_id"`
	Meta      Meta             `json:"meta"`
	Overall   Overall          `json:"overall"`
	Districts []DistrictResult `json:"districts"`
	Movers    Movers           `json:"movers"`
}

// Validate checks structural integrity of a report. A distribution that does
// not sum to ~1.0 indicates an aggregator defect and must be treated as fatal.
func (r *Report) Validate() error {
	if r.RunID == "" {
		return errors.New("report run ID must not be empty")
	}
	if len(r.Districts) != TotalDistricts {
		return fmt.Errorf("report must contain %d districts, got %d", TotalDistricts, len(r.Districts))
	}
	if len(r.Overall.Distribution) != TotalDistricts+1 {
		return fmt.Errorf("distribution must have %d entries, got %d", TotalDistricts+1, len(r.Overall.Distribution))
	}
	if err := validateDistribution(r.Overall.Distribution); err != nil {
		return err
	}
	if err := validateDistribution(r.Overall.GrowthDistribution); err != nil {
		return fmt.Errorf("growth shadow: %w", err)
	}
	for i := range r.Districts {
		if err := r.Districts[i].Validate(); err != nil {
			return fmt.Errorf("district %d: %w", r.Districts[i].District, err)
		}
	}
	return nil
}

func validateDistribution(dp []float64) error {
	sum := 0.0
	for _, p := range dp {
		if p < 0 {
			return errors.New("distribution entries must not be negative")
		}
		sum += p
	}
	if math.Abs(sum-1.0) > distributionTolerance {
		return fmt.Errorf("distribution sums to %.12f, expected 1.0", sum)
	}
	return nil
}
