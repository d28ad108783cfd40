// Package confidence produces a composite trust score for the headline
// qualification probability. Three independently computed factors in [0, 1]
// are multiplied, so one weak factor discounts the whole score instead of
// being averaged away.
package confidence

import (
	"math"

	"github.com/korhall/sigcast/internal/models"
	"github.com/korhall/sigcast/internal/outcome"
)

// Params tunes the scorer.
type Params struct {
	// ExpectedSnapshots is how many snapshots a fully mature history holds.
	ExpectedSnapshots int
	// ReviewWindowDays is the length of the post-cutoff clerk review window.
	ReviewWindowDays float64
	// CertaintyScale controls how fast certainty saturates as the expected
	// count moves away from the required count.
	CertaintyScale float64
	// SharpnessNorm is the distribution stdev at which sharpness reaches 0.
	SharpnessNorm float64
}

// Inputs are the evidence the scorer consumes.
type Inputs struct {
	SnapshotCount      int
	PostCutoff         bool
	DaysSinceCutoff    float64
	ExpectedQualifying float64
	RequiredCount      int
	Distribution       []float64
}

// Score computes the composite confidence and its components.
func Score(in Inputs, p Params) (float64, models.ConfidenceComponents) {
	c := models.ConfidenceComponents{
		Maturity:  maturity(in, p),
		Certainty: certainty(in, p),
		Sharpness: sharpness(in, p),
	}
	return c.Maturity * c.Certainty * c.Sharpness, c
}

// maturity measures how much of the expected evidence has arrived.
// Post-cutoff it blends snapshot-count maturity with the elapsed fraction
// of the review window: a history can be snapshot-rich but still early in
// the review, and vice versa.
func maturity(in Inputs, p Params) float64 {
	snapshotMaturity := 1.0
	if p.ExpectedSnapshots > 0 {
		snapshotMaturity = math.Min(float64(in.SnapshotCount)/float64(p.ExpectedSnapshots), 1.0)
	}
	if !in.PostCutoff {
		return snapshotMaturity
	}
	reviewElapsed := 1.0
	if p.ReviewWindowDays > 0 {
		reviewElapsed = math.Min(in.DaysSinceCutoff/p.ReviewWindowDays, 1.0)
	}
	return 0.5*snapshotMaturity + 0.5*reviewElapsed
}

// certainty collapses toward zero when the expected qualifying count sits
// near the required count, exactly where the headline number is most
// volatile, and saturates toward one far from it, where the model is
// confident of direction even if the exact probability moves.
func certainty(in Inputs, p Params) float64 {
	if p.CertaintyScale <= 0 {
		return 0.0
	}
	distance := math.Abs(in.ExpectedQualifying - float64(in.RequiredCount))
	return math.Tanh(distance / p.CertaintyScale)
}

// sharpness rewards a distribution concentrated on one or two counts. A
// wide spread signals genuine dispersion that the headline number alone
// would mask.
func sharpness(in Inputs, p Params) float64 {
	if p.SharpnessNorm <= 0 || len(in.Distribution) == 0 {
		return 0.0
	}
	return math.Max(0.0, 1.0-outcome.Stdev(in.Distribution)/p.SharpnessNorm)
}
