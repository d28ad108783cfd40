package history

import (
	"math"
	"time"

	"github.com/korhall/sigcast/internal/models"
)

// Point is one (date, count) observation in a district's history.
type Point struct {
	Date  time.Time
	Count int
}

// WeightedProjection fits a weighted least-squares line over (days, count)
// pairs and extrapolates it to the target date. Recent points receive
// exponentially higher weight (weight_i = decay^(n-1-i)) so a late-campaign
// surge moves the fit without the early history dominating it.
//
// The result is floored at the most recent observed count: before the
// submission cutoff a projection never implies a decrease.
// With fewer than two points the last observed count is returned as-is.
func WeightedProjection(points []Point, decay float64, target time.Time) float64 {
	if len(points) == 0 {
		return 0.0
	}
	if len(points) < 2 {
		return float64(points[len(points)-1].Count)
	}

	base := points[0].Date
	n := len(points)
	xs := make([]float64, n)
	ys := make([]float64, n)
	weights := make([]float64, n)
	for i, p := range points {
		xs[i] = p.Date.Sub(base).Hours() / 24.0
		ys[i] = float64(p.Count)
		weights[i] = math.Pow(decay, float64(n-1-i))
	}

	var wSum, xBar, yBar float64
	for i := range xs {
		wSum += weights[i]
	}
	for i := range xs {
		xBar += weights[i] * xs[i]
		yBar += weights[i] * ys[i]
	}
	xBar /= wSum
	yBar /= wSum

	var num, den float64
	for i := range xs {
		num += weights[i] * (xs[i] - xBar) * (ys[i] - yBar)
		den += weights[i] * (xs[i] - xBar) * (xs[i] - xBar)
	}

	last := ys[n-1]
	if den == 0 {
		return last
	}

	slope := num / den
	intercept := yBar - slope*xBar
	targetX := target.Sub(base).Hours() / 24.0
	projected := intercept + slope*targetX

	return math.Max(projected, last)
}

// TrendFromVelocity classifies a per-interval velocity series as
// accelerating, stable, or decelerating. It fits an unweighted linear
// regression over the series and normalizes the slope by the mean absolute
// velocity; only a slope large relative to the series' own magnitude flips
// the classification. With 5-10 intervals an unnormalized slope is dominated
// by outliers, so slopeGate (typically 0.10) acts as a noise gate.
//
// Series with fewer than two entries, or with zero mean magnitude, report
// STABLE rather than failing.
func TrendFromVelocity(velocity []float64, slopeGate float64) models.Trend {
	if len(velocity) < 2 {
		return models.TrendStable
	}

	n := float64(len(velocity))
	var xBar, yBar float64
	for i, v := range velocity {
		xBar += float64(i)
		yBar += v
	}
	xBar /= n
	yBar /= n

	var num, den, meanAbs float64
	for i, v := range velocity {
		dx := float64(i) - xBar
		num += dx * (v - yBar)
		den += dx * dx
		meanAbs += math.Abs(v)
	}
	meanAbs /= n

	if den == 0 || meanAbs == 0 {
		return models.TrendStable
	}

	relativeSlope := (num / den) / meanAbs
	switch {
	case relativeSlope >= slopeGate:
		return models.TrendAccel
	case relativeSlope <= -slopeGate:
		return models.TrendDecel
	default:
		return models.TrendStable
	}
}
