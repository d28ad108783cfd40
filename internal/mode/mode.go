// Package mode decides which temporal regime governs each run: accumulation
// (signatures may still be added), attrition (only removals are possible),
// or a time-weighted blend of both.
//
// The blend exists because the source keeps posting already-submitted but
// unprocessed signatures for a period after the submission cutoff. A hard
// switch at the cutoff would collapse probabilities for well-trending
// districts the instant the date passes, misrepresenting the in-flight
// backlog. The window is adaptive: once observed post-cutoff additions dry
// up the blend resolves early, and while additions remain substantial a
// floor weight is retained past the calendar window.
package mode

import (
	"math"
	"time"

	"github.com/korhall/sigcast/internal/history"
	"github.com/korhall/sigcast/internal/models"
)

// Params tunes the lag-window schedule.
type Params struct {
	// InitialWeight is the accumulation weight on the cutoff day itself.
	InitialWeight float64
	// FloorWeight is retained after the calendar window expires while
	// post-cutoff additions remain substantial.
	FloorWeight float64
	// LagWindowDays is the calendar length of the blend window.
	LagWindowDays int
	// ResolvedFraction: when statewide post-cutoff net additions fall
	// below this fraction of the pre-cutoff total, the lag has resolved
	// and the weight is forced to zero early.
	ResolvedFraction float64
}

// Evidence is the observed statewide data the adaptive schedule consults.
type Evidence struct {
	PreCutoffTotal         int
	PostCutoffNetAdditions int
	// PostCutoffSnapshots guards the early-resolution rule: with fewer
	// than two post-cutoff observations, zero additions just means the
	// source has not published yet.
	PostCutoffSnapshots int
}

// Decision is a tagged variant consumed by the probability model.
// Weight is the accumulation-model share: 1 in pure accumulation, 0 in pure
// attrition, and in (0, 1] during the blend window.
type Decision struct {
	Mode   models.Mode
	Weight float64
}

// Select determines the regime for a run dated now. It is a pure function of
// the calendar and the supplied evidence.
func Select(now, cutoff time.Time, p Params, ev Evidence) Decision {
	if now.Before(cutoff) {
		return Decision{Mode: models.ModeAccumulation, Weight: 1.0}
	}

	elapsed := now.Sub(cutoff).Hours() / 24.0
	window := float64(p.LagWindowDays)

	additionsResolved := ev.PostCutoffSnapshots >= 2 &&
		float64(ev.PostCutoffNetAdditions) < p.ResolvedFraction*float64(ev.PreCutoffTotal)

	if elapsed < window {
		if additionsResolved {
			return Decision{Mode: models.ModeAttrition, Weight: 0.0}
		}
		weight := p.InitialWeight * (1.0 - elapsed/window)
		return Decision{Mode: models.ModeBlend, Weight: weight}
	}

	// Calendar window expired. If additions are still substantial the lag
	// has demonstrably not resolved; keep a floor weight rather than
	// snapping to zero.
	if ev.PostCutoffSnapshots >= 2 && !additionsResolved && ev.PreCutoffTotal > 0 {
		return Decision{Mode: models.ModeBlend, Weight: p.FloorWeight}
	}
	return Decision{Mode: models.ModeAttrition, Weight: 0.0}
}

// EffectiveCount computes the count the attrition model should score for a
// district, given the current blend weight.
//
// With at least two post-cutoff snapshots the district switches to an
// observed-post-cutoff-velocity projection to the deadline, clipped above by
// the pre-cutoff trajectory projection: late momentum cannot imply more
// than the pre-cutoff trajectory already predicted. Otherwise, during the
// blend window, the count is raised toward the pre-cutoff projection in
// proportion to the blend weight to reflect pending-but-unposted signatures.
func EffectiveCount(ds *history.DistrictStats, weight float64, now, deadline time.Time) float64 {
	verified := float64(ds.Current)

	if ds.PostCutoffSnapshots >= 2 {
		daysRemaining := math.Max(deadline.Sub(now).Hours()/24.0, 0.0)
		projected := verified + ds.PostCutoffPerDay*daysRemaining
		projected = math.Min(projected, ds.ProjectedRaw)
		return math.Max(projected, 0.0)
	}

	if weight > 0 {
		return verified + weight*math.Max(0.0, ds.ProjectedRaw-verified)
	}
	return verified
}
