// Package history aggregates an ordered sequence of signature-count
// snapshots into per-district trajectory statistics: velocity, removal
// rates, peaks, weighted projections to the clerk deadline, and anomaly
// flags. It has no knowledge of probabilities or thresholds beyond the
// district ID space.
//
// Gains and losses are not separately observable within one interval: the
// source only exposes the net count, so a simultaneous add and remove
// cancel out. The aggregator preserves this limitation and reports observed
// net gains and net losses, never invented gross figures.
package history

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/korhall/sigcast/internal/models"
)

// Options tunes the aggregation. Zero values are replaced by calibrated
// defaults from config; see config.HistoryConfig.
type Options struct {
	// Decay is the exponential recency weight base for trajectory projection.
	Decay float64
	// TrendSlopeGate is the normalized-slope threshold for ACCEL/DECEL.
	TrendSlopeGate float64
	// AnomalyDropPct flags an interval when loss/prevCount meets it.
	AnomalyDropPct float64
	// AnomalyRateBump is added to the effective rejection rate per anomaly.
	AnomalyRateBump float64
	// AnomalyRateCap bounds the total anomaly bump.
	AnomalyRateCap float64
	// SparklineLen is the number of trailing interval gains reported.
	SparklineLen int
}

// DistrictStats holds everything the probability model needs about one
// district's trajectory.
type DistrictStats struct {
	District int
	Current  int
	Peak     int
	History  []Point

	// VelocitySeries is the per-day net change of each interval.
	VelocitySeries []float64
	// DailyVelocity is the per-day net change over the most recent interval.
	DailyVelocity float64
	// PreCutoffVelocity is the per-day net change over the last interval
	// ending on or before the cutoff. Used to size the post-cutoff
	// pipeline of already-submitted-but-unposted signatures.
	PreCutoffVelocity float64

	LifetimeRemovalRate   float64
	PostCutoffRemovalRate float64
	PostCutoffSnapshots   int
	// PostCutoffPerDay is the per-day net change across the post-cutoff
	// span (first to last post-cutoff snapshot). Only meaningful when
	// PostCutoffSnapshots >= 2.
	PostCutoffPerDay float64

	// ProjectedRaw is the weighted linear projection to the deadline,
	// floored at the current count. ProjectedAdjusted applies the
	// lifetime removal-rate haircut, again floored at the current count.
	ProjectedRaw      float64
	ProjectedAdjusted float64

	Trend models.Trend

	// EffectiveRejectionRate is the lifetime removal rate plus the
	// forward-looking anomaly bump.
	EffectiveRejectionRate float64

	IntervalGains []int
}

// Stats is the full aggregation output.
type Stats struct {
	Districts map[int]*DistrictStats
	Anomalies []models.Anomaly

	SnapshotCount int
	FirstDate     time.Time
	LastDate      time.Time

	// DailyVelocity is the statewide per-day net change over the last interval.
	DailyVelocity float64
	// StatewideRejectionRate is the mean of per-district lifetime rates.
	StatewideRejectionRate float64

	// PreCutoffTotal is the statewide count at the last snapshot on or
	// before the cutoff (0 when no such snapshot exists).
	PreCutoffTotal int
	// PostCutoffNetAdditions sums positive statewide nets after the cutoff.
	// The mode selector uses it to resolve the posting-lag window early.
	PostCutoffNetAdditions int
	// PostCutoffSnapshotCount is the number of snapshots dated after the cutoff.
	PostCutoffSnapshotCount int
}

// anomalyNamespace derives deterministic v5 UUIDs for anomaly records so
// recomputing the same history yields byte-identical output.
var anomalyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("sigcast/anomaly"))

// Aggregate recomputes all trajectory statistics from the complete ordered
// snapshot list. It is a pure function: no incremental state, no mutation of
// its inputs. Snapshots must be non-empty and strictly ascending by date.
func Aggregate(snapshots []models.Snapshot, districts []int, cutoff, deadline time.Time, opts Options) (*Stats, error) {
	if len(snapshots) == 0 {
		return nil, errors.New("at least one snapshot is required")
	}
	for i := range snapshots {
		if err := snapshots[i].Validate(); err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		if i > 0 && !snapshots[i].Date.After(snapshots[i-1].Date) {
			return nil, fmt.Errorf("snapshots must be strictly ascending by date: %s then %s",
				snapshots[i-1].Date.Format("2006-01-02"), snapshots[i].Date.Format("2006-01-02"))
		}
	}
	if len(districts) == 0 {
		return nil, errors.New("at least one district is required")
	}

	stats := &Stats{
		Districts:     make(map[int]*DistrictStats, len(districts)),
		SnapshotCount: len(snapshots),
		FirstDate:     snapshots[0].Date,
		LastDate:      snapshots[len(snapshots)-1].Date,
	}

	for _, d := range districts {
		ds, err := aggregateDistrict(snapshots, d, cutoff, deadline, opts)
		if err != nil {
			return nil, fmt.Errorf("district %d: %w", d, err)
		}
		stats.Districts[d] = ds
		stats.StatewideRejectionRate += ds.LifetimeRemovalRate
	}
	stats.StatewideRejectionRate /= float64(len(districts))

	stats.Anomalies = detectAnomalies(snapshots, districts, opts.AnomalyDropPct)
	applyAnomalyBumps(stats, opts)

	// Statewide velocity over the last interval, per calendar day.
	if len(snapshots) >= 2 {
		last := snapshots[len(snapshots)-1]
		prev := snapshots[len(snapshots)-2]
		days := daysBetween(prev.Date, last.Date)
		stats.DailyVelocity = float64(last.Total()-prev.Total()) / days
	}

	// Pre-cutoff total and post-cutoff net additions for the adaptive lag window.
	for i := range snapshots {
		if !snapshots[i].Date.After(cutoff) {
			stats.PreCutoffTotal = snapshots[i].Total()
			continue
		}
		stats.PostCutoffSnapshotCount++
		if i > 0 {
			net := snapshots[i].Total() - snapshots[i-1].Total()
			if net > 0 {
				stats.PostCutoffNetAdditions += net
			}
		}
	}

	return stats, nil
}

func aggregateDistrict(snapshots []models.Snapshot, district int, cutoff, deadline time.Time, opts Options) (*DistrictStats, error) {
	ds := &DistrictStats{
		District: district,
		Trend:    models.TrendStable,
	}

	ds.History = make([]Point, len(snapshots))
	for i := range snapshots {
		count := snapshots[i].Count(district)
		ds.History[i] = Point{Date: snapshots[i].Date, Count: count}
		if count > ds.Peak {
			ds.Peak = count
		}
	}
	ds.Current = ds.History[len(ds.History)-1].Count

	// A district with exactly one snapshot has undefined velocity and
	// trend; report conservative defaults instead of failing.
	if len(ds.History) < 2 {
		ds.ProjectedRaw = float64(ds.Current)
		ds.ProjectedAdjusted = float64(ds.Current)
		ds.IntervalGains = padGains(nil, opts.SparklineLen)
		return ds, nil
	}

	var totalLosses int
	gains := make([]int, 0, len(ds.History)-1)
	ds.VelocitySeries = make([]float64, 0, len(ds.History)-1)
	for i := 1; i < len(ds.History); i++ {
		prev, cur := ds.History[i-1], ds.History[i]
		net := cur.Count - prev.Count
		days := daysBetween(prev.Date, cur.Date)
		ds.VelocitySeries = append(ds.VelocitySeries, float64(net)/days)
		gains = append(gains, max(0, net))
		totalLosses += max(0, -net)
		if i == len(ds.History)-1 {
			ds.DailyVelocity = float64(net) / days
		}
		if !cur.Date.After(cutoff) {
			ds.PreCutoffVelocity = float64(net) / days
		}
	}
	ds.IntervalGains = padGains(gains, opts.SparklineLen)

	if ds.Peak > 0 {
		ds.LifetimeRemovalRate = float64(totalLosses) / float64(ds.Peak)
	}

	// Post-cutoff intervals are the only ones where a decrease is
	// unambiguously review attrition rather than additions masking losses.
	var post []Point
	for _, p := range ds.History {
		if p.Date.After(cutoff) {
			post = append(post, p)
		}
	}
	ds.PostCutoffSnapshots = len(post)
	if len(post) >= 2 {
		postPeak, postLosses := post[0].Count, 0
		for i := 1; i < len(post); i++ {
			if post[i].Count > postPeak {
				postPeak = post[i].Count
			}
			postLosses += max(0, post[i-1].Count-post[i].Count)
		}
		if postPeak > 0 {
			ds.PostCutoffRemovalRate = float64(postLosses) / float64(postPeak)
		}
		span := daysBetween(post[0].Date, post[len(post)-1].Date)
		ds.PostCutoffPerDay = float64(post[len(post)-1].Count-post[0].Count) / span
	}

	ds.ProjectedRaw = WeightedProjection(ds.History, opts.Decay, deadline)
	ds.ProjectedAdjusted = math.Max(ds.ProjectedRaw*(1.0-ds.LifetimeRemovalRate), float64(ds.Current))
	ds.Trend = TrendFromVelocity(ds.VelocitySeries, opts.TrendSlopeGate)
	ds.EffectiveRejectionRate = ds.LifetimeRemovalRate

	return ds, nil
}

// detectAnomalies scans every interval for drops of at least dropPct of the
// previous count. Results are sorted by drop percentage descending, matching
// the order the dashboard presents them in.
func detectAnomalies(snapshots []models.Snapshot, districts []int, dropPct float64) []models.Anomaly {
	var anomalies []models.Anomaly
	for i := 1; i < len(snapshots); i++ {
		prev, cur := &snapshots[i-1], &snapshots[i]
		for _, d := range districts {
			prevCount := prev.Count(d)
			if prevCount == 0 {
				continue
			}
			drop := prevCount - cur.Count(d)
			pct := float64(drop) / float64(prevCount)
			if drop > 0 && pct >= dropPct {
				key := fmt.Sprintf("%s:%d", cur.Date.Format("2006-01-02"), d)
				anomalies = append(anomalies, models.Anomaly{
					ID:        uuid.NewSHA1(anomalyNamespace, []byte(key)).String(),
					Date:      cur.Date,
					PrevDate:  prev.Date,
					District:  d,
					PrevCount: prevCount,
					CurCount:  cur.Count(d),
					Drop:      drop,
					DropPct:   pct,
				})
			}
		}
	}
	sort.SliceStable(anomalies, func(a, b int) bool {
		return anomalies[a].DropPct > anomalies[b].DropPct
	})
	return anomalies
}

// applyAnomalyBumps raises each flagged district's effective rejection rate
// by a fixed increment per anomaly, capped. This is a forward-looking
// elevated-scrutiny penalty, not a correction of history.
func applyAnomalyBumps(stats *Stats, opts Options) {
	counts := make(map[int]int)
	for _, a := range stats.Anomalies {
		counts[a.District]++
	}
	for d, n := range counts {
		ds, ok := stats.Districts[d]
		if !ok {
			continue
		}
		bump := math.Min(float64(n)*opts.AnomalyRateBump, opts.AnomalyRateCap)
		ds.EffectiveRejectionRate = ds.LifetimeRemovalRate + bump
	}
}

// daysBetween returns the calendar-day span between two dates, floored at 1
// so same-day refreshes never divide by zero.
func daysBetween(from, to time.Time) float64 {
	days := to.Sub(from).Hours() / 24.0
	if days < 1.0 {
		return 1.0
	}
	return days
}

func padGains(gains []int, length int) []int {
	if length <= 0 {
		length = 10
	}
	if len(gains) >= length {
		return gains[len(gains)-length:]
	}
	padded := make([]int, length-len(gains), length)
	return append(padded, gains...)
}
