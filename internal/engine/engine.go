// Package engine wires the trajectory and qualification pipeline together:
// history aggregation, mode selection, per-district probability scoring,
// exact outcome aggregation, and confidence scoring.
//
// Run is a pure function of the snapshot history, the previous report, the
// run date, and configuration. Re-running with identical inputs yields
// byte-identical output: anomaly and run IDs are deterministic v5 UUIDs and
// no component keeps incremental state.
package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/korhall/sigcast/internal/config"
	"github.com/korhall/sigcast/internal/confidence"
	"github.com/korhall/sigcast/internal/history"
	"github.com/korhall/sigcast/internal/mode"
	"github.com/korhall/sigcast/internal/models"
	"github.com/korhall/sigcast/internal/outcome"
	"github.com/korhall/sigcast/internal/prob"
)

// moversLimit caps the biggest-gains and biggest-losses lists.
const moversLimit = 5

var runNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("sigcast/run"))

// Run executes one full pipeline pass. prev may be nil on the first run;
// it is only consulted for run-over-run deltas, never as model state.
func Run(snapshots []models.Snapshot, prev *models.Report, now time.Time, cfg *config.Config) (*models.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cutoff, err := cfg.CutoffDate()
	if err != nil {
		return nil, err
	}
	deadline, err := cfg.DeadlineDate()
	if err != nil {
		return nil, err
	}

	stats, err := history.Aggregate(snapshots, cfg.Districts(), cutoff, deadline, history.Options{
		Decay:           cfg.Model.Decay,
		TrendSlopeGate:  cfg.Model.TrendSlopeGate,
		AnomalyDropPct:  cfg.Model.AnomalyDropPct,
		AnomalyRateBump: cfg.Model.AnomalyRateBump,
		AnomalyRateCap:  cfg.Model.AnomalyRateCap,
		SparklineLen:    cfg.Model.SparklineLen,
	})
	if err != nil {
		return nil, fmt.Errorf("history aggregation: %w", err)
	}

	decision := mode.Select(now, cutoff, mode.Params{
		InitialWeight:    cfg.Model.InitialBlendWeight,
		FloorWeight:      cfg.Model.FloorBlendWeight,
		LagWindowDays:    cfg.Model.LagWindowDays,
		ResolvedFraction: cfg.Model.ResolvedFraction,
	}, mode.Evidence{
		PreCutoffTotal:         stats.PreCutoffTotal,
		PostCutoffNetAdditions: stats.PostCutoffNetAdditions,
		PostCutoffSnapshots:    stats.PostCutoffSnapshotCount,
	})

	daysSinceCutoff := math.Max(now.Sub(cutoff).Hours()/24.0, 0.0)
	daysRemaining := math.Max(deadline.Sub(now).Hours()/24.0, 0.0)
	reviewWindow := float64(cfg.Petition.ReviewWindowDays)

	attritionParams := prob.AttritionParams{
		GapTable:           cfg.Model.GapTable,
		SafeBuffer:         cfg.Model.SafeBuffer,
		ElevatedRate:       cfg.Model.ElevatedRemovalRate,
		VelocityRef:        cfg.Model.VelocityRef,
		PipelineWindowDays: cfg.Model.PipelineWindowDays,
		PipelineMaxBoost:   cfg.Model.PipelineMaxBoost,
	}

	prevDistricts := make(map[int]models.DistrictResult)
	prevQualify := 0.0
	if prev != nil {
		for _, d := range prev.Districts {
			prevDistricts[d.District] = d
		}
		prevQualify = prev.Overall.QualifyProbability
	}

	districts := cfg.Districts()
	results := make([]models.DistrictResult, 0, len(districts))
	probs := make([]float64, 0, len(districts))
	growthProbs := make([]float64, 0, len(districts))
	var projStatewideRaw, projStatewideAdj float64

	for _, d := range districts {
		ds := stats.Districts[d]
		threshold := cfg.Threshold(d)

		finalGain := 0
		if len(ds.IntervalGains) > 0 {
			finalGain = ds.IntervalGains[len(ds.IntervalGains)-1]
		}

		growthProb := prob.AccumulationScore(prob.AccumulationInputs{
			Verified:          ds.Current,
			Threshold:         threshold,
			ProjectedAdjusted: ds.ProjectedAdjusted,
			Trend:             ds.Trend,
			RejectionRate:     ds.EffectiveRejectionRate,
			FinalIntervalGain: finalGain,
		})

		// Post-cutoff intervals isolate review attrition; fall back to the
		// lifetime rate until any exist.
		observedRate := ds.PostCutoffRemovalRate
		if observedRate == 0 {
			observedRate = ds.EffectiveRejectionRate
		}
		blendedRate := prob.BlendedRemovalRate(observedRate, cfg.Model.PriorRemovalRate, daysSinceCutoff, reviewWindow)

		effective := mode.EffectiveCount(ds, decision.Weight, now, deadline)
		attritionProb := prob.AttritionScore(prob.AttritionInputs{
			EffectiveCount:     effective,
			Threshold:          threshold,
			BlendedRemovalRate: blendedRate,
			PreCutoffVelocity:  ds.PreCutoffVelocity,
			DaysSinceCutoff:    daysSinceCutoff,
		}, attritionParams)

		var probability float64
		switch decision.Mode {
		case models.ModeAccumulation:
			probability = growthProb
		case models.ModeAttrition:
			probability = attritionProb
		case models.ModeBlend:
			probability = decision.Weight*growthProb + (1.0-decision.Weight)*attritionProb
		}

		pctVerified := 0.0
		if threshold > 0 {
			pctVerified = float64(ds.Current) / float64(threshold)
		}

		projectedTotal := ds.ProjectedAdjusted
		if decision.Mode != models.ModeAccumulation {
			// Expected final count after remaining review removals. Counts
			// can only fall from here, so floor at the observed count is
			// not applied; the floor is the verified count itself.
			daysFraction := 1.0
			if reviewWindow > 0 {
				daysFraction = math.Min(daysRemaining/reviewWindow, 1.0)
			}
			projectedTotal = effective - float64(ds.Peak)*blendedRate*daysFraction
			projectedTotal = math.Max(projectedTotal, float64(ds.Current))
		}
		projectedPct := 0.0
		if threshold > 0 {
			projectedPct = projectedTotal / float64(threshold)
		}

		prevRec, hasPrev := prevDistricts[d]
		prevVerified := ds.Current
		prevProb := probability
		if hasPrev {
			prevVerified = prevRec.Verified
			prevProb = prevRec.Probability
		}

		result := models.DistrictResult{
			District:          d,
			Threshold:         threshold,
			Verified:          ds.Current,
			PrevVerified:      prevVerified,
			Delta:             ds.Current - prevVerified,
			PctVerified:       pctVerified,
			PeakVerified:      ds.Peak,
			ProjectedRaw:      ds.ProjectedRaw,
			ProjectedTotal:    projectedTotal,
			ProjectedPct:      projectedPct,
			RejectionRate:     ds.EffectiveRejectionRate,
			PostCutoffRate:    ds.PostCutoffRemovalRate,
			EffectiveCount:    effective,
			Probability:       probability,
			GrowthProbability: growthProb,
			PrevProbability:   prevProb,
			ProbabilityDelta:  probability - prevProb,
			Tier:              prob.ClassifyTier(probability, pctVerified),
			Trend:             ds.Trend,
			Mode:              decision.Mode,
			IntervalGains:     ds.IntervalGains,
		}
		results = append(results, result)
		probs = append(probs, probability)
		growthProbs = append(growthProbs, growthProb)
		projStatewideRaw += ds.ProjectedRaw
		projStatewideAdj += projectedTotal
	}

	dp, err := outcome.Distribution(probs)
	if err != nil {
		return nil, fmt.Errorf("outcome aggregation: %w", err)
	}
	growthDP, err := outcome.Distribution(growthProbs)
	if err != nil {
		return nil, fmt.Errorf("growth shadow aggregation: %w", err)
	}

	required := cfg.Petition.DistrictsRequired
	rawQualify := outcome.QualifyProbability(dp, required)
	qualify := outcome.ApplyCorrelationDeflator(rawQualify, cfg.Model.CorrelationScale)
	expected := outcome.ExpectedQualifying(probs)

	score, components := confidence.Score(confidence.Inputs{
		SnapshotCount:      stats.SnapshotCount,
		PostCutoff:         !now.Before(cutoff),
		DaysSinceCutoff:    daysSinceCutoff,
		ExpectedQualifying: expected,
		RequiredCount:      required,
		Distribution:       dp,
	}, confidence.Params{
		ExpectedSnapshots: cfg.Petition.ExpectedSnapshots,
		ReviewWindowDays:  reviewWindow,
		CertaintyScale:    cfg.Model.CertaintyScale,
		SharpnessNorm:     cfg.Model.SharpnessNorm,
	})

	totalVerified := snapshots[len(snapshots)-1].Total()
	runKey := fmt.Sprintf("%s:%d:%s", stats.LastDate.Format("2006-01-02"), stats.SnapshotCount, now.UTC().Format(time.RFC3339))

	report := &models.Report{
		RunID: uuid.NewSHA1(runNamespace, []byte(runKey)).String(),
		Meta: models.Meta{
			GeneratedAt:            now.UTC(),
			SnapshotCount:          stats.SnapshotCount,
			FirstSnapshot:          stats.FirstDate,
			LastSnapshot:           stats.LastDate,
			TotalVerified:          totalVerified,
			DaysToDeadline:         int(daysRemaining),
			DailyVelocity:          stats.DailyVelocity,
			StatewideRejectionRate: stats.StatewideRejectionRate,
			Mode:                   decision.Mode,
			BlendWeight:            decision.Weight,
			Cutoff:                 cutoff,
			Deadline:               deadline,
			DistrictsRequired:      required,
		},
		Overall: models.Overall{
			Distribution:               dp,
			QualifyProbability:         qualify,
			RawQualify:                 rawQualify,
			ExpectedQualifying:         expected,
			GrowthDistribution:         growthDP,
			GrowthQualify:              outcome.QualifyProbability(growthDP, required),
			GrowthExpected:             outcome.ExpectedQualifying(growthProbs),
			ProjectedStatewideRaw:      projStatewideRaw,
			ProjectedStatewideAdjusted: projStatewideAdj,
			Confidence:                 score,
			ConfidenceComponents:       components,
		},
		Districts: results,
		Movers:    buildMovers(results, stats.Anomalies, qualify-prevQualify, prev != nil),
	}

	if err := report.Validate(); err != nil {
		return nil, fmt.Errorf("report failed validation: %w", err)
	}
	return report, nil
}

// buildMovers summarizes run-over-run movement. Without a previous report
// every delta is zero and the lists stay empty.
func buildMovers(results []models.DistrictResult, anomalies []models.Anomaly, overallDelta float64, hasPrev bool) models.Movers {
	movers := models.Movers{
		BiggestGains:  []models.DistrictDelta{},
		BiggestLosses: []models.DistrictDelta{},
		NewlyMet:      []int{},
		NewlyFailed:   []int{},
		Anomalies:     anomalies,
	}
	if anomalies == nil {
		movers.Anomalies = []models.Anomaly{}
	}
	if !hasPrev {
		return movers
	}
	movers.OverallDelta = overallDelta

	var gains, losses []models.DistrictDelta
	for _, r := range results {
		dd := models.DistrictDelta{District: r.District, Delta: r.Delta, Verified: r.Verified, Threshold: r.Threshold}
		if r.Delta > 0 {
			gains = append(gains, dd)
		} else if r.Delta < 0 {
			losses = append(losses, dd)
		}
		if r.Verified >= r.Threshold && r.PrevVerified < r.Threshold {
			movers.NewlyMet = append(movers.NewlyMet, r.District)
		}
		if r.Verified < r.Threshold && r.PrevVerified >= r.Threshold {
			movers.NewlyFailed = append(movers.NewlyFailed, r.District)
		}
	}
	sort.SliceStable(gains, func(i, j int) bool { return gains[i].Delta > gains[j].Delta })
	sort.SliceStable(losses, func(i, j int) bool { return losses[i].Delta < losses[j].Delta })
	if len(gains) > moversLimit {
		gains = gains[:moversLimit]
	}
	if len(losses) > moversLimit {
		losses = losses[:moversLimit]
	}
	if gains != nil {
		movers.BiggestGains = gains
	}
	if losses != nil {
		movers.BiggestLosses = losses
	}
	return movers
}
