// Package notify decides whether a completed run warrants a push
// notification. Movement below a configured floor is suppressed so routine
// data refreshes stay quiet; threshold crossings and fresh anomalies always
// count as notable regardless of how little the headline moved.
package notify

import (
	"math"
	"time"

	"github.com/korhall/sigcast/internal/models"
)

// defaultMinDelta is the floor applied when the policy leaves MinDelta
// unset. It suppresses floating-point noise in the headline probability.
const defaultMinDelta = 0.001

// Trigger names one reason a run was considered notable.
type Trigger string

// Trigger values.
const (
	// TriggerHeadlineMove fires when |ΔP(qualify)| meets the policy floor.
	TriggerHeadlineMove Trigger = "headline_move"
	// TriggerThresholdCross fires when any district newly met or newly
	// fell below its threshold since the previous run.
	TriggerThresholdCross Trigger = "threshold_cross"
	// TriggerFreshAnomaly fires when the latest snapshot itself produced
	// an anomalous drop, indicating a packet-level rejection event.
	TriggerFreshAnomaly Trigger = "fresh_anomaly"
)

// Policy tunes the notification decision.
type Policy struct {
	// MinDelta is the minimum absolute change in the headline
	// qualification probability that counts as a headline move.
	MinDelta float64
}

// Decision is the outcome of evaluating one report against the policy.
type Decision struct {
	Notify   bool
	Triggers []Trigger
}

// Decide evaluates a run's movement. It is a pure function of the report;
// run-over-run deltas inside the report are zero on a first run, so a first
// run only notifies on a fresh anomaly.
func Decide(report *models.Report, p Policy) Decision {
	minDelta := p.MinDelta
	if minDelta <= 0 {
		minDelta = defaultMinDelta
	}

	var triggers []Trigger
	if math.Abs(report.Movers.OverallDelta) >= minDelta {
		triggers = append(triggers, TriggerHeadlineMove)
	}
	if len(report.Movers.NewlyMet) > 0 || len(report.Movers.NewlyFailed) > 0 {
		triggers = append(triggers, TriggerThresholdCross)
	}
	for _, a := range report.Movers.Anomalies {
		if sameDay(a.Date, report.Meta.LastSnapshot) {
			triggers = append(triggers, TriggerFreshAnomaly)
			break
		}
	}

	return Decision{Notify: len(triggers) > 0, Triggers: triggers}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
