package history

import (
	"math"
	"testing"

	"github.com/korhall/sigcast/internal/models"
)

func testOptions() Options {
	return Options{
		Decay:           0.75,
		TrendSlopeGate:  0.10,
		AnomalyDropPct:  0.02,
		AnomalyRateBump: 0.01,
		AnomalyRateCap:  0.05,
		SparklineLen:    10,
	}
}

func snap(t *testing.T, date string, counts map[int]int) models.Snapshot {
	t.Helper()
	return models.Snapshot{Date: day(t, date), Counts: counts}
}

func TestAggregate_BasicTrajectory(t *testing.T) {
	snapshots := []models.Snapshot{
		snap(t, "2026-01-01", map[int]int{1: 1000, 2: 500}),
		snap(t, "2026-01-02", map[int]int{1: 1200, 2: 550}),
		snap(t, "2026-01-03", map[int]int{1: 1150, 2: 600}),
	}
	cutoff := day(t, "2026-02-15")
	deadline := day(t, "2026-03-07")

	stats, err := Aggregate(snapshots, []int{1, 2}, cutoff, deadline, testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	d1 := stats.Districts[1]
	if d1.Current != 1150 {
		t.Errorf("Expected current 1150, got %d", d1.Current)
	}
	if d1.Peak != 1200 {
		t.Errorf("Expected peak 1200, got %d", d1.Peak)
	}
	// Losses: one 50-signature drop against a 1200 peak.
	wantRate := 50.0 / 1200.0
	if math.Abs(d1.LifetimeRemovalRate-wantRate) > 1e-12 {
		t.Errorf("Expected lifetime removal rate %f, got %f", wantRate, d1.LifetimeRemovalRate)
	}
	if len(d1.VelocitySeries) != 2 || d1.VelocitySeries[0] != 200.0 || d1.VelocitySeries[1] != -50.0 {
		t.Errorf("Expected velocity series [200 -50], got %v", d1.VelocitySeries)
	}
	if d1.DailyVelocity != -50.0 {
		t.Errorf("Expected daily velocity -50, got %f", d1.DailyVelocity)
	}

	d2 := stats.Districts[2]
	if d2.LifetimeRemovalRate != 0.0 {
		t.Errorf("Expected zero removal rate for monotone district, got %f", d2.LifetimeRemovalRate)
	}
	if d2.Peak != 600 || d2.Current != 600 {
		t.Errorf("Expected peak=current=600, got peak %d current %d", d2.Peak, d2.Current)
	}

	if stats.SnapshotCount != 3 {
		t.Errorf("Expected snapshot count 3, got %d", stats.SnapshotCount)
	}
	// Statewide velocity over the last interval: (1150+600)-(1200+550) = 0.
	if stats.DailyVelocity != 0.0 {
		t.Errorf("Expected statewide velocity 0, got %f", stats.DailyVelocity)
	}
}

func TestAggregate_FlatCountsProduceNoSignal(t *testing.T) {
	snapshots := []models.Snapshot{
		snap(t, "2026-01-01", map[int]int{1: 3000}),
		snap(t, "2026-01-02", map[int]int{1: 3000}),
	}
	stats, err := Aggregate(snapshots, []int{1}, day(t, "2026-02-15"), day(t, "2026-03-07"), testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	d := stats.Districts[1]
	if d.DailyVelocity != 0.0 {
		t.Errorf("Expected velocity 0 for identical counts, got %f", d.DailyVelocity)
	}
	if d.Trend != models.TrendStable {
		t.Errorf("Expected STABLE trend, got %s", d.Trend)
	}
	if len(stats.Anomalies) != 0 {
		t.Errorf("Expected no anomalies for flat counts, got %d", len(stats.Anomalies))
	}
	if d.LifetimeRemovalRate != 0.0 {
		t.Errorf("Expected zero removal rate, got %f", d.LifetimeRemovalRate)
	}
}

func TestAggregate_AnomalyDetection(t *testing.T) {
	snapshots := []models.Snapshot{
		snap(t, "2026-01-01", map[int]int{1: 1000, 2: 1000}),
		// District 1 drops 5% (anomalous); district 2 drops 1% (below gate).
		snap(t, "2026-01-02", map[int]int{1: 950, 2: 990}),
	}
	stats, err := Aggregate(snapshots, []int{1, 2}, day(t, "2026-02-15"), day(t, "2026-03-07"), testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(stats.Anomalies) != 1 {
		t.Fatalf("Expected exactly one anomaly, got %d", len(stats.Anomalies))
	}
	a := stats.Anomalies[0]
	if a.District != 1 || a.Drop != 50 || a.PrevCount != 1000 || a.CurCount != 950 {
		t.Errorf("Unexpected anomaly record: %+v", a)
	}
	if math.Abs(a.DropPct-0.05) > 1e-12 {
		t.Errorf("Expected drop pct 0.05, got %f", a.DropPct)
	}
	if a.ID == "" {
		t.Error("Expected a stable anomaly ID")
	}

	// One anomaly bumps the effective rate by one increment over lifetime.
	d1 := stats.Districts[1]
	want := d1.LifetimeRemovalRate + 0.01
	if math.Abs(d1.EffectiveRejectionRate-want) > 1e-12 {
		t.Errorf("Expected effective rate %f after bump, got %f", want, d1.EffectiveRejectionRate)
	}
	d2 := stats.Districts[2]
	if d2.EffectiveRejectionRate != d2.LifetimeRemovalRate {
		t.Errorf("Expected unbumped rate for district 2, got %f", d2.EffectiveRejectionRate)
	}
}

func TestAggregate_AnomalyIDsAreDeterministic(t *testing.T) {
	build := func() []models.Anomaly {
		snapshots := []models.Snapshot{
			snap(t, "2026-01-01", map[int]int{1: 1000}),
			snap(t, "2026-01-02", map[int]int{1: 900}),
		}
		stats, err := Aggregate(snapshots, []int{1}, day(t, "2026-02-15"), day(t, "2026-03-07"), testOptions())
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		return stats.Anomalies
	}
	first, second := build(), build()
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Expected one anomaly per run, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("Expected identical IDs across recomputes, got %s and %s", first[0].ID, second[0].ID)
	}
}

func TestAggregate_AnomalyBumpIsCapped(t *testing.T) {
	// Seven consecutive anomalous drops; the bump must stop at the cap.
	counts := []int{10000, 9500, 9000, 8500, 8000, 7500, 7000, 6500}
	dates := []string{
		"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04",
		"2026-01-05", "2026-01-06", "2026-01-07", "2026-01-08",
	}
	snapshots := make([]models.Snapshot, len(counts))
	for i := range counts {
		snapshots[i] = snap(t, dates[i], map[int]int{1: counts[i]})
	}
	stats, err := Aggregate(snapshots, []int{1}, day(t, "2026-02-15"), day(t, "2026-03-07"), testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(stats.Anomalies) != 7 {
		t.Fatalf("Expected 7 anomalies, got %d", len(stats.Anomalies))
	}
	d := stats.Districts[1]
	want := d.LifetimeRemovalRate + 0.05
	if math.Abs(d.EffectiveRejectionRate-want) > 1e-12 {
		t.Errorf("Expected capped effective rate %f, got %f", want, d.EffectiveRejectionRate)
	}
}

func TestAggregate_AnomaliesSortedByDropPct(t *testing.T) {
	snapshots := []models.Snapshot{
		snap(t, "2026-01-01", map[int]int{1: 1000, 2: 1000}),
		snap(t, "2026-01-02", map[int]int{1: 970, 2: 900}),
	}
	stats, err := Aggregate(snapshots, []int{1, 2}, day(t, "2026-02-15"), day(t, "2026-03-07"), testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(stats.Anomalies) != 2 {
		t.Fatalf("Expected 2 anomalies, got %d", len(stats.Anomalies))
	}
	if stats.Anomalies[0].District != 2 || stats.Anomalies[1].District != 1 {
		t.Errorf("Expected largest drop first, got districts %d, %d",
			stats.Anomalies[0].District, stats.Anomalies[1].District)
	}
}

func TestAggregate_PostCutoffStatistics(t *testing.T) {
	cutoff := day(t, "2026-02-15")
	deadline := day(t, "2026-03-07")
	snapshots := []models.Snapshot{
		snap(t, "2026-02-12", map[int]int{1: 980}),
		snap(t, "2026-02-14", map[int]int{1: 1000}),
		snap(t, "2026-02-16", map[int]int{1: 980}),
		snap(t, "2026-02-18", map[int]int{1: 960}),
	}
	stats, err := Aggregate(snapshots, []int{1}, cutoff, deadline, testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	d := stats.Districts[1]
	if d.PostCutoffSnapshots != 2 {
		t.Errorf("Expected 2 post-cutoff snapshots, got %d", d.PostCutoffSnapshots)
	}
	// Post-cutoff peak 980, post-cutoff losses 20.
	wantRate := 20.0 / 980.0
	if math.Abs(d.PostCutoffRemovalRate-wantRate) > 1e-12 {
		t.Errorf("Expected post-cutoff rate %f, got %f", wantRate, d.PostCutoffRemovalRate)
	}
	if math.Abs(d.PostCutoffPerDay-(-10.0)) > 1e-12 {
		t.Errorf("Expected post-cutoff velocity -10/day, got %f", d.PostCutoffPerDay)
	}
	// Last pre-cutoff interval: +20 over 2 days.
	if math.Abs(d.PreCutoffVelocity-10.0) > 1e-12 {
		t.Errorf("Expected pre-cutoff velocity 10/day, got %f", d.PreCutoffVelocity)
	}

	if stats.PreCutoffTotal != 1000 {
		t.Errorf("Expected pre-cutoff total 1000, got %d", stats.PreCutoffTotal)
	}
	if stats.PostCutoffSnapshotCount != 2 {
		t.Errorf("Expected statewide post-cutoff snapshot count 2, got %d", stats.PostCutoffSnapshotCount)
	}
	// Both post-cutoff intervals are net losses, so no additions accrue.
	if stats.PostCutoffNetAdditions != 0 {
		t.Errorf("Expected no post-cutoff net additions, got %d", stats.PostCutoffNetAdditions)
	}
}

func TestAggregate_PostCutoffNetAdditions(t *testing.T) {
	cutoff := day(t, "2026-02-15")
	snapshots := []models.Snapshot{
		snap(t, "2026-02-14", map[int]int{1: 1000}),
		snap(t, "2026-02-17", map[int]int{1: 1300}),
		snap(t, "2026-02-19", map[int]int{1: 1250}),
		snap(t, "2026-02-21", map[int]int{1: 1290}),
	}
	stats, err := Aggregate(snapshots, []int{1}, cutoff, day(t, "2026-03-07"), testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	// Positive nets only: +300 and +40; the -50 interval does not offset them.
	if stats.PostCutoffNetAdditions != 340 {
		t.Errorf("Expected 340 post-cutoff net additions, got %d", stats.PostCutoffNetAdditions)
	}
}

func TestAggregate_SingleSnapshotDefaults(t *testing.T) {
	snapshots := []models.Snapshot{snap(t, "2026-01-01", map[int]int{1: 2500})}
	stats, err := Aggregate(snapshots, []int{1}, day(t, "2026-02-15"), day(t, "2026-03-07"), testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	d := stats.Districts[1]
	if d.ProjectedRaw != 2500.0 || d.ProjectedAdjusted != 2500.0 {
		t.Errorf("Expected projections pinned to current count, got raw %f adjusted %f",
			d.ProjectedRaw, d.ProjectedAdjusted)
	}
	if d.Trend != models.TrendStable {
		t.Errorf("Expected STABLE trend with one observation, got %s", d.Trend)
	}
	if len(d.VelocitySeries) != 0 {
		t.Errorf("Expected empty velocity series, got %v", d.VelocitySeries)
	}
	if len(d.IntervalGains) != 10 {
		t.Errorf("Expected zero-padded sparkline of 10, got %v", d.IntervalGains)
	}
}

func TestAggregate_ProjectedAdjustedFlooredAtCurrent(t *testing.T) {
	// Declining district: the removal haircut must not push the adjusted
	// projection below what is already verified.
	snapshots := []models.Snapshot{
		snap(t, "2026-01-01", map[int]int{1: 2000}),
		snap(t, "2026-01-02", map[int]int{1: 1900}),
		snap(t, "2026-01-03", map[int]int{1: 1800}),
	}
	stats, err := Aggregate(snapshots, []int{1}, day(t, "2026-02-15"), day(t, "2026-03-07"), testOptions())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	d := stats.Districts[1]
	if d.ProjectedAdjusted < float64(d.Current) {
		t.Errorf("Adjusted projection %f below current count %d", d.ProjectedAdjusted, d.Current)
	}
}

func TestAggregate_SparklinePadding(t *testing.T) {
	opts := testOptions()
	opts.SparklineLen = 5
	snapshots := []models.Snapshot{
		snap(t, "2026-01-01", map[int]int{1: 100}),
		snap(t, "2026-01-02", map[int]int{1: 150}),
		snap(t, "2026-01-03", map[int]int{1: 140}),
	}
	stats, err := Aggregate(snapshots, []int{1}, day(t, "2026-02-15"), day(t, "2026-03-07"), opts)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	// Two intervals: +50 then a net loss clamped to 0, left-padded to length 5.
	want := []int{0, 0, 0, 50, 0}
	got := stats.Districts[1].IntervalGains
	if len(got) != len(want) {
		t.Fatalf("Expected sparkline length %d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected sparkline %v, got %v", want, got)
		}
	}
}

func TestAggregate_InputValidation(t *testing.T) {
	cutoff, deadline := day(t, "2026-02-15"), day(t, "2026-03-07")

	if _, err := Aggregate(nil, []int{1}, cutoff, deadline, testOptions()); err == nil {
		t.Error("Expected error for empty snapshot list")
	}

	outOfOrder := []models.Snapshot{
		snap(t, "2026-01-02", map[int]int{1: 100}),
		snap(t, "2026-01-01", map[int]int{1: 110}),
	}
	if _, err := Aggregate(outOfOrder, []int{1}, cutoff, deadline, testOptions()); err == nil {
		t.Error("Expected error for out-of-order snapshots")
	}

	duplicate := []models.Snapshot{
		snap(t, "2026-01-01", map[int]int{1: 100}),
		snap(t, "2026-01-01", map[int]int{1: 110}),
	}
	if _, err := Aggregate(duplicate, []int{1}, cutoff, deadline, testOptions()); err == nil {
		t.Error("Expected error for duplicate snapshot dates")
	}

	single := []models.Snapshot{snap(t, "2026-01-01", map[int]int{1: 100})}
	if _, err := Aggregate(single, nil, cutoff, deadline, testOptions()); err == nil {
		t.Error("Expected error for empty district list")
	}
}
