package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/korhall/sigcast/internal/models"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func testSnapshot(t *testing.T, date string, count int) models.Snapshot {
	t.Helper()
	counts := make(map[int]int, models.TotalDistricts)
	for d := 1; d <= models.TotalDistricts; d++ {
		counts[d] = count
	}
	return models.Snapshot{Date: day(t, date), Counts: counts, Source: "test"}
}

func testReport(t *testing.T) *models.Report {
	t.Helper()
	districts := make([]models.DistrictResult, 0, models.TotalDistricts)
	for d := 1; d <= models.TotalDistricts; d++ {
		districts = append(districts, models.DistrictResult{
			District:          d,
			Threshold:         5000,
			Verified:          4000,
			Probability:       0.5,
			GrowthProbability: 0.5,
			Tier:              models.TierLikely,
			Trend:             models.TrendStable,
			Mode:              models.ModeAccumulation,
		})
	}
	dp := make([]float64, models.TotalDistricts+1)
	dp[26] = 1.0
	return &models.Report{
		RunID: "run-test",
		Overall: models.Overall{
			Distribution:       dp,
			GrowthDistribution: dp,
		},
		Districts: districts,
	}
}

func TestArchive_LoadMissingFile(t *testing.T) {
	archive := NewArchive(filepath.Join(t.TempDir(), "snapshots.json"))
	snapshots, err := archive.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("Expected empty history from a missing archive, got %d snapshots", len(snapshots))
	}
}

func TestArchive_AppendAndLoadSorted(t *testing.T) {
	archive := NewArchive(filepath.Join(t.TempDir(), "snapshots.json"))

	// Append out of order; Load must return ascending dates.
	if err := archive.Append(testSnapshot(t, "2026-01-03", 1200)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := archive.Append(testSnapshot(t, "2026-01-01", 1000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := archive.Append(testSnapshot(t, "2026-01-02", 1100)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	snapshots, err := archive.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(snapshots))
	}
	for i := 1; i < len(snapshots); i++ {
		if !snapshots[i].Date.After(snapshots[i-1].Date) {
			t.Errorf("Snapshots not ascending at %d: %s then %s",
				i, snapshots[i-1].Date, snapshots[i].Date)
		}
	}
	if snapshots[0].Count(1) != 1000 || snapshots[2].Count(1) != 1200 {
		t.Errorf("Counts not preserved through the round trip: %d, %d",
			snapshots[0].Count(1), snapshots[2].Count(1))
	}
	if snapshots[0].Source != "test" {
		t.Errorf("Source not preserved, got %q", snapshots[0].Source)
	}
}

func TestArchive_RejectsDuplicateDate(t *testing.T) {
	archive := NewArchive(filepath.Join(t.TempDir(), "snapshots.json"))
	if err := archive.Append(testSnapshot(t, "2026-01-01", 1000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := archive.Append(testSnapshot(t, "2026-01-01", 1100)); err == nil {
		t.Error("Expected error for duplicate snapshot date")
	}
	snapshots, err := archive.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("Expected the rejected snapshot to leave the archive untouched, got %d entries", len(snapshots))
	}
}

func TestArchive_RejectsInvalidSnapshot(t *testing.T) {
	archive := NewArchive(filepath.Join(t.TempDir(), "snapshots.json"))
	bad := models.Snapshot{Date: day(t, "2026-01-01"), Counts: map[int]int{1: -5}}
	if err := archive.Append(bad); err == nil {
		t.Error("Expected error for negative count")
	}
}

func TestArchive_CleansStaleTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, []byte("partial write"), 0o644); err != nil {
		t.Fatalf("Failed to plant temp file: %v", err)
	}

	archive := NewArchive(path)
	if _, err := archive.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Error("Expected stale temp file to be removed")
	}
}

func TestArchive_CorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt archive: %v", err)
	}
	if _, err := NewArchive(path).Load(); err == nil {
		t.Error("Expected error for corrupt archive")
	}
}

func TestReportStore_LoadPreviousMissing(t *testing.T) {
	store := NewReportStore(filepath.Join(t.TempDir(), "report.json"))
	report, err := store.LoadPrevious()
	if err != nil {
		t.Fatalf("LoadPrevious failed: %v", err)
	}
	if report != nil {
		t.Error("Expected nil report when none was persisted")
	}
}

func TestReportStore_RoundTrip(t *testing.T) {
	store := NewReportStore(filepath.Join(t.TempDir(), "report.json"))
	original := testReport(t)

	if err := store.Save(original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.LoadPrevious()
	if err != nil {
		t.Fatalf("LoadPrevious failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected a report back")
	}
	if loaded.RunID != original.RunID {
		t.Errorf("Expected run ID %s, got %s", original.RunID, loaded.RunID)
	}
	if len(loaded.Districts) != models.TotalDistricts {
		t.Errorf("Expected %d districts, got %d", models.TotalDistricts, len(loaded.Districts))
	}
	if loaded.Overall.Distribution[26] != 1.0 {
		t.Errorf("Distribution not preserved: %v", loaded.Overall.Distribution)
	}
}

func TestReportStore_RefusesInvalidReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	store := NewReportStore(path)
	bad := testReport(t)
	bad.Districts = bad.Districts[:5]
	if err := store.Save(bad); err == nil {
		t.Error("Expected error persisting a structurally invalid report")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no file written for an invalid report")
	}
}

func TestReportStore_CorruptPreviousIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt report: %v", err)
	}
	if _, err := NewReportStore(path).LoadPrevious(); err == nil {
		t.Error("Expected error for corrupt previous report")
	}
}
