// Command replay backtests the engine over the snapshot archive: it reruns
// the full pipeline as of each snapshot date, using only the history that
// existed at that point, and prints how the headline numbers evolved.
//
// Useful for checking how early the model converged on the eventual outcome
// and how hard the cutoff-day regime change moved the headline.
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/korhall/sigcast/internal/config"
	"github.com/korhall/sigcast/internal/engine"
	"github.com/korhall/sigcast/internal/models"
	"github.com/korhall/sigcast/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	snapshots, err := storage.NewArchive(cfg.Storage.ArchivePath).Load()
	if err != nil {
		log.Fatalf("Failed to load snapshot archive: %v", err)
	}
	if len(snapshots) == 0 {
		log.Fatal("Snapshot archive is empty; nothing to replay")
	}

	fmt.Printf("Replaying %d snapshots (%s → %s)\n\n",
		len(snapshots),
		snapshots[0].Date.Format("2006-01-02"),
		snapshots[len(snapshots)-1].Date.Format("2006-01-02"))

	fmt.Printf("%-12s %-13s %-10s %-5s %-10s %-9s %-11s %s\n",
		"Date", "Mode", "Verified", "Met", "P(qual)", "Expected", "Confidence", "Delta")
	fmt.Println(strings.Repeat("-", 84))

	var prev *models.Report
	var last *models.Report
	for i := range snapshots {
		// Rerun with only the history that existed as of this snapshot.
		report, err := engine.Run(snapshots[:i+1], prev, snapshots[i].Date, cfg)
		if err != nil {
			log.Fatalf("Replay failed at %s: %v", snapshots[i].Date.Format("2006-01-02"), err)
		}

		met := 0
		for _, d := range report.Districts {
			if d.Verified >= d.Threshold {
				met++
			}
		}

		fmt.Printf("%-12s %-13s %-10d %-5d %-10s %-9.1f %-11s %+.1f pp\n",
			snapshots[i].Date.Format("2006-01-02"),
			report.Meta.Mode,
			report.Meta.TotalVerified,
			met,
			fmt.Sprintf("%.1f%%", report.Overall.QualifyProbability*100),
			report.Overall.ExpectedQualifying,
			fmt.Sprintf("%.0f%%", report.Overall.Confidence*100),
			report.Movers.OverallDelta*100)

		prev = report
		last = report
	}

	printSummary(last)
}

// printSummary prints the final run's headline and the districts under the
// heaviest removal pressure.
func printSummary(report *models.Report) {
	fmt.Printf("\n--- Final state (%s) ---\n", report.Meta.LastSnapshot.Format("2006-01-02"))
	fmt.Printf("P(qualify): %.1f%% (raw %.1f%%)\n",
		report.Overall.QualifyProbability*100, report.Overall.RawQualify*100)
	fmt.Printf("Expected qualifying districts: %.1f of %d required\n",
		report.Overall.ExpectedQualifying, report.Meta.DistrictsRequired)
	fmt.Printf("Confidence: %.0f%% (maturity %.2f, certainty %.2f, sharpness %.2f)\n",
		report.Overall.Confidence*100,
		report.Overall.ConfidenceComponents.Maturity,
		report.Overall.ConfidenceComponents.Certainty,
		report.Overall.ConfidenceComponents.Sharpness)
	fmt.Printf("Statewide rejection rate: %.1f%%\n", report.Meta.StatewideRejectionRate*100)

	districts := make([]models.DistrictResult, len(report.Districts))
	copy(districts, report.Districts)
	sort.SliceStable(districts, func(i, j int) bool {
		return districts[i].RejectionRate > districts[j].RejectionRate
	})
	fmt.Println("\nHighest rejection rates:")
	for i := 0; i < 5 && i < len(districts); i++ {
		d := districts[i]
		fmt.Printf("  D%-3d %.1f%% (verified %d / %d, %s)\n",
			d.District, d.RejectionRate*100, d.Verified, d.Threshold, d.Tier)
	}
}
