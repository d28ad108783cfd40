package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/korhall/sigcast/internal/config"
	"github.com/korhall/sigcast/internal/engine"
	"github.com/korhall/sigcast/internal/logger"
	"github.com/korhall/sigcast/internal/models"
	"github.com/korhall/sigcast/internal/notify"
	"github.com/korhall/sigcast/internal/storage"
	"github.com/korhall/sigcast/internal/telegram"
)

var (
	configPath   = flag.String("config", "configs/config.yaml", "Path to configuration file")
	snapshotPath = flag.String("add-snapshot", "", "Path to a snapshot JSON file to append to the archive before running")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	archive := storage.NewArchive(cfg.Storage.ArchivePath)

	if *snapshotPath != "" {
		snapshot, err := readSnapshot(*snapshotPath)
		if err != nil {
			logger.Fatal("Failed to read snapshot file: %v", err)
		}
		if err := archive.Append(*snapshot); err != nil {
			logger.Fatal("Failed to append snapshot: %v", err)
		}
		logger.Info("Appended snapshot for %s (%d signatures statewide)",
			snapshot.Date.Format("2006-01-02"), snapshot.Total())
	}

	snapshots, err := archive.Load()
	if err != nil {
		logger.Fatal("Failed to load snapshot archive: %v", err)
	}
	if len(snapshots) == 0 {
		logger.Fatal("Snapshot archive is empty; append a snapshot with -add-snapshot first")
	}
	logger.Info("Loaded %d snapshots (%s → %s)",
		len(snapshots),
		snapshots[0].Date.Format("2006-01-02"),
		snapshots[len(snapshots)-1].Date.Format("2006-01-02"))

	reports := storage.NewReportStore(cfg.Storage.ReportPath)
	prev, err := reports.LoadPrevious()
	if err != nil {
		logger.Warn("Could not load previous report, deltas will be zero: %v", err)
		prev = nil
	}

	startTime := time.Now()
	report, err := engine.Run(snapshots, prev, time.Now().UTC(), cfg)
	if err != nil {
		logger.Fatal("Engine run failed: %v", err)
	}

	if err := reports.Save(report); err != nil {
		logger.Fatal("Failed to persist report: %v", err)
	}

	met := 0
	for _, d := range report.Districts {
		if d.Verified >= d.Threshold {
			met++
		}
	}
	logger.Info("Run %s complete in %v: mode=%s, districts meeting threshold=%d/%d, P(qualify)=%.1f%%, expected=%.1f, confidence=%.0f%%",
		report.RunID,
		time.Since(startTime),
		report.Meta.Mode,
		met,
		len(report.Districts),
		report.Overall.QualifyProbability*100,
		report.Overall.ExpectedQualifying,
		report.Overall.Confidence*100)

	if cfg.Telegram.Enabled {
		sendNotification(cfg, report)
	}
}

// sendNotification sends a Telegram update when the run's movement is notable.
func sendNotification(cfg *config.Config, report *models.Report) {
	decision := notify.Decide(report, notify.Policy{MinDelta: cfg.Telegram.NotifyDelta})
	if !decision.Notify {
		logger.Debug("No notification: delta %.4f below %.4f, no crossings, no fresh anomalies",
			report.Movers.OverallDelta, cfg.Telegram.NotifyDelta)
		return
	}
	logger.Info("Notification triggers: %v", decision.Triggers)

	client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
	if err != nil {
		logger.Error("Failed to initialize Telegram client: %v", err)
		return
	}
	if err := client.SendReport(report); err != nil {
		logger.Error("Failed to send Telegram notification: %v", err)
		return
	}
	logger.Info("Sent Telegram notification")
}

func readSnapshot(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
