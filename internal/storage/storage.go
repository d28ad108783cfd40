// Package storage persists the snapshot archive and the generated report.
//
// The archive is the system of record the engine recomputes from on every
// run; it is append-only and kept sorted by date. Writes are atomic (write
// to a temp file, then rename) so a crash mid-write never corrupts the
// archive or publishes a half-written report.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/korhall/sigcast/internal/models"
)

// Default file and directory permissions for persisted data.
const (
	filePermissions os.FileMode = 0o644
	dirPermissions  os.FileMode = 0o755
)

// archiveVersion tags the archive file format.
const archiveVersion = "1.0"

// Archive holds the ordered snapshot history on disk.
type Archive struct {
	path string
}

// archiveFile is the JSON structure of the snapshot archive.
type archiveFile struct {
	Version   string            `json:"version"`
	SavedAt   time.Time         `json:"saved_at"`
	Snapshots []models.Snapshot `json:"snapshots"`
}

// NewArchive creates an archive handle. If path is empty an OS-appropriate
// tmp location is used.
func NewArchive(path string) *Archive {
	if path == "" {
		path = filepath.Join(os.TempDir(), "sigcast", "snapshots.json")
	}
	return &Archive{path: path}
}

// Load reads the full snapshot history, sorted ascending by date. A missing
// file is not an error; it returns an empty history for a fresh start.
func (a *Archive) Load() ([]models.Snapshot, error) {
	// Clean up any stale temp file from a previous crash.
	tempPath := a.path + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	if _, err := os.Stat(a.path); os.IsNotExist(err) {
		return []models.Snapshot{}, nil
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var file archiveFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive: %w", err)
	}

	snapshots := file.Snapshots
	if snapshots == nil {
		snapshots = []models.Snapshot{}
	}
	for i := range snapshots {
		if err := snapshots[i].Validate(); err != nil {
			return nil, fmt.Errorf("archive snapshot %d: %w", i, err)
		}
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Date.Before(snapshots[j].Date)
	})
	return snapshots, nil
}

// Append validates and adds one snapshot, rejecting duplicate dates, and
// persists the updated archive atomically.
func (a *Archive) Append(snapshot models.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	snapshots, err := a.Load()
	if err != nil {
		return err
	}
	for i := range snapshots {
		if sameDay(snapshots[i].Date, snapshot.Date) {
			return fmt.Errorf("archive already contains a snapshot for %s", snapshot.Date.Format("2006-01-02"))
		}
	}

	snapshots = append(snapshots, snapshot)
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Date.Before(snapshots[j].Date)
	})
	return a.save(snapshots)
}

func (a *Archive) save(snapshots []models.Snapshot) error {
	return writeAtomic(a.path, archiveFile{
		Version:   archiveVersion,
		SavedAt:   time.Now().UTC(),
		Snapshots: snapshots,
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ReportStore persists the generated report and retrieves the previous one
// for run-over-run delta computation.
type ReportStore struct {
	path string
}

// NewReportStore creates a report store handle.
func NewReportStore(path string) *ReportStore {
	if path == "" {
		path = filepath.Join(os.TempDir(), "sigcast", "report.json")
	}
	return &ReportStore{path: path}
}

// LoadPrevious returns the last persisted report, or nil when none exists.
// A corrupt previous report is returned as an error rather than silently
// ignored; the caller decides whether to proceed without deltas.
func (r *ReportStore) LoadPrevious() (*models.Report, error) {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous report: %w", err)
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal previous report: %w", err)
	}
	return &report, nil
}

// Save persists a report atomically.
func (r *ReportStore) Save(report *models.Report) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid report: %w", err)
	}
	return writeAtomic(r.path, report)
}

// writeAtomic marshals v and writes it to path via a temp file and rename.
func writeAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
