// Package models defines the core domain entities for the sigcast engine.
// These models represent dated signature-count snapshots, per-district
// qualification results, and the full report emitted after each run.
// All models include built-in validation to ensure data integrity throughout
// the pipeline.
//
// Terminology (matching the Lieutenant Governor's office posting format):
//   - Snapshot: one dated observation of verified signature counts per district.
//   - District: one of 29 fixed senate districts, each with its own threshold.
//   - Interval: the gap between two consecutive snapshots; the unit over which
//     velocity and removals are measured.
package models

import (
	"errors"
	"fmt"
	"time"
)

// TotalDistricts is the number of senate districts with independent thresholds.
const TotalDistricts = 29

// Snapshot is one dated observation of per-district verified counts.
// Snapshots are append-only; the engine always recomputes derived statistics
// from the complete ordered list, never by patching a prior result.
type Snapshot struct {
	Date   time.Time   `json:"date"`
	Counts map[int]int `json:"counts"`
	Source string      `json:"source,omitempty"`
}

// Validate checks that all snapshot fields are valid.
func (s *Snapshot) Validate() error {
	if s.Date.IsZero() {
		return errors.New("snapshot date must be set")
	}
	if len(s.Counts) == 0 {
		return errors.New("snapshot must contain at least one district count")
	}
	for district, count := range s.Counts {
		if district < 1 || district > TotalDistricts {
			return fmt.Errorf("district %d out of range 1..%d", district, TotalDistricts)
		}
		if count < 0 {
			return fmt.Errorf("district %d count must not be negative, got %d", district, count)
		}
	}
	return nil
}

// Count returns the verified count for a district, or 0 when the snapshot
// has no entry for it (districts with no verified signatures are omitted
// by some source files).
func (s *Snapshot) Count(district int) int {
	return s.Counts[district]
}

// Total returns the statewide verified count in this snapshot.
func (s *Snapshot) Total() int {
	total := 0
	for _, count := range s.Counts {
		total += count
	}
	return total
}
