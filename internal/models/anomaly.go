package models

import (
	"errors"
	"fmt"
	"time"
)

// Anomaly records a single-interval drop large enough to suggest a
// packet-level rejection event rather than routine signature-by-signature
// corrections. Anomalies are flagged, never corrected: they feed a
// forward-looking rejection-rate penalty but do not alter the counts.
type Anomaly struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	PrevDate  time.Time `json:"prev_date"`
	District  int       `json:"district"`
	PrevCount int       `json:"prev_count"`
	CurCount  int       `json:"cur_count"`
	Drop      int       `json:"drop"`
	DropPct   float64   `json:"drop_pct"`
}

// Validate checks that all anomaly fields are valid.
func (a *Anomaly) Validate() error {
	if a.ID == "" {
		return errors.New("anomaly ID must not be empty")
	}
	if a.District < 1 || a.District > TotalDistricts {
		return fmt.Errorf("district %d out of range 1..%d", a.District, TotalDistricts)
	}
	if a.Drop <= 0 {
		return errors.New("anomaly drop must be positive")
	}
	if a.Drop != a.PrevCount-a.CurCount {
		return errors.New("drop must equal prev_count - cur_count")
	}
	if a.DropPct <= 0 || a.DropPct > 1.0 {
		return errors.New("drop_pct must be in (0, 1]")
	}
	if !a.Date.After(a.PrevDate) {
		return errors.New("anomaly date must be after prev_date")
	}
	return nil
}
