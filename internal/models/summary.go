package models

import (
	"fmt"
	"time"
)

// VulnSummaryRow is one row of the derived vulnerability index, grouping
// findings by (endpoint key, detector id). Rows are rebuilt from the
// findings log on cache miss and are never authoritative.
type VulnSummaryRow struct {
	EndpointKey   string    `json:"endpoint_key"`
	DetectorID    string    `json:"detector_id"`
	TemplateID    string    `json:"template_id,omitempty"`
	Title         string    `json:"title"`
	Occurrences   int       `json:"occurrences"`
	LatestRunID   string    `json:"latest_run_id"`
	LatestAt      time.Time `json:"latest_at"`
	WorstSeverity Severity  `json:"worst_severity"`
	SeverityRank  int       `json:"severity_rank"`
}

// Validate checks a recomputed row before it is cached.
func (r *VulnSummaryRow) Validate() error {
	if !endpointKeyPattern.MatchString(r.EndpointKey) {
		return fmt.Errorf("summary schema: malformed endpoint_key %q", r.EndpointKey)
	}
	if r.DetectorID == "" {
		return fmt.Errorf("summary schema: detector_id is required")
	}
	if r.Title == "" {
		return fmt.Errorf("summary schema: title is required")
	}
	if r.Occurrences < 1 {
		return fmt.Errorf("summary schema: occurrences must be positive, got %d", r.Occurrences)
	}
	if r.LatestRunID == "" {
		return fmt.Errorf("summary schema: latest_run_id is required")
	}
	if r.LatestAt.IsZero() {
		return fmt.Errorf("summary schema: latest_at is required")
	}
	if !r.WorstSeverity.IsValid() {
		return fmt.Errorf("summary schema: invalid worst_severity %q", r.WorstSeverity)
	}
	if r.SeverityRank != r.WorstSeverity.Rank() {
		return fmt.Errorf("summary schema: severity_rank %d does not match %q", r.SeverityRank, r.WorstSeverity)
	}
	return nil
}
