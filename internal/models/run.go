package models

import "time"

// Run records one scan execution. Once FinishedAt is set the run is
// immutable and only read.
type Run struct {
	RunID      string     `json:"run_id"`
	ProjectID  string     `json:"project_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// EndpointKeys is the deduplicated ordered set this run scanned.
	EndpointKeys []string `json:"endpoint_keys"`
	// SeverityCounts maps endpoint key -> severity -> count of findings.
	SeverityCounts map[string]map[string]int `json:"per_endpoint_severity_counts"`
}

// RunSummary is the dossier-facing digest of one run for one endpoint.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	FindingsCount int       `json:"findings_count"`
	WorstSeverity Severity  `json:"worst_severity"`
}

// DossierEntry is the ordered per-endpoint history of run summaries.
// Summaries are only ever appended; prior entries are never rewritten.
type DossierEntry struct {
	EndpointKey string       `json:"endpoint_key"`
	Runs        []RunSummary `json:"runs"`
}
