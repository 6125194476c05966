package models

import (
	"fmt"
	"regexp"
	"time"
)

// endpointKeyPattern matches canonical endpoint keys:
// uppercase method, one space, absolute http(s) URL.
var endpointKeyPattern = regexp.MustCompile(`^[A-Z]+ https?://\S+$`)

// Finding is one detected issue for one endpoint in one run.
// Findings are appended once and never mutated.
type Finding struct {
	ID                   string    `json:"id"`
	EndpointKey          string    `json:"endpoint_key"`
	RunID                string    `json:"run_id"`
	DetectorID           string    `json:"detector_id"`
	Title                string    `json:"title"`
	Severity             Severity  `json:"severity"`
	CWE                  string    `json:"cwe,omitempty"`
	CVEID                string    `json:"cve_id,omitempty"`
	AffectedComponent    string    `json:"affected_component,omitempty"`
	EvidenceAnchors      []string  `json:"evidence_anchors"`
	SuggestedRemediation string    `json:"suggested_remediation,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Validate checks the finding against the persistence schema.
// Descriptive errors name the offending field so a rejected batch
// can be diagnosed from the log line alone.
func (f *Finding) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("finding schema: id is required")
	}
	if f.RunID == "" {
		return fmt.Errorf("finding schema: run_id is required")
	}
	if f.DetectorID == "" {
		return fmt.Errorf("finding schema: detector_id is required")
	}
	if f.Title == "" {
		return fmt.Errorf("finding schema: title is required")
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("finding schema: invalid severity %q", f.Severity)
	}
	if !endpointKeyPattern.MatchString(f.EndpointKey) {
		return fmt.Errorf("finding schema: malformed endpoint_key %q", f.EndpointKey)
	}
	if len(f.EvidenceAnchors) == 0 {
		return fmt.Errorf("finding schema: at least one evidence anchor is required")
	}
	if f.CreatedAt.IsZero() {
		return fmt.Errorf("finding schema: created_at is required")
	}
	return nil
}

// ValidEndpointKey reports whether s looks like a canonical endpoint key.
func ValidEndpointKey(s string) bool {
	return endpointKeyPattern.MatchString(s)
}
