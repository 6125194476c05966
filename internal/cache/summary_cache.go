// Package cache holds the derived vulnerability index: findings grouped
// by (endpoint key, detector id) with occurrence counts and worst
// severity. The cache is a pure function of the findings log, so any
// inconsistency is fixed by recomputation, never by patching rows.
package cache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BetterCallFirewall/Scanhound/internal/logging"
	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// FindingsSource is the slice of the findings store the cache rebuilds
// from.
type FindingsSource interface {
	All(projectID string) ([]models.Finding, error)
}

// SummaryCache caches VulnSummaryRow sets per project.
//
// Invalidation bumps a per-project generation counter. A rebuild records
// the generation before it snapshots the findings log and only installs
// its rows if the generation is still current, so a recompute racing a
// concurrent invalidate can never cache stale rows.
type SummaryCache struct {
	mu          sync.Mutex
	source      FindingsSource
	rows        map[string][]models.VulnSummaryRow
	generations map[string]uint64
}

// NewSummaryCache creates an empty cache over the given findings source.
func NewSummaryCache(source FindingsSource) *SummaryCache {
	return &SummaryCache{
		source:      source,
		rows:        make(map[string][]models.VulnSummaryRow),
		generations: make(map[string]uint64),
	}
}

// GetSummary returns the cached rows for a project, recomputing them
// from the findings log on miss.
func (c *SummaryCache) GetSummary(projectID string) ([]models.VulnSummaryRow, error) {
	c.mu.Lock()
	if rows, ok := c.rows[projectID]; ok {
		out := append([]models.VulnSummaryRow(nil), rows...)
		c.mu.Unlock()
		return out, nil
	}
	gen := c.generations[projectID]
	c.mu.Unlock()

	findings, err := c.source.All(projectID)
	if err != nil {
		return nil, fmt.Errorf("summary cache: reading findings: %w", err)
	}

	rows, err := aggregate(findings)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[projectID] == gen {
		c.rows[projectID] = rows
	} else {
		// An invalidation landed while we were rebuilding; the snapshot
		// is stale. Serve it to this caller but do not cache it.
		logging.L().Debugw("discarding stale summary rebuild", "project_id", projectID)
	}
	return append([]models.VulnSummaryRow(nil), rows...), nil
}

// InvalidateProject discards the cached rows for a project. Idempotent.
// Called synchronously by the stores' write paths.
func (c *SummaryCache) InvalidateProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, projectID)
	c.generations[projectID]++
}

// aggregate groups findings by (endpoint key, detector id) and computes
// the summary rows, validating each before it can be cached.
func aggregate(findings []models.Finding) ([]models.VulnSummaryRow, error) {
	type groupKey struct {
		endpointKey string
		detectorID  string
	}

	groups := make(map[groupKey]*models.VulnSummaryRow)
	order := make([]groupKey, 0)

	for i := range findings {
		f := &findings[i]
		k := groupKey{f.EndpointKey, f.DetectorID}

		row, ok := groups[k]
		if !ok {
			groups[k] = &models.VulnSummaryRow{
				EndpointKey:   f.EndpointKey,
				DetectorID:    f.DetectorID,
				Title:         f.Title,
				Occurrences:   1,
				LatestRunID:   f.RunID,
				LatestAt:      f.CreatedAt,
				WorstSeverity: f.Severity,
			}
			order = append(order, k)
			continue
		}

		row.Occurrences++
		row.WorstSeverity = models.WorstSeverity(row.WorstSeverity, f.Severity)
		if !f.CreatedAt.Before(row.LatestAt) {
			row.LatestAt = f.CreatedAt
			row.LatestRunID = f.RunID
			row.Title = f.Title
		}
	}

	rows := make([]models.VulnSummaryRow, 0, len(order))
	for _, k := range order {
		row := groups[k]
		row.SeverityRank = row.WorstSeverity.Rank()
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("summary cache: recomputed row invalid: %w", err)
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SeverityRank != rows[j].SeverityRank {
			return rows[i].SeverityRank > rows[j].SeverityRank
		}
		if rows[i].EndpointKey != rows[j].EndpointKey {
			return rows[i].EndpointKey < rows[j].EndpointKey
		}
		return rows[i].DetectorID < rows[j].DetectorID
	})
	return rows, nil
}
