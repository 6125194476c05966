package coordinator

import (
	"sync"
	"time"

	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// runLog is the in-memory record of every run this process has
// executed. Finished runs are immutable and only read.
type runLog struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
	ids  []string // creation order
}

func newRunLog() *runLog {
	return &runLog{runs: make(map[string]*models.Run)}
}

func (l *runLog) create(runID, projectID string, endpointKeys []string) *models.Run {
	l.mu.Lock()
	defer l.mu.Unlock()

	run := &models.Run{
		RunID:          runID,
		ProjectID:      projectID,
		StartedAt:      time.Now().UTC(),
		EndpointKeys:   append([]string(nil), endpointKeys...),
		SeverityCounts: make(map[string]map[string]int),
	}
	l.runs[runID] = run
	l.ids = append(l.ids, runID)
	return run
}

func (l *runLog) countFinding(runID, endpointKey string, sev models.Severity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.runs[runID]
	if !ok {
		return
	}
	counts := run.SeverityCounts[endpointKey]
	if counts == nil {
		counts = make(map[string]int)
		run.SeverityCounts[endpointKey] = counts
	}
	counts[sev.String()]++
}

func (l *runLog) finish(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if run, ok := l.runs[runID]; ok && run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
}

// get returns a deep copy so finished runs stay immutable to callers.
func (l *runLog) get(runID string) (models.Run, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	run, ok := l.runs[runID]
	if !ok {
		return models.Run{}, false
	}
	return copyRun(run), true
}

func (l *runLog) snapshot() []models.Run {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Run, 0, len(l.ids))
	for _, id := range l.ids {
		out = append(out, copyRun(l.runs[id]))
	}
	return out
}

func copyRun(run *models.Run) models.Run {
	out := *run
	out.EndpointKeys = append([]string(nil), run.EndpointKeys...)
	out.SeverityCounts = make(map[string]map[string]int, len(run.SeverityCounts))
	for key, counts := range run.SeverityCounts {
		c := make(map[string]int, len(counts))
		for sev, n := range counts {
			c[sev] = n
		}
		out.SeverityCounts[key] = c
	}
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
