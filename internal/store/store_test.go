package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

type recordingListener struct {
	invalidated []string
}

func (l *recordingListener) InvalidateProject(projectID string) {
	l.invalidated = append(l.invalidated, projectID)
}

func validFinding(id, runID string) models.Finding {
	return models.Finding{
		ID:              id,
		EndpointKey:     "GET https://example.com/api/items",
		RunID:           runID,
		DetectorID:      "sql-error-signature",
		Title:           "SQL error signature in response body",
		Severity:        models.SeverityHigh,
		CWE:             "CWE-89",
		EvidenceAnchors: []string{"response_body"},
		CreatedAt:       time.Now().UTC(),
	}
}

func TestFindingsStoreAppendAndAll(t *testing.T) {
	s, err := NewFindingsStore(t.TempDir())
	require.NoError(t, err)

	listener := &recordingListener{}
	s.AddListener(listener)

	require.NoError(t, s.Append("proj-1", []models.Finding{
		validFinding("f-1", "run-1"),
		validFinding("f-2", "run-1"),
	}))
	require.NoError(t, s.Append("proj-1", []models.Finding{validFinding("f-3", "run-2")}))

	all, err := s.All("proj-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "f-1", all[0].ID, "append order preserved")
	assert.Equal(t, "f-3", all[2].ID)

	assert.Equal(t, []string{"proj-1", "proj-1"}, listener.invalidated,
		"every successful append must invalidate the project")
}

func TestFindingsStoreRejectsWholeBatch(t *testing.T) {
	s, err := NewFindingsStore(t.TempDir())
	require.NoError(t, err)

	listener := &recordingListener{}
	s.AddListener(listener)

	require.NoError(t, s.Append("proj-1", []models.Finding{validFinding("f-1", "run-1")}))

	bad := validFinding("f-2", "run-1")
	bad.Severity = "catastrophic"
	err = s.Append("proj-1", []models.Finding{validFinding("f-3", "run-1"), bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "severity")

	// No partial write: the valid item of the rejected batch is absent
	// and previously persisted findings are untouched.
	all, err := s.All("proj-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "f-1", all[0].ID)

	assert.Len(t, listener.invalidated, 1, "rejected batch must not invalidate")
}

func TestFindingsStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFindingsStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Append("proj-1", []models.Finding{validFinding("f-1", "run-1")}))

	reopened, err := NewFindingsStore(dir)
	require.NoError(t, err)
	all, err := reopened.All("proj-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "f-1", all[0].ID)
	assert.Equal(t, models.SeverityHigh, all[0].Severity)
}

func TestFindingsStoreUnknownProject(t *testing.T) {
	s, err := NewFindingsStore(t.TempDir())
	require.NoError(t, err)

	all, err := s.All("never-written")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDossierStoreAppendRun(t *testing.T) {
	s, err := NewDossierStore(t.TempDir())
	require.NoError(t, err)

	listener := &recordingListener{}
	s.AddListener(listener)

	key := "GET https://example.com/api/items"
	started := time.Now().Add(-time.Minute).UTC()

	require.NoError(t, s.AppendRun("proj-1", key, models.RunSummary{
		RunID:         "run-1",
		StartedAt:     started,
		FinishedAt:    started.Add(30 * time.Second),
		FindingsCount: 2,
		WorstSeverity: models.SeverityHigh,
	}))
	require.NoError(t, s.AppendRun("proj-1", key, models.RunSummary{
		RunID:      "run-2",
		StartedAt:  started.Add(time.Minute),
		FinishedAt: started.Add(2 * time.Minute),
	}))

	entry, err := s.Get("proj-1", key)
	require.NoError(t, err)
	require.Len(t, entry.Runs, 2)
	assert.Equal(t, "run-1", entry.Runs[0].RunID, "history stays in append order")
	assert.Equal(t, "run-2", entry.Runs[1].RunID)

	assert.Equal(t, []string{"proj-1", "proj-1"}, listener.invalidated)
}

func TestDossierStoreRejectsMalformedKey(t *testing.T) {
	s, err := NewDossierStore(t.TempDir())
	require.NoError(t, err)

	err = s.AppendRun("proj-1", "not a key", models.RunSummary{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint key")
}

func TestDossierStoreGetNotFound(t *testing.T) {
	s, err := NewDossierStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get("proj-1", "GET https://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDossierStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	key := "GET https://example.com/api/items"

	s, err := NewDossierStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.AppendRun("proj-1", key, models.RunSummary{
		RunID:         "run-1",
		StartedAt:     time.Now().UTC(),
		FinishedAt:    time.Now().UTC(),
		FindingsCount: 1,
		WorstSeverity: models.SeverityLow,
	}))

	reopened, err := NewDossierStore(dir)
	require.NoError(t, err)
	entry, err := reopened.Get("proj-1", key)
	require.NoError(t, err)
	require.Len(t, entry.Runs, 1)
	assert.Equal(t, models.SeverityLow, entry.Runs[0].WorstSeverity)
}
