package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BetterCallFirewall/Scanhound/internal/broker"
	"github.com/BetterCallFirewall/Scanhound/internal/config"
	"github.com/BetterCallFirewall/Scanhound/internal/coordinator"
	"github.com/BetterCallFirewall/Scanhound/internal/models"
	"github.com/BetterCallFirewall/Scanhound/internal/store"
	"github.com/BetterCallFirewall/Scanhound/internal/stream"
)

type fakeCoordinator struct {
	startResult coordinator.StartResult
	startErr    error
	gotProject  string
	gotKeys     []string
	runs        map[string]models.Run
}

func (f *fakeCoordinator) StartRun(_ context.Context, projectID, runID string, keys []string) (coordinator.StartResult, error) {
	f.gotProject = projectID
	f.gotKeys = keys
	return f.startResult, f.startErr
}

func (f *fakeCoordinator) Runs() []models.Run {
	out := make([]models.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out
}

func (f *fakeCoordinator) Run(runID string) (models.Run, bool) {
	r, ok := f.runs[runID]
	return r, ok
}

type fakeSummaries struct {
	rows []models.VulnSummaryRow
	err  error
}

func (f *fakeSummaries) GetSummary(string) ([]models.VulnSummaryRow, error) {
	return f.rows, f.err
}

type fakeDossiers struct {
	entry *models.DossierEntry
	err   error
}

func (f *fakeDossiers) Get(string, string) (*models.DossierEntry, error) {
	return f.entry, f.err
}

func newTestServer(coord *fakeCoordinator, summaries *fakeSummaries, dossiers *fakeDossiers) *httptest.Server {
	events := broker.New[stream.Event](16)
	srv := NewServer(&config.Config{}, coord, summaries, dossiers, stream.NewHub(events))
	return httptest.NewServer(srv.Handler())
}

func TestStartRunEndpoint(t *testing.T) {
	coord := &fakeCoordinator{
		startResult: coordinator.StartResult{RunID: "run-1", Endpoints: 2},
	}
	ts := newTestServer(coord, &fakeSummaries{}, &fakeDossiers{})
	defer ts.Close()

	body := `{"project_id":"shop","endpoint_keys":["GET https://example.com/a","GET https://example.com/b"]}`
	resp, err := http.Post(ts.URL+"/api/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "shop", coord.gotProject)
	assert.Len(t, coord.gotKeys, 2)

	var result coordinator.StartResult
	require.NoError(t, decodeBody(resp, &result))
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 2, result.Endpoints)
}

func TestStartRunAlreadyRunningIsNotAnError(t *testing.T) {
	coord := &fakeCoordinator{
		startResult: coordinator.StartResult{AlreadyRunning: true},
	}
	ts := newTestServer(coord, &fakeSummaries{}, &fakeDossiers{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"project_id":"shop","endpoint_keys":["GET https://example.com/a"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result coordinator.StartResult
	require.NoError(t, decodeBody(resp, &result))
	assert.True(t, result.AlreadyRunning)
}

func TestStartRunRejectsInvalidBody(t *testing.T) {
	ts := newTestServer(&fakeCoordinator{}, &fakeSummaries{}, &fakeDossiers{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/runs", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRun(t *testing.T) {
	started := time.Now().UTC().Truncate(time.Second)
	coord := &fakeCoordinator{runs: map[string]models.Run{
		"run-1": {RunID: "run-1", ProjectID: "shop", StartedAt: started},
	}}
	ts := newTestServer(coord, &fakeSummaries{}, &fakeDossiers{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/runs/run-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var run models.Run
	require.NoError(t, decodeBody(resp, &run))
	assert.Equal(t, "shop", run.ProjectID)

	resp, err = http.Get(ts.URL + "/api/runs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSummary(t *testing.T) {
	summaries := &fakeSummaries{rows: []models.VulnSummaryRow{{
		EndpointKey:   "GET https://example.com/a",
		DetectorID:    "sql-error-signature",
		Title:         "SQL error signature in response",
		Occurrences:   3,
		LatestRunID:   "run-9",
		LatestAt:      time.Now(),
		WorstSeverity: models.SeverityHigh,
		SeverityRank:  models.SeverityHigh.Rank(),
	}}}
	ts := newTestServer(&fakeCoordinator{}, summaries, &fakeDossiers{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/summary/shop")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []models.VulnSummaryRow
	require.NoError(t, decodeBody(resp, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Occurrences)
}

func TestGetDossier(t *testing.T) {
	key := "GET https://example.com/a"
	dossiers := &fakeDossiers{entry: &models.DossierEntry{
		EndpointKey: key,
		Runs:        []models.RunSummary{{RunID: "run-1", FindingsCount: 1, WorstSeverity: models.SeverityLow}},
	}}
	ts := newTestServer(&fakeCoordinator{}, &fakeSummaries{}, dossiers)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/dossier/shop?key=" + url.QueryEscape(key))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var entry models.DossierEntry
	require.NoError(t, decodeBody(resp, &entry))
	assert.Equal(t, key, entry.EndpointKey)

	// Missing key parameter is a client error, unknown endpoint a 404.
	resp, err = http.Get(ts.URL + "/api/dossier/shop")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	dossiers.entry = nil
	dossiers.err = store.ErrNotFound
	resp, err = http.Get(ts.URL + "/api/dossier/shop?key=" + url.QueryEscape(key))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(&fakeCoordinator{}, &fakeSummaries{}, &fakeDossiers{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/runs", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func decodeBody(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
