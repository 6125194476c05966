package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BetterCallFirewall/Scanhound/internal/store"
)

type startRunRequest struct {
	ProjectID    string   `json:"project_id"`
	RunID        string   `json:"run_id,omitempty"`
	EndpointKeys []string `json:"endpoint_keys"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleRuns starts a run (POST) or lists known runs (GET).
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.coordinator.Runs())

	case http.MethodPost:
		var req startRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		result, err := s.coordinator.StartRun(r.Context(), req.ProjectID, req.RunID, req.EndpointKeys)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// already_running and nothing_to_scan are structured outcomes,
		// not error statuses.
		writeJSON(w, http.StatusOK, result)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetRun serves /api/runs/{run_id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	run, ok := s.coordinator.Run(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleGetSummary serves /api/summary/{project}: the aggregated
// vulnerability index, grouped by endpoint and detector.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	projectID := strings.TrimPrefix(r.URL.Path, "/api/summary/")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project id is required")
		return
	}

	rows, err := s.summaries.GetSummary(projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleGetDossier serves /api/dossier/{project}?key={endpoint key}.
// The key travels as a query parameter because canonical keys contain
// spaces and slashes.
func (s *Server) handleGetDossier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	projectID := strings.TrimPrefix(r.URL.Path, "/api/dossier/")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project id is required")
		return
	}
	endpointKey := r.URL.Query().Get("key")
	if endpointKey == "" {
		writeError(w, http.StatusBadRequest, "key parameter is required")
		return
	}

	entry, err := s.dossiers.Get(projectID, endpointKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no dossier for this endpoint")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
