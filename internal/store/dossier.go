package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BetterCallFirewall/Scanhound/internal/logging"
	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// DossierStore keeps the per-endpoint ordered history of run summaries,
// one dossier.json per project. Histories are append-only: AppendRun
// never rewrites a prior entry.
type DossierStore struct {
	notifier

	mu       sync.RWMutex
	basePath string
	dossiers map[string]map[string]*models.DossierEntry // project id -> endpoint key -> entry
	loaded   map[string]bool
}

// NewDossierStore creates a dossier store rooted at basePath.
func NewDossierStore(basePath string) (*DossierStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating dossier store dir: %w", err)
	}
	return &DossierStore{
		basePath: basePath,
		dossiers: make(map[string]map[string]*models.DossierEntry),
		loaded:   make(map[string]bool),
	}, nil
}

// AppendRun appends one run summary to the endpoint's history and
// notifies the invalidation listeners. Called exactly once per completed
// run per touched endpoint.
func (s *DossierStore) AppendRun(projectID, endpointKey string, sum models.RunSummary) error {
	if projectID == "" {
		return fmt.Errorf("dossier store: project id is required")
	}
	if !models.ValidEndpointKey(endpointKey) {
		logging.L().Errorw("rejecting dossier update",
			"schema", "dossier_entry",
			"project_id", projectID,
			"endpoint_key", endpointKey,
		)
		return fmt.Errorf("dossier store: malformed endpoint key %q", endpointKey)
	}
	if sum.RunID == "" {
		return fmt.Errorf("dossier store: run summary is missing run_id")
	}
	if !sum.WorstSeverity.IsValid() && sum.FindingsCount > 0 {
		return fmt.Errorf("dossier store: run summary has findings but invalid worst severity %q", sum.WorstSeverity)
	}

	s.mu.Lock()
	if err := s.load(projectID); err != nil {
		s.mu.Unlock()
		return err
	}

	project := s.dossiers[projectID]
	if project == nil {
		project = make(map[string]*models.DossierEntry)
		s.dossiers[projectID] = project
	}
	entry := project[endpointKey]
	if entry == nil {
		entry = &models.DossierEntry{EndpointKey: endpointKey}
		project[endpointKey] = entry
	}
	entry.Runs = append(entry.Runs, sum)

	if err := s.persist(projectID); err != nil {
		// Roll the in-memory append back so memory and disk agree.
		entry.Runs = entry.Runs[:len(entry.Runs)-1]
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(projectID)
	return nil
}

// Get returns the dossier entry for one endpoint, or ErrNotFound.
func (s *DossierStore) Get(projectID, endpointKey string) (*models.DossierEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(projectID); err != nil {
		return nil, err
	}

	entry, ok := s.dossiers[projectID][endpointKey]
	if !ok {
		return nil, ErrNotFound
	}

	out := models.DossierEntry{
		EndpointKey: entry.EndpointKey,
		Runs:        append([]models.RunSummary(nil), entry.Runs...),
	}
	return &out, nil
}

// Keys returns every endpoint key with a dossier in the project.
func (s *DossierStore) Keys(projectID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(projectID); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(s.dossiers[projectID]))
	for key := range s.dossiers[projectID] {
		keys = append(keys, key)
	}
	return keys, nil
}

// load reads the project's dossier file into memory once. Callers hold mu.
func (s *DossierStore) load(projectID string) error {
	if s.loaded[projectID] {
		return nil
	}

	data, err := os.ReadFile(s.filePath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded[projectID] = true
			return nil
		}
		return fmt.Errorf("dossier store: reading file: %w", err)
	}

	project := make(map[string]*models.DossierEntry)
	if err := json.Unmarshal(data, &project); err != nil {
		return fmt.Errorf("dossier store: corrupt dossier file: %w", err)
	}

	s.dossiers[projectID] = project
	s.loaded[projectID] = true
	return nil
}

// persist writes the project's dossier map to disk. Callers hold mu.
func (s *DossierStore) persist(projectID string) error {
	path := s.filePath(projectID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dossier store: creating project dir: %w", err)
	}

	data, err := json.MarshalIndent(s.dossiers[projectID], "", "  ")
	if err != nil {
		return fmt.Errorf("dossier store: encoding dossier: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("dossier store: writing dossier: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("dossier store: replacing dossier: %w", err)
	}
	return nil
}

func (s *DossierStore) filePath(projectID string) string {
	return filepath.Join(s.basePath, sanitizeProjectID(projectID), "dossier.json")
}
