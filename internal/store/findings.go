package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BetterCallFirewall/Scanhound/internal/logging"
	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// FindingsStore is the append-only findings log, one JSONL file per
// project. Findings are validated before anything is written; a batch
// either lands completely or not at all.
type FindingsStore struct {
	notifier

	mu       sync.RWMutex
	basePath string
	findings map[string][]models.Finding // project id -> ordered log
	loaded   map[string]bool
}

// NewFindingsStore creates a findings store rooted at basePath.
func NewFindingsStore(basePath string) (*FindingsStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating findings store dir: %w", err)
	}
	return &FindingsStore{
		basePath: basePath,
		findings: make(map[string][]models.Finding),
		loaded:   make(map[string]bool),
	}, nil
}

// Append validates and appends a batch of findings for one project.
// If any finding fails validation the whole batch is rejected and
// nothing is written. On success every registered invalidation listener
// is notified before Append returns.
func (s *FindingsStore) Append(projectID string, findings []models.Finding) error {
	if projectID == "" {
		return fmt.Errorf("findings store: project id is required")
	}
	if len(findings) == 0 {
		return nil
	}

	for i := range findings {
		if err := findings[i].Validate(); err != nil {
			logging.L().Errorw("rejecting findings batch",
				"schema", "finding",
				"project_id", projectID,
				"index", i,
				"error", err,
			)
			return fmt.Errorf("findings store: batch item %d: %w", i, err)
		}
	}

	s.mu.Lock()
	if err := s.load(projectID); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.appendFile(projectID, findings); err != nil {
		s.mu.Unlock()
		return err
	}
	s.findings[projectID] = append(s.findings[projectID], findings...)
	s.mu.Unlock()

	// Invalidation happens outside the lock so a listener may read back
	// through the store without deadlocking.
	s.notify(projectID)
	return nil
}

// All returns a copy of the full findings log for a project, in append
// order. An unknown project yields an empty log, not an error.
func (s *FindingsStore) All(projectID string) ([]models.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(projectID); err != nil {
		return nil, err
	}

	out := make([]models.Finding, len(s.findings[projectID]))
	copy(out, s.findings[projectID])
	return out, nil
}

// load reads the project's log file into memory once. Callers hold mu.
func (s *FindingsStore) load(projectID string) error {
	if s.loaded[projectID] {
		return nil
	}

	file, err := os.Open(s.logPath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded[projectID] = true
			return nil
		}
		return fmt.Errorf("findings store: opening log: %w", err)
	}
	defer file.Close()

	var log []models.Finding
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var f models.Finding
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return fmt.Errorf("findings store: corrupt log line: %w", err)
		}
		log = append(log, f)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("findings store: reading log: %w", err)
	}

	s.findings[projectID] = log
	s.loaded[projectID] = true
	return nil
}

// appendFile appends the batch to the project log file. Callers hold mu.
func (s *FindingsStore) appendFile(projectID string, findings []models.Finding) error {
	path := s.logPath(projectID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("findings store: creating project dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("findings store: opening log for append: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for i := range findings {
		if err := enc.Encode(&findings[i]); err != nil {
			return fmt.Errorf("findings store: encoding finding: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("findings store: flushing log: %w", err)
	}
	return nil
}

func (s *FindingsStore) logPath(projectID string) string {
	return filepath.Join(s.basePath, sanitizeProjectID(projectID), "findings.jsonl")
}

// sanitizeProjectID keeps project directories flat and inside basePath.
func sanitizeProjectID(projectID string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(projectID)
}
