// Package coordinator orchestrates scan runs: it deduplicates the queued
// endpoints, enforces the single-executor guard per run ID, drives the
// probe and rule engine across the endpoint set, persists findings and
// dossier updates, and publishes the live event stream.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BetterCallFirewall/Scanhound/internal/broker"
	"github.com/BetterCallFirewall/Scanhound/internal/logging"
	"github.com/BetterCallFirewall/Scanhound/internal/models"
	"github.com/BetterCallFirewall/Scanhound/internal/registry"
	"github.com/BetterCallFirewall/Scanhound/internal/rules"
	"github.com/BetterCallFirewall/Scanhound/internal/stream"
	"github.com/BetterCallFirewall/Scanhound/internal/utils"
)

// DefaultHeartbeat is the interval between heartbeat events on an
// otherwise idle stream.
const DefaultHeartbeat = 10 * time.Second

// Prober gathers evidence from one endpoint. The production prober is
// the HTTP probe client; tests inject fakes.
type Prober interface {
	Probe(ctx context.Context, endpointKey, method, target string) (*rules.Evidence, error)
}

// FindingsAppender is the findings-store write path.
type FindingsAppender interface {
	Append(projectID string, findings []models.Finding) error
}

// DossierAppender is the dossier-store write path.
type DossierAppender interface {
	AppendRun(projectID, endpointKey string, sum models.RunSummary) error
}

// StartResult is the synchronous answer to a start request. Duplicate
// runs and empty queues are structured outcomes here, not errors.
type StartResult struct {
	RunID          string `json:"run_id,omitempty"`
	AlreadyRunning bool   `json:"already_running,omitempty"`
	NothingToScan  bool   `json:"nothing_to_scan,omitempty"`
	Endpoints      int    `json:"endpoints,omitempty"`
}

// Coordinator runs scans. All shared state lives in the injected
// registry and the runs map; endpoints within one run are scanned
// sequentially.
type Coordinator struct {
	registry  *registry.Registry
	events    *broker.Broker[stream.Event]
	engine    *rules.Engine
	prober    Prober
	findings  FindingsAppender
	dossier   DossierAppender
	heartbeat time.Duration

	runs *runLog
}

// New wires a coordinator. A zero heartbeat selects DefaultHeartbeat.
func New(
	reg *registry.Registry,
	events *broker.Broker[stream.Event],
	engine *rules.Engine,
	prober Prober,
	findings FindingsAppender,
	dossier DossierAppender,
	heartbeat time.Duration,
) *Coordinator {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Coordinator{
		registry:  reg,
		events:    events,
		engine:    engine,
		prober:    prober,
		findings:  findings,
		dossier:   dossier,
		heartbeat: heartbeat,
		runs:      newRunLog(),
	}
}

// StartRun validates and deduplicates the queued endpoint keys, claims
// the run ID and launches the scan in the background. The scan outlives
// the caller's context: disconnecting consumers never cancel a run.
//
// An empty queue returns a benign NothingToScan result; a run ID that is
// already executing returns AlreadyRunning. Both are non-errors.
func (c *Coordinator) StartRun(ctx context.Context, projectID, runID string, endpointKeys []string) (StartResult, error) {
	if projectID == "" {
		return StartResult{}, fmt.Errorf("start run: project id is required")
	}
	if len(endpointKeys) == 0 {
		return StartResult{NothingToScan: true}, nil
	}

	deduped, err := dedupeKeys(endpointKeys)
	if err != nil {
		return StartResult{}, fmt.Errorf("start run: %w", err)
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	logging.L().Infow("run requested",
		"project_id", projectID,
		"run_id", runID,
		"queued", len(endpointKeys),
		"deduplicated", deduped,
	)

	if !c.registry.TryAcquire(runID) {
		logging.L().Infow("run already active, refusing duplicate", "run_id", runID)
		return StartResult{RunID: runID, AlreadyRunning: true}, nil
	}

	run := c.runs.create(runID, projectID, deduped)
	go c.execute(context.WithoutCancel(ctx), run)

	return StartResult{RunID: runID, Endpoints: len(deduped)}, nil
}

// Runs returns a snapshot of every run the coordinator has seen.
func (c *Coordinator) Runs() []models.Run {
	return c.runs.snapshot()
}

// Run returns a snapshot of one run by ID.
func (c *Coordinator) Run(runID string) (models.Run, bool) {
	return c.runs.get(runID)
}

// execute scans every endpoint of the run sequentially. The guard
// release and the terminal event are deferred so they fire even if the
// scan panics; a single endpoint's failure only costs that endpoint.
func (c *Coordinator) execute(ctx context.Context, run *models.Run) {
	total := 0
	failed := false

	defer func() {
		c.registry.Release(run.RunID)
		c.runs.finish(run.RunID)

		if r := recover(); r != nil {
			logging.L().Errorw("run panicked", "run_id", run.RunID, "panic", r)
			c.events.Publish(run.RunID, stream.NewEvent(stream.TypeError, stream.ErrorData{
				RunID:   run.RunID,
				Message: fmt.Sprint(r),
			}))
		} else {
			c.events.Publish(run.RunID, stream.NewEvent(stream.TypeDone, stream.DoneData{
				RunID:      run.RunID,
				Findings:   total,
				DurationMS: time.Since(run.StartedAt).Milliseconds(),
			}))
		}
		c.events.CloseTopic(run.RunID)
		logging.L().Infow("run finished",
			"run_id", run.RunID,
			"findings", total,
			"had_failures", failed,
		)
	}()

	c.events.Publish(run.RunID, stream.NewEvent(stream.TypeStart, stream.StartData{
		RunID:     run.RunID,
		Endpoints: len(run.EndpointKeys),
	}))

	stopHeartbeat := c.startHeartbeat(run.RunID)
	defer stopHeartbeat()

	summaries := make(map[string]models.RunSummary, len(run.EndpointKeys))
	for _, key := range run.EndpointKeys {
		count, worst, err := c.scanEndpoint(ctx, run, key)
		if err != nil {
			failed = true
			logging.L().Errorw("endpoint scan failed",
				"run_id", run.RunID,
				"endpoint_key", key,
				"error", err,
			)
		}
		total += count
		summaries[key] = models.RunSummary{
			RunID:         run.RunID,
			StartedAt:     run.StartedAt,
			FindingsCount: count,
			WorstSeverity: worst,
		}
	}

	finished := time.Now().UTC()
	for _, key := range run.EndpointKeys {
		sum := summaries[key]
		sum.FinishedAt = finished
		if err := c.dossier.AppendRun(run.ProjectID, key, sum); err != nil {
			failed = true
			logging.L().Errorw("dossier update failed",
				"run_id", run.RunID,
				"endpoint_key", key,
				"error", err,
			)
		}
	}
}

// scanEndpoint probes one endpoint, evaluates the rules and persists the
// findings. Returns the findings count and worst severity.
func (c *Coordinator) scanEndpoint(ctx context.Context, run *models.Run, key string) (int, models.Severity, error) {
	method, target, err := utils.SplitKey(key)
	if err != nil {
		return 0, "", err
	}

	evidence, err := c.prober.Probe(ctx, key, method, target)
	if err != nil {
		return 0, "", fmt.Errorf("probing: %w", err)
	}

	findings := c.engine.Evaluate(evidence)
	now := time.Now().UTC()
	for i := range findings {
		findings[i].ID = uuid.NewString()
		findings[i].RunID = run.RunID
		findings[i].CreatedAt = now
	}

	if len(findings) > 0 {
		if err := c.findings.Append(run.ProjectID, findings); err != nil {
			return 0, "", fmt.Errorf("persisting findings: %w", err)
		}
	}

	var worst models.Severity
	for i := range findings {
		f := &findings[i]
		worst = models.WorstSeverity(worst, f.Severity)
		c.runs.countFinding(run.RunID, key, f.Severity)
		c.events.Publish(run.RunID, stream.NewEvent(stream.TypeFinding, stream.FindingData{
			RunID:       run.RunID,
			EndpointKey: f.EndpointKey,
			DetectorID:  f.DetectorID,
			Severity:    f.Severity,
			Title:       f.Title,
		}))
	}
	return len(findings), worst, nil
}

// startHeartbeat emits heartbeat events on the run topic until stopped.
// Stop is synchronous so no heartbeat can land after the done event.
func (c *Coordinator) startHeartbeat(runID string) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.events.Publish(runID, stream.NewEvent(stream.TypeHeartbeat, stream.HeartbeatData{RunID: runID}))
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// dedupeKeys canonicalizes "METHOD url" entries and drops duplicates,
// preserving first-seen order. A malformed entry rejects the request.
func dedupeKeys(endpointKeys []string) ([]string, error) {
	seen := make(map[string]struct{}, len(endpointKeys))
	deduped := make([]string, 0, len(endpointKeys))

	for _, raw := range endpointKeys {
		method, target, err := utils.SplitKey(raw)
		if err != nil {
			return nil, err
		}
		key, err := utils.CanonicalKey(method, target, nil)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", raw, err)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, key)
	}
	return deduped, nil
}
