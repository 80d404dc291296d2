// Package pipeline runs the three-stage recommendation pipeline: strategist
// prose, planner JSON plan, validator corrected plan. Exactly one process
// executes the pipeline for a given snapshot at a time; everyone else polls.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/melodydashora/triad/internal/breaker"
	"github.com/melodydashora/triad/internal/cache"
	"github.com/melodydashora/triad/internal/config"
	"github.com/melodydashora/triad/internal/store"
	"github.com/melodydashora/triad/pkg/models"
)

const (
	// statusTTL bounds how long mirrored job statuses and cached final
	// results live in Redis. The database remains the source of truth.
	statusTTL = 30 * time.Minute

	// defaultRetryAfter is the hint returned to callers who lost the claim.
	defaultRetryAfter = time.Second

	// Poll backoff shape: 100ms, 200ms, 400ms, ..., capped at 2s, jittered.
	pollInitialInterval = 100 * time.Millisecond
	pollMultiplier      = 2
	pollMaxInterval     = 2 * time.Second
)

// Stage binds one pipeline stage to its provider, breaker, and knobs.
type Stage struct {
	Name     string
	Provider models.Provider
	Breaker  *breaker.Breaker
	Config   config.StageConfig
}

// Orchestrator coordinates claim, stage execution, persistence, and
// settlement for pipeline runs.
type Orchestrator struct {
	store store.Store
	cache cache.Cache

	strategist Stage
	planner    Stage
	validator  Stage

	totalBudget time.Duration
	pollMaxWait time.Duration
}

// New wires an Orchestrator. Stage names are fixed by pipeline position
// regardless of what the caller passes.
func New(st store.Store, c cache.Cache, strategist, planner, validator Stage, cfg config.PipelineConfig) *Orchestrator {
	strategist.Name = models.StageStrategist
	planner.Name = models.StagePlanner
	validator.Name = models.StageValidator
	return &Orchestrator{
		store:       st,
		cache:       c,
		strategist:  strategist,
		planner:     planner,
		validator:   validator,
		totalBudget: cfg.TotalBudget,
		pollMaxWait: cfg.PollMaxWait,
	}
}

// Outcome is the caller-facing result of a Generate or Poll call.
type Outcome struct {
	SnapshotID uuid.UUID           `json:"snapshot_id"`
	Status     string              `json:"status"`
	Attempts   int                 `json:"attempts,omitempty"`
	RetryAfter time.Duration       `json:"-"`
	Final      *models.FinalResult `json:"final,omitempty"`
	Failure    *Failure            `json:"failure,omitempty"`
}

// Failure describes a terminal pipeline failure.
type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Generate claims the job for snapshotID and, if this caller wins, runs the
// full pipeline under the total budget. Losers get a pending Outcome and
// should poll. Stage and final results are persisted as they are produced;
// business failures come back inside the Outcome, only infrastructure
// failures as errors.
func (o *Orchestrator) Generate(ctx context.Context, snapshotID uuid.UUID) (*Outcome, error) {
	claim, err := o.store.ClaimJob(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	if !claim.Owner {
		return o.observerOutcome(ctx, claim.Job)
	}

	lease := claim.Lease
	// Settlement and persistence must survive caller cancellation so the job
	// row never sticks in claimed.
	settleCtx := context.WithoutCancel(ctx)
	defer lease.Release(settleCtx)

	o.mirrorStatus(settleCtx, snapshotID, models.JobStatusClaimed)

	snap, err := o.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.totalBudget)
	defer cancel()

	started := time.Now()
	slog.Info("pipeline started", "snapshot_id", snapshotID, "attempt", claim.Job.Attempts)

	strategy, strategistResult, err := o.runStrategist(runCtx, snap)
	if err != nil {
		return o.fail(settleCtx, lease, claim.Job, err)
	}
	if err := o.persistStage(settleCtx, strategistResult); err != nil {
		return nil, err
	}

	planJSON, plannerResult, err := o.runPlanner(runCtx, snap, strategy)
	if err != nil {
		return o.fail(settleCtx, lease, claim.Job, err)
	}
	if err := o.persistStage(settleCtx, plannerResult); err != nil {
		return nil, err
	}

	finalJSON, validatorResult, err := o.runValidator(runCtx, snap, planJSON)
	if err != nil {
		return o.fail(settleCtx, lease, claim.Job, err)
	}
	if err := o.persistStage(settleCtx, validatorResult); err != nil {
		return nil, err
	}

	final := &models.FinalResult{
		SnapshotID:      snapshotID,
		Payload:         finalJSON,
		TotalDurationMS: time.Since(started).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := o.store.CreateFinalResult(settleCtx, final); err != nil {
		return nil, fmt.Errorf("persisting final result: %w", err)
	}
	if err := lease.Succeed(settleCtx); err != nil {
		return nil, fmt.Errorf("settling job: %w", err)
	}

	o.mirrorStatus(settleCtx, snapshotID, models.JobStatusSucceeded)
	o.cacheFinal(settleCtx, final)

	slog.Info("pipeline complete", "snapshot_id", snapshotID, "total_duration_ms", final.TotalDurationMS)

	return &Outcome{
		SnapshotID: snapshotID,
		Status:     models.JobStatusSucceeded,
		Attempts:   claim.Job.Attempts,
		Final:      final,
	}, nil
}

// Poll waits for the job to reach a terminal status, reading the Redis mirror
// first and the database on misses. Wait intervals grow exponentially and the
// call returns the last observed status once maxWait elapses.
func (o *Orchestrator) Poll(ctx context.Context, snapshotID uuid.UUID, maxWait time.Duration) (*Outcome, error) {
	if maxWait <= 0 {
		maxWait = o.pollMaxWait
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pollInitialInterval
	b.Multiplier = pollMultiplier
	b.MaxInterval = pollMaxInterval
	b.MaxElapsedTime = maxWait

	for {
		outcome, terminal, err := o.checkStatus(ctx, snapshotID)
		if err != nil {
			return nil, err
		}
		if terminal {
			return outcome, nil
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			outcome.RetryAfter = defaultRetryAfter
			return outcome, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(next):
		}
	}
}

// checkStatus reports the current job status and whether it is terminal.
// Non-terminal statuses resolve from cache without a database round trip.
func (o *Orchestrator) checkStatus(ctx context.Context, snapshotID uuid.UUID) (*Outcome, bool, error) {
	status, found, err := o.cache.GetJobStatus(ctx, snapshotID)
	if err != nil {
		slog.Warn("job status cache read failed", "snapshot_id", snapshotID, "error", err)
	}
	if found && (status == models.JobStatusPending || status == models.JobStatusClaimed) {
		return &Outcome{SnapshotID: snapshotID, Status: status}, false, nil
	}

	job, err := o.store.GetJob(ctx, snapshotID)
	if err != nil {
		return nil, false, fmt.Errorf("reading job: %w", err)
	}
	if !job.Terminal() {
		return &Outcome{SnapshotID: snapshotID, Status: job.Status, Attempts: job.Attempts}, false, nil
	}

	outcome, err := o.terminalOutcome(ctx, job)
	if err != nil {
		return nil, false, err
	}
	return outcome, true, nil
}

// observerOutcome is returned to callers who lost the claim race. A job that
// already succeeded short-circuits to the stored final result.
func (o *Orchestrator) observerOutcome(ctx context.Context, job *models.Job) (*Outcome, error) {
	if job.Terminal() {
		return o.terminalOutcome(ctx, job)
	}
	return &Outcome{
		SnapshotID: job.SnapshotID,
		Status:     job.Status,
		Attempts:   job.Attempts,
		RetryAfter: defaultRetryAfter,
	}, nil
}

func (o *Orchestrator) terminalOutcome(ctx context.Context, job *models.Job) (*Outcome, error) {
	outcome := &Outcome{
		SnapshotID: job.SnapshotID,
		Status:     job.Status,
		Attempts:   job.Attempts,
	}

	if job.Status == models.JobStatusFailed {
		outcome.Failure = &Failure{
			Stage:   deref(job.FailureStage),
			Kind:    deref(job.FailureKind),
			Message: deref(job.FailureMessage),
		}
		return outcome, nil
	}

	final, err := o.loadFinal(ctx, job.SnapshotID)
	if err != nil {
		return nil, err
	}
	outcome.Final = final
	return outcome, nil
}

// loadFinal reads the final result, preferring the Redis copy.
func (o *Orchestrator) loadFinal(ctx context.Context, snapshotID uuid.UUID) (*models.FinalResult, error) {
	if raw, found, err := o.cache.Get(ctx, cache.FinalResultKey(snapshotID)); err == nil && found {
		var final models.FinalResult
		if err := json.Unmarshal(raw, &final); err == nil {
			return &final, nil
		}
		// Corrupt cache entry: fall through to the database.
	}

	final, err := o.store.GetFinalResult(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("reading final result: %w", err)
	}
	o.cacheFinal(ctx, final)
	return final, nil
}

// fail settles the lease with the stage diagnosis and returns the failure as
// a business Outcome.
func (o *Orchestrator) fail(ctx context.Context, lease store.Lease, job *models.Job, cause error) (*Outcome, error) {
	var se *StageError
	if !errors.As(cause, &se) {
		se = &StageError{Stage: "pipeline", Kind: KindProviderError, Err: cause}
	}

	message := ""
	if se.Err != nil {
		message = se.Err.Error()
	}
	if err := lease.Fail(ctx, se.Stage, se.Kind, message); err != nil {
		return nil, fmt.Errorf("recording failure: %w", err)
	}
	o.mirrorStatus(ctx, job.SnapshotID, models.JobStatusFailed)

	slog.Warn("pipeline failed",
		"snapshot_id", job.SnapshotID,
		"stage", se.Stage,
		"kind", se.Kind,
		"error", se.Err,
	)

	return &Outcome{
		SnapshotID: job.SnapshotID,
		Status:     models.JobStatusFailed,
		Attempts:   job.Attempts,
		Failure:    &Failure{Stage: se.Stage, Kind: se.Kind, Message: message},
	}, nil
}

func (o *Orchestrator) persistStage(ctx context.Context, result *models.StageResult) error {
	if err := o.store.CreateStageResult(ctx, result); err != nil {
		return fmt.Errorf("persisting %s result: %w", result.Stage, err)
	}
	slog.Info("stage complete",
		"snapshot_id", result.SnapshotID,
		"stage", result.Stage,
		"provider", result.Provider,
		"duration_ms", result.DurationMS,
	)
	return nil
}

// mirrorStatus is best effort; a cache outage only costs polling efficiency.
func (o *Orchestrator) mirrorStatus(ctx context.Context, snapshotID uuid.UUID, status string) {
	if err := o.cache.SetJobStatus(ctx, snapshotID, status, statusTTL); err != nil {
		slog.Warn("job status mirror failed", "snapshot_id", snapshotID, "status", status, "error", err)
	}
}

func (o *Orchestrator) cacheFinal(ctx context.Context, final *models.FinalResult) {
	raw, err := json.Marshal(final)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, cache.FinalResultKey(final.SnapshotID), raw, statusTTL); err != nil {
		slog.Warn("final result cache write failed", "snapshot_id", final.SnapshotID, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
