package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/melodydashora/triad/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateSnapshot(ctx context.Context, snap *models.Snapshot) error
	GetSnapshot(ctx context.Context, id uuid.UUID) (*models.Snapshot, error)

	// ClaimJob atomically upserts the job row for snapshotID (incrementing the
	// attempt counter) and tries to acquire the exclusive, non-blocking
	// execution lock. Exactly one concurrent caller receives Owner=true and
	// must settle the returned Lease; all others receive Owner=false and fall
	// back to polling.
	ClaimJob(ctx context.Context, snapshotID uuid.UUID) (*ClaimResult, error)
	GetJob(ctx context.Context, snapshotID uuid.UUID) (*models.Job, error)

	CreateStageResult(ctx context.Context, result *models.StageResult) error
	ListStageResults(ctx context.Context, snapshotID uuid.UUID) ([]*models.StageResult, error)

	CreateFinalResult(ctx context.Context, result *models.FinalResult) error
	GetFinalResult(ctx context.Context, snapshotID uuid.UUID) (*models.FinalResult, error)

	StageMetrics(ctx context.Context, since time.Time) ([]StageMetric, error)
	JobStatusCounts(ctx context.Context, since time.Time) (map[string]int, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// ClaimResult is the outcome of one claim attempt.
type ClaimResult struct {
	// Owner is true for exactly one concurrent caller per snapshot.
	Owner bool
	// Job is the row as it stood after the upsert (attempts already bumped).
	Job *models.Job
	// Lease is non-nil iff Owner. The owner must settle it with Succeed or
	// Fail; Release is safe to defer as a crash-path fallback.
	Lease Lease
}

// Lease is the owner's handle on the claimed job. Succeed and Fail advance the
// job to a terminal status and release the underlying lock. Release frees the
// lock without a status transition and is idempotent; if the owning process
// dies without calling anything, the lock is dropped server-side when its
// connection ends.
type Lease interface {
	Succeed(ctx context.Context) error
	Fail(ctx context.Context, stage, kind, message string) error
	Release(ctx context.Context)
}

// StageMetric is an aggregate over persisted stage results.
type StageMetric struct {
	Stage         string  `json:"stage"`
	Calls         int64   `json:"calls"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	MaxDurationMS int64   `json:"max_duration_ms"`
}
