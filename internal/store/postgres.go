package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/melodydashora/triad/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Snapshots ---

// CreateSnapshot inserts the snapshot if it does not already exist. Snapshots
// are immutable, so a conflicting insert is a no-op rather than an error.
func (s *PostgresStore) CreateSnapshot(ctx context.Context, snap *models.Snapshot) error {
	payload, err := json.Marshal(snap.Context)
	if err != nil {
		return fmt.Errorf("marshal snapshot context: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, context, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		snap.ID, payload, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.Snapshot, error) {
	var snap models.Snapshot
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, context, created_at FROM snapshots WHERE id = $1`, id,
	).Scan(&snap.ID, &payload, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &snap.Context); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot context: %w", err)
	}
	return &snap, nil
}

// --- Jobs ---

func (s *PostgresStore) GetJob(ctx context.Context, snapshotID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot_id, status, attempts, failure_stage, failure_kind, failure_message, created_at, updated_at
		 FROM jobs WHERE snapshot_id = $1`, snapshotID,
	).Scan(&j.SnapshotID, &j.Status, &j.Attempts, &j.FailureStage, &j.FailureKind,
		&j.FailureMessage, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// --- Stage Results ---

func (s *PostgresStore) CreateStageResult(ctx context.Context, result *models.StageResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stage_results (id, snapshot_id, stage, payload, provider, model, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.SnapshotID, result.Stage, []byte(result.Payload),
		result.Provider, result.Model, result.DurationMS, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("create stage result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStageResults(ctx context.Context, snapshotID uuid.UUID) ([]*models.StageResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, snapshot_id, stage, payload, provider, model, duration_ms, created_at
		 FROM stage_results WHERE snapshot_id = $1 ORDER BY created_at ASC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()

	var results []*models.StageResult
	for rows.Next() {
		var r models.StageResult
		var payload []byte
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.Stage, &payload, &r.Provider,
			&r.Model, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// --- Final Results ---

func (s *PostgresStore) CreateFinalResult(ctx context.Context, result *models.FinalResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO final_results (snapshot_id, payload, total_duration_ms, created_at)
		 VALUES ($1, $2, $3, $4)`,
		result.SnapshotID, []byte(result.Payload), result.TotalDurationMS, result.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create final result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFinalResult(ctx context.Context, snapshotID uuid.UUID) (*models.FinalResult, error) {
	var r models.FinalResult
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot_id, payload, total_duration_ms, created_at
		 FROM final_results WHERE snapshot_id = $1`, snapshotID,
	).Scan(&r.SnapshotID, &payload, &r.TotalDurationMS, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get final result: %w", err)
	}
	r.Payload = json.RawMessage(payload)
	return &r, nil
}

// --- Metrics ---

func (s *PostgresStore) StageMetrics(ctx context.Context, since time.Time) ([]StageMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage, COUNT(*), AVG(duration_ms), MAX(duration_ms)
		 FROM stage_results WHERE created_at >= $1
		 GROUP BY stage ORDER BY stage`, since)
	if err != nil {
		return nil, fmt.Errorf("stage metrics: %w", err)
	}
	defer rows.Close()

	var metrics []StageMetric
	for rows.Next() {
		var m StageMetric
		if err := rows.Scan(&m.Stage, &m.Calls, &m.AvgDurationMS, &m.MaxDurationMS); err != nil {
			return nil, fmt.Errorf("scan stage metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *PostgresStore) JobStatusCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM jobs WHERE updated_at >= $1 GROUP BY status`, since)
	if err != nil {
		return nil, fmt.Errorf("job status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
