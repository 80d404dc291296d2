package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/melodydashora/triad/pkg/models"
)

// ClaimJob decides, race-free, whether this caller runs the pipeline for the
// given snapshot. Coordination lives entirely in Postgres so that independent
// processes racing on the same snapshot resolve to exactly one owner.
//
// The protocol has two steps:
//
//  1. An autocommit upsert on the job row. Creates it with attempts=1 on first
//     sight, otherwise bumps attempts and refreshes updated_at. Because no
//     transaction ever holds a row lock on jobs (execution is serialized via
//     advisory locks, step 2), this upsert never blocks and never fails on
//     conflict.
//
//  2. pg_try_advisory_lock on a key derived from the snapshot ID, taken on a
//     dedicated pooled connection. It fails fast instead of queueing, so
//     losers can immediately fall back to polling. The session-level lock is
//     held for the whole pipeline run; if the owner crashes, Postgres frees
//     it when the connection dies, and the next claim attempt wins.
func (s *PostgresStore) ClaimJob(ctx context.Context, snapshotID uuid.UUID) (*ClaimResult, error) {
	job, err := s.upsertJob(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	// Succeeded jobs are settled forever; don't bother contending for the lock.
	if job.Status == models.JobStatusSucceeded {
		return &ClaimResult{Owner: false, Job: job}, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire claim connection: %w", err)
	}

	key := advisoryKey(snapshotID)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return &ClaimResult{Owner: false, Job: job}, nil
	}

	// We hold the lock, but a previous owner may have finished between our
	// upsert and the lock grab. Re-read on the locked connection.
	var status string
	if err := conn.QueryRow(ctx, `SELECT status FROM jobs WHERE snapshot_id = $1`, snapshotID).Scan(&status); err != nil {
		unlock(context.WithoutCancel(ctx), conn, key)
		conn.Release()
		return nil, fmt.Errorf("reread job status: %w", err)
	}
	if status == models.JobStatusSucceeded {
		unlock(context.WithoutCancel(ctx), conn, key)
		conn.Release()
		job.Status = status
		return &ClaimResult{Owner: false, Job: job}, nil
	}

	if _, err := conn.Exec(ctx,
		`UPDATE jobs SET status = $2, failure_stage = NULL, failure_kind = NULL,
		 failure_message = NULL, updated_at = NOW() WHERE snapshot_id = $1`,
		snapshotID, models.JobStatusClaimed); err != nil {
		unlock(context.WithoutCancel(ctx), conn, key)
		conn.Release()
		return nil, fmt.Errorf("mark job claimed: %w", err)
	}
	job.Status = models.JobStatusClaimed

	return &ClaimResult{
		Owner: true,
		Job:   job,
		Lease: &pgxLease{conn: conn, key: key, snapshotID: snapshotID},
	}, nil
}

func (s *PostgresStore) upsertJob(ctx context.Context, snapshotID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (snapshot_id, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, 1, NOW(), NOW())
		 ON CONFLICT (snapshot_id) DO UPDATE SET
		   attempts = jobs.attempts + 1,
		   updated_at = NOW()
		 RETURNING snapshot_id, status, attempts, failure_stage, failure_kind, failure_message, created_at, updated_at`,
		snapshotID, models.JobStatusPending,
	).Scan(&j.SnapshotID, &j.Status, &j.Attempts, &j.FailureStage, &j.FailureKind,
		&j.FailureMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert job: %w", err)
	}
	return &j, nil
}

// advisoryKey maps a snapshot UUID onto the signed 64-bit advisory lock space.
func advisoryKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(h.Sum64())
}

func unlock(ctx context.Context, conn *pgxpool.Conn, key int64) {
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
		slog.Warn("advisory unlock failed", "error", err, "key", key)
	}
}

// pgxLease pins the claim to one pooled connection for the pipeline's
// lifetime. Settling (or the connection dying) releases the advisory lock.
type pgxLease struct {
	conn       *pgxpool.Conn
	key        int64
	snapshotID uuid.UUID

	mu   sync.Mutex
	done bool
}

func (l *pgxLease) Succeed(ctx context.Context) error {
	return l.settle(ctx, models.JobStatusSucceeded, nil, nil, nil)
}

func (l *pgxLease) Fail(ctx context.Context, stage, kind, message string) error {
	return l.settle(ctx, models.JobStatusFailed, &stage, &kind, &message)
}

func (l *pgxLease) settle(ctx context.Context, status string, stage, kind, message *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return fmt.Errorf("lease for %s already settled", l.snapshotID)
	}

	// The terminal update must land even when the pipeline context is already
	// cancelled (deadline_exceeded is itself a terminal outcome to record).
	ctx = context.WithoutCancel(ctx)

	_, err := l.conn.Exec(ctx,
		`UPDATE jobs SET status = $2, failure_stage = $3, failure_kind = $4,
		 failure_message = $5, updated_at = NOW() WHERE snapshot_id = $1`,
		l.snapshotID, status, stage, kind, message)
	if err != nil {
		return fmt.Errorf("advance job to %s: %w", status, err)
	}

	unlock(ctx, l.conn, l.key)
	l.conn.Release()
	l.done = true
	return nil
}

// Release frees the lock without a status transition. Idempotent; meant to be
// deferred as a crash-path fallback behind Succeed/Fail.
func (l *pgxLease) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	unlock(context.WithoutCancel(ctx), l.conn, l.key)
	l.conn.Release()
	l.done = true
}
