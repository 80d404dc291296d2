package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/melodydashora/triad/internal/provider/mock"
	"github.com/melodydashora/triad/internal/store"
	"github.com/melodydashora/triad/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPipelineDB spins up a Postgres container, runs migrations, and returns
// a connected PostgresStore.
func setupPipelineDB(t *testing.T) *store.PostgresStore {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("triad_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pgContainer.Terminate(ctx)) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return store.NewPostgresStore(pool)
}

// TestGenerate_PostgresEndToEnd drives a full pipeline run through the real
// store: advisory-lock claim, three stage inserts, final result, settlement.
func TestGenerate_PostgresEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	st := setupPipelineDB(t)
	c := newMemCache()
	ctx := context.Background()

	snap := testSnapshot()
	snap.CreatedAt = time.Now().UTC()
	require.NoError(t, st.CreateSnapshot(ctx, snap))

	o := testOrchestrator(st, c, mock.NewProvider(), mock.NewProvider(), mock.NewProvider())

	out, err := o.Generate(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, out.Status)
	assert.Nil(t, out.Failure)
	require.NotNil(t, out.Final)
	assert.JSONEq(t, mock.CannedPlanJSON, string(out.Final.Payload))

	// Three stage rows landed with distinct primary keys, in pipeline order.
	results, err := st.ListStageResults(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, models.StageStrategist, results[0].Stage)
	assert.Equal(t, models.StagePlanner, results[1].Stage)
	assert.Equal(t, models.StageValidator, results[2].Stage)
	seen := make(map[uuid.UUID]bool)
	for _, r := range results {
		assert.NotEqual(t, uuid.Nil, r.ID)
		assert.False(t, seen[r.ID])
		seen[r.ID] = true
		assert.False(t, r.CreatedAt.IsZero())
	}

	final, err := st.GetFinalResult(ctx, snap.ID)
	require.NoError(t, err)
	assert.JSONEq(t, mock.CannedPlanJSON, string(final.Payload))

	job, err := st.GetJob(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 1, job.Attempts)

	// The stage rows fall inside a metrics window that starts before the run.
	metrics, err := st.StageMetrics(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, metrics, 3)
}

// TestGenerate_PostgresFailureDiagnostics verifies a failed run settles the
// job row with stage and kind while keeping the completed stage's result.
func TestGenerate_PostgresFailureDiagnostics(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	st := setupPipelineDB(t)
	c := newMemCache()
	ctx := context.Background()

	snap := testSnapshot()
	snap.CreatedAt = time.Now().UTC()
	require.NoError(t, st.CreateSnapshot(ctx, snap))

	planner := &mock.Provider{
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.GenerateResponse, error) {
			return models.GenerateResponse{Content: "no plan here, sorry", Model: "mock-v1"}, nil
		},
	}
	o := testOrchestrator(st, c, mock.NewProvider(), planner, mock.NewProvider())

	out, err := o.Generate(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, out.Status)
	require.NotNil(t, out.Failure)
	assert.Equal(t, models.StagePlanner, out.Failure.Stage)
	assert.Equal(t, KindValidationError, out.Failure.Kind)

	job, err := st.GetJob(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.FailureStage)
	assert.Equal(t, models.StagePlanner, *job.FailureStage)
	require.NotNil(t, job.FailureKind)
	assert.Equal(t, KindValidationError, *job.FailureKind)

	// The strategist completed first and its row survives the failure.
	results, err := st.ListStageResults(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StageStrategist, results[0].Stage)
}
