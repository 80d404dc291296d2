package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StageResult is the validated output of one pipeline stage. Written exactly
// once per stage per run, immutable after write, and retained even when a
// later stage fails the run overall.
type StageResult struct {
	ID         uuid.UUID       `db:"id"          json:"id"`
	SnapshotID uuid.UUID       `db:"snapshot_id" json:"snapshot_id"`
	Stage      string          `db:"stage"       json:"stage"`
	Payload    json.RawMessage `db:"payload"     json:"payload"`
	Provider   string          `db:"provider"    json:"provider"`
	Model      string          `db:"model"       json:"model"`
	DurationMS int64           `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time       `db:"created_at"  json:"created_at"`
}

// FinalResult aggregates the validated plan plus run metadata. Written once by
// the owning run; read-only to external consumers thereafter.
type FinalResult struct {
	SnapshotID      uuid.UUID       `db:"snapshot_id"       json:"snapshot_id"`
	Payload         json.RawMessage `db:"payload"           json:"payload"`
	TotalDurationMS int64           `db:"total_duration_ms" json:"total_duration_ms"`
	CreatedAt       time.Time       `db:"created_at"        json:"created_at"`
}
