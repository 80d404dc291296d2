package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusClaimed   = "claimed"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Job is the single source of truth for "who may run the pipeline for this
// snapshot right now". One row per snapshot ID, upserted on every claim attempt
// (the attempts counter increments), never deleted. Status transitions:
// pending -> claimed -> succeeded | failed. A failed job is re-runnable by the
// next successful claim.
type Job struct {
	SnapshotID     uuid.UUID `db:"snapshot_id"     json:"snapshot_id"`
	Status         string    `db:"status"          json:"status"`
	Attempts       int       `db:"attempts"        json:"attempts"`
	FailureStage   *string   `db:"failure_stage"   json:"failure_stage,omitempty"`
	FailureKind    *string   `db:"failure_kind"    json:"failure_kind,omitempty"`
	FailureMessage *string   `db:"failure_message" json:"failure_message,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
