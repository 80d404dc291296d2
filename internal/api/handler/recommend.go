// Package handler contains the HTTP handlers for the recommendation API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/melodydashora/triad/internal/api/response"
	"github.com/melodydashora/triad/internal/pipeline"
	"github.com/melodydashora/triad/internal/store"
	"github.com/melodydashora/triad/pkg/models"
)

var validate = validator.New()

// Pipeline defines the orchestrator surface handlers depend on.
type Pipeline interface {
	Generate(ctx context.Context, snapshotID uuid.UUID) (*pipeline.Outcome, error)
	Poll(ctx context.Context, snapshotID uuid.UUID, maxWait time.Duration) (*pipeline.Outcome, error)
}

type recommendRequest struct {
	SnapshotID string                 `json:"snapshot_id"`
	Context    models.SnapshotContext `json:"context"`
}

// NewRecommendHandler returns the handler for POST /api/v1/recommendations.
// The client supplies the snapshot ID, which makes retries of the same
// request converge on one pipeline run.
func NewRecommendHandler(s store.Store, p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		snapshotID, err := uuid.Parse(req.SnapshotID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "snapshot_id must be a valid UUID", nil)
			return
		}

		if err := validate.Struct(req.Context); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid snapshot context", validationDetails(err))
			return
		}

		snap := &models.Snapshot{ID: snapshotID, Context: req.Context, CreatedAt: time.Now().UTC()}
		if err := s.CreateSnapshot(r.Context(), snap); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store snapshot", nil)
			return
		}

		outcome, err := p.Generate(r.Context(), snapshotID)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeOutcome(w, outcome)
	}
}

// writeOutcome maps a pipeline outcome onto the HTTP contract: 200 with the
// final result, 202 while someone else runs the pipeline, 422 for a terminal
// failure. Provider errors never leak raw; the taxonomy is the contract.
func writeOutcome(w http.ResponseWriter, outcome *pipeline.Outcome) {
	switch outcome.Status {
	case models.JobStatusSucceeded:
		response.JSON(w, outcome)
	case models.JobStatusFailed:
		response.Error(w, http.StatusUnprocessableEntity, "PIPELINE_FAILED",
			"Recommendation pipeline failed", outcome.Failure)
	default:
		retryAfter := outcome.RetryAfter
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
		response.Accepted(w, map[string]any{
			"snapshot_id":    outcome.SnapshotID,
			"status":         outcome.Status,
			"retry_after_ms": retryAfter.Milliseconds(),
		})
	}
}

func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Unknown snapshot", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "REQUEST_TIMEOUT", "Request cancelled before the pipeline finished", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func validationDetails(err error) map[string][]string {
	details := make(map[string][]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = append(details[fe.Field()], fe.Error())
		}
	}
	return details
}
