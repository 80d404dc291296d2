package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/melodydashora/triad/internal/api/response"
	"github.com/melodydashora/triad/internal/store"
)

// maxLongPollWait caps client-requested long-poll durations.
const maxLongPollWait = 60 * time.Second

// NewPollHandler returns the handler for GET /api/v1/recommendations/{snapshotID}.
// Without wait_ms it reads the status once; with wait_ms it long-polls until
// the job settles or the wait elapses.
func NewPollHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID, err := uuid.Parse(chi.URLParam(r, "snapshotID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "snapshotID must be a valid UUID", nil)
			return
		}

		wait := time.Duration(0)
		if raw := r.URL.Query().Get("wait_ms"); raw != "" {
			ms, err := strconv.Atoi(raw)
			if err != nil || ms < 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "wait_ms must be a non-negative integer", nil)
				return
			}
			wait = time.Duration(ms) * time.Millisecond
			if wait > maxLongPollWait {
				wait = maxLongPollWait
			}
		}
		if wait == 0 {
			// A single status read; the poller's first check returns immediately.
			wait = time.Millisecond
		}

		outcome, err := p.Poll(r.Context(), snapshotID, wait)
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeOutcome(w, outcome)
	}
}

// NewStagesHandler returns the handler for
// GET /api/v1/recommendations/{snapshotID}/stages: the per-stage audit trail
// of a run, including stages that completed before a later failure.
func NewStagesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID, err := uuid.Parse(chi.URLParam(r, "snapshotID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "snapshotID must be a valid UUID", nil)
			return
		}

		job, err := s.GetJob(r.Context(), snapshotID)
		if err != nil {
			writePipelineError(w, err)
			return
		}

		results, err := s.ListStageResults(r.Context(), snapshotID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stage results", nil)
			return
		}

		response.JSON(w, map[string]any{
			"snapshot_id": snapshotID,
			"status":      job.Status,
			"attempts":    job.Attempts,
			"stages":      results,
		})
	}
}
