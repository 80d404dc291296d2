package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/melodydashora/triad/internal/api/response"
	"github.com/melodydashora/triad/internal/store"
)

const (
	defaultMetricsWindow = 24 * time.Hour
	maxMetricsWindow     = 30 * 24 * time.Hour
)

// NewMetricsHandler returns the handler for GET /api/v1/metrics/pipeline:
// per-stage latency aggregates and job status counts over a trailing window.
func NewMetricsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := defaultMetricsWindow
		if raw := r.URL.Query().Get("window_hours"); raw != "" {
			hours, err := strconv.Atoi(raw)
			if err != nil || hours <= 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "window_hours must be a positive integer", nil)
				return
			}
			window = time.Duration(hours) * time.Hour
			if window > maxMetricsWindow {
				window = maxMetricsWindow
			}
		}

		since := time.Now().Add(-window)

		stages, err := s.StageMetrics(r.Context(), since)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stage metrics", nil)
			return
		}
		counts, err := s.JobStatusCounts(r.Context(), since)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job counts", nil)
			return
		}

		response.JSON(w, map[string]any{
			"window_hours": int(window.Hours()),
			"stages":       stages,
			"jobs":         counts,
		})
	}
}
