package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/telemetry-core/internal/queue"
)

const (
	defaultFailedLimit = 50
	maxFailedLimit     = 500
)

// queueLane parses the {lane} path parameter, writing the error response
// when it is unknown.
func (s *Server) queueLane(w http.ResponseWriter, r *http.Request) (queue.Lane, bool) {
	if s.queue == nil {
		writeServiceUnavailable(w, "queue not available")
		return "", false
	}
	lane, err := queue.ParseLane(chi.URLParam(r, "lane"))
	if err != nil {
		writeNotFound(w, "unknown queue lane")
		return "", false
	}
	return lane, true
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeServiceUnavailable(w, "queue not available")
		return
	}
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("queue stats failed", "error", err)
		writeServiceUnavailable(w, "queue store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": stats})
}

func (s *Server) handleQueueFailed(w http.ResponseWriter, r *http.Request) {
	lane, ok := s.queueLane(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultFailedLimit, maxFailedLimit)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	jobs, err := s.queue.FailedJobs(r.Context(), lane, limit)
	if err != nil {
		s.logger.Error("listing failed jobs failed", "lane", lane, "error", err)
		writeServiceUnavailable(w, "queue store unavailable")
		return
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lane":  lane,
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	lane, ok := s.queueLane(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid job ID")
		return
	}

	job, err := s.queue.RetryFailed(r.Context(), lane, id)
	switch {
	case err == nil:
		s.logger.Info("failed job requeued", "lane", lane, "job_id", id, "user_id", principalFrom(r.Context()).UserID)
		writeJSON(w, http.StatusOK, job)
	case errors.Is(err, queue.ErrJobNotFound):
		writeNotFound(w, "job not found")
	case errors.Is(err, queue.ErrNotFailed):
		writeConflict(w, "job is not in the failed list")
	default:
		s.logger.Error("requeueing failed job failed", "lane", lane, "job_id", id, "error", err)
		writeInternalError(w, "failed to retry job")
	}
}
