package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/telemetry-core/internal/auth"
	"github.com/nerrad567/telemetry-core/internal/queue"
)

func TestQueueStats(t *testing.T) {
	env := newTestEnv(t)
	env.queue.setStats([]queue.LaneStats{
		{Lane: queue.LaneHistory, Name: "history", Counts: queue.Counts{Waiting: 4, Failed: 1}},
		{Lane: queue.LaneRealtime, Name: "realtime", Counts: queue.Counts{Active: 2}},
	})

	resp, body := env.do(t, http.MethodGet, "/api/v1/queues", env.token(t, "root", auth.RoleAdmin), nil)
	expectStatus(t, resp, body, http.StatusOK)
	got := decode[struct {
		Queues []queue.LaneStats `json:"queues"`
	}](t, body)
	if len(got.Queues) != 2 || got.Queues[0].Counts.Waiting != 4 || got.Queues[1].Counts.Active != 2 {
		t.Errorf("queues = %+v", got.Queues)
	}
}

func TestQueueStatsStoreDown(t *testing.T) {
	env := newTestEnv(t)
	env.queue.mu.Lock()
	env.queue.statsErr = errors.New("redis: connection refused")
	env.queue.mu.Unlock()

	resp, body := env.do(t, http.MethodGet, "/api/v1/queues", env.token(t, "root", auth.RoleAdmin), nil)
	expectStatus(t, resp, body, http.StatusServiceUnavailable)
}

func TestQueueFailedAndRetry(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "root", auth.RoleAdmin)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.queue.addFailed(queue.LaneHistory,
		queue.Job{ID: "j1", Queue: "history", State: queue.StateFailed, Attempts: 3, LastError: "db locked", EnqueuedAt: now},
		queue.Job{ID: "j2", Queue: "history", State: queue.StateFailed, Attempts: 3, EnqueuedAt: now},
	)

	resp, body := env.do(t, http.MethodGet, "/api/v1/queues/history/failed?limit=1", admin, nil)
	expectStatus(t, resp, body, http.StatusOK)
	failed := decode[struct {
		Jobs  []queue.Job `json:"jobs"`
		Count int         `json:"count"`
	}](t, body)
	if failed.Count != 1 || failed.Jobs[0].ID != "j1" || failed.Jobs[0].LastError != "db locked" {
		t.Errorf("failed = %+v", failed)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/queues/realtime/failed", admin, nil)
	expectStatus(t, resp, body, http.StatusOK)
	if got := decode[struct {
		Count int `json:"count"`
	}](t, body); got.Count != 0 {
		t.Errorf("realtime failed count = %d, want 0", got.Count)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/queues/history/failed/j1/retry", admin, nil)
	expectStatus(t, resp, body, http.StatusOK)
	if job := decode[queue.Job](t, body); job.State != queue.StateWaiting || job.Attempts != 0 {
		t.Errorf("retried job = %+v", job)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown lane", "/api/v1/queues/bulk/failed", http.StatusNotFound},
		{"bad limit", "/api/v1/queues/history/failed?limit=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, tt.path, admin, nil)
			expectStatus(t, resp, body, tt.want)
		})
	}

	retries := []struct {
		name string
		path string
		want int
	}{
		{"already retried", "/api/v1/queues/history/failed/j1/retry", http.StatusNotFound},
		{"not failed", "/api/v1/queues/history/failed/done-job/retry", http.StatusConflict},
		{"unknown lane", "/api/v1/queues/bulk/failed/j2/retry", http.StatusNotFound},
	}
	for _, tt := range retries {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, tt.path, admin, nil)
			expectStatus(t, resp, body, tt.want)
		})
	}
}
