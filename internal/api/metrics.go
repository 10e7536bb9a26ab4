package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/telemetry-core/internal/queue"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Live          LiveMetrics       `json:"live"`
	Subscriptions int               `json:"active_sites"`
	Brokers       map[string]bool   `json:"brokers"`
	Queues        []queue.LaneStats `json:"queues,omitempty"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// LiveMetrics contains fan-out statistics.
type LiveMetrics struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystemMetrics returns a JSON summary of runtime, queue and
// fan-out state. Prometheus scrapes GET /metrics instead.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Live: LiveMetrics{
			Connections: s.live.ConnectionCount(),
			Users:       len(s.live.ActiveUserIDs()),
		},
		Subscriptions: len(s.subscriptions.ActiveSubscriptions()),
		Brokers:       make(map[string]bool, len(s.brokers)),
	}

	for name, b := range s.brokers {
		metrics.Brokers[name] = b.HealthCheck(r.Context()) == nil
	}

	if s.queue != nil {
		stats, err := s.queue.Stats(r.Context())
		if err != nil {
			s.logger.Warn("queue stats unavailable", "error", err)
		} else {
			metrics.Queues = stats
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
