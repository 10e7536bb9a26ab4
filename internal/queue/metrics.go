package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors shared by every lane, labelled by lane.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	added     *prometheus.CounterVec
	completed *prometheus.CounterVec
	retried   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	depth     *prometheus.GaugeVec
}

// NewMetrics creates queue metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		added: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "queue",
			Name:      "jobs_added_total",
			Help:      "Jobs enqueued",
		}, []string{"lane"}),

		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "queue",
			Name:      "jobs_completed_total",
			Help:      "Jobs processed successfully",
		}, []string{"lane"}),

		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "queue",
			Name:      "jobs_retried_total",
			Help:      "Failed attempts scheduled for retry",
		}, []string{"lane"}),

		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "queue",
			Name:      "jobs_failed_total",
			Help:      "Jobs moved to the failed list",
		}, []string{"lane"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telemetry",
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Handler execution time per attempt",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"lane"}),

		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "telemetry",
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Jobs currently held per state",
		}, []string{"lane", "state"}),
	}

	reg.MustRegister(m.added, m.completed, m.retried, m.failed, m.duration, m.depth)
	return m
}

func (m *Metrics) recordAdded(lane string) {
	if m == nil {
		return
	}
	m.added.WithLabelValues(lane).Inc()
}

func (m *Metrics) recordAttempt(lane string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(lane).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCompleted(lane string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(lane).Inc()
}

func (m *Metrics) recordRetried(lane string) {
	if m == nil {
		return
	}
	m.retried.WithLabelValues(lane).Inc()
}

func (m *Metrics) recordFailed(lane string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(lane).Inc()
}

func (m *Metrics) recordCounts(lane string, c Counts) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues(lane, string(StateWaiting)).Set(float64(c.Waiting))
	m.depth.WithLabelValues(lane, string(StateActive)).Set(float64(c.Active))
	m.depth.WithLabelValues(lane, string(StateDelayed)).Set(float64(c.Delayed))
	m.depth.WithLabelValues(lane, string(StateCompleted)).Set(float64(c.Completed))
	m.depth.WithLabelValues(lane, string(StateFailed)).Set(float64(c.Failed))
}
