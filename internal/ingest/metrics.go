package ingest

import "github.com/prometheus/client_golang/prometheus"

// Drop reasons recorded on the dropped counter.
const (
	reasonMalformedTopic   = "malformed_topic"
	reasonWrongClass       = "wrong_class"
	reasonUnknownCategory  = "unknown_category"
	reasonMalformedPayload = "malformed_payload"
	reasonInboxFull        = "inbox_full"
	reasonEnqueueFailed    = "enqueue_failed"
	reasonStopped          = "stopped"
)

// Metrics holds collector Prometheus collectors, labelled by collector.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	received *prometheus.CounterVec
	enqueued *prometheus.CounterVec
	dropped  *prometheus.CounterVec
}

// NewMetrics creates collector metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "collector",
			Name:      "received_total",
			Help:      "MQTT messages received",
		}, []string{"collector"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "collector",
			Name:      "enqueued_total",
			Help:      "Messages handed to the job queue",
		}, []string{"collector"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "collector",
			Name:      "dropped_total",
			Help:      "Messages discarded before reaching the queue",
		}, []string{"collector", "reason"}),
	}
	reg.MustRegister(m.received, m.enqueued, m.dropped)
	return m
}

func (m *Metrics) recordReceived(collector string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(collector).Inc()
}

func (m *Metrics) recordEnqueued(collector string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(collector).Inc()
}

func (m *Metrics) recordDropped(collector, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(collector, reason).Inc()
}
