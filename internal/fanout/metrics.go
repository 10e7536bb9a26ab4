package fanout

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the fan-out Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connections prometheus.Gauge
	sent        *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewMetrics creates fan-out metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemetry",
			Subsystem: "fanout",
			Name:      "connections",
			Help:      "Open live connections",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "fanout",
			Name:      "events_sent_total",
			Help:      "Events queued to live connections",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "fanout",
			Name:      "events_dropped_total",
			Help:      "Events discarded because a connection's outbox was full",
		}, []string{"event"}),
	}
	reg.MustRegister(m.connections, m.sent, m.dropped)
	return m
}

func (m *Metrics) setConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) recordSent(event string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(event).Inc()
}

func (m *Metrics) recordDropped(event string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(event).Inc()
}
