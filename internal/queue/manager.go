package queue

import (
	"context"
	"errors"
	"time"
)

// LaneStats pairs a lane with its current counts.
type LaneStats struct {
	Lane   Lane   `json:"lane"`
	Name   string `json:"name"`
	Counts Counts `json:"counts"`
}

// Manager owns the history and realtime lanes over a shared Store.
type Manager struct {
	store    Store
	history  *Queue
	realtime *Queue
}

// NewManager creates both lanes over store.
func NewManager(store Store, history, realtime Options) *Manager {
	return &Manager{
		store:    store,
		history:  New(LaneHistory, store, history),
		realtime: New(LaneRealtime, store, realtime),
	}
}

// SetLogger sets the logger on both lanes.
func (m *Manager) SetLogger(logger Logger) {
	m.history.SetLogger(logger)
	m.realtime.SetLogger(logger)
}

// SetMetrics attaches metrics to both lanes.
func (m *Manager) SetMetrics(metrics *Metrics) {
	m.history.SetMetrics(metrics)
	m.realtime.SetMetrics(metrics)
}

// SetDeadLetter sets the dead-letter sink on both lanes.
func (m *Manager) SetDeadLetter(dl DeadLetter) {
	m.history.SetDeadLetter(dl)
	m.realtime.SetDeadLetter(dl)
}

// Lane returns the queue for a lane.
func (m *Manager) Lane(lane Lane) (*Queue, error) {
	switch lane {
	case LaneHistory:
		return m.history, nil
	case LaneRealtime:
		return m.realtime, nil
	default:
		return nil, ErrUnknownLane
	}
}

// AddHistory enqueues an ingestion on the history lane.
func (m *Manager) AddHistory(ctx context.Context, data Ingestion) (*Job, error) {
	return m.history.Add(ctx, data)
}

// AddRealtime enqueues an ingestion on the realtime lane.
func (m *Manager) AddRealtime(ctx context.Context, data Ingestion) (*Job, error) {
	return m.realtime.Add(ctx, data)
}

// Start launches both lanes' workers.
func (m *Manager) Start(ctx context.Context, history, realtime Handler) error {
	if err := m.history.Start(ctx, history); err != nil {
		return err
	}
	if err := m.realtime.Start(ctx, realtime); err != nil {
		m.history.Stop(time.Second) //nolint:errcheck // unwinding a failed start
		return err
	}
	return nil
}

// Stats returns counts for both lanes.
func (m *Manager) Stats(ctx context.Context) ([]LaneStats, error) {
	out := make([]LaneStats, 0, 2)
	for _, q := range []*Queue{m.history, m.realtime} {
		c, err := q.Counts(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, LaneStats{Lane: q.Lane(), Name: q.Name(), Counts: c})
	}
	return out, nil
}

// FailedJobs lists failed jobs on a lane.
func (m *Manager) FailedJobs(ctx context.Context, lane Lane, limit int) ([]Job, error) {
	q, err := m.Lane(lane)
	if err != nil {
		return nil, err
	}
	return q.Failed(ctx, limit)
}

// RetryFailed requeues one failed job on a lane.
func (m *Manager) RetryFailed(ctx context.Context, lane Lane, id string) (*Job, error) {
	q, err := m.Lane(lane)
	if err != nil {
		return nil, err
	}
	return q.RetryFailed(ctx, id)
}

// Ping checks the backing store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Stop stops both lanes, each allowed up to timeout to drain.
func (m *Manager) Stop(timeout time.Duration) error {
	return errors.Join(m.history.Stop(timeout), m.realtime.Stop(timeout))
}

// Close stops both lanes and closes the store.
func (m *Manager) Close(timeout time.Duration) error {
	return errors.Join(m.Stop(timeout), m.store.Close())
}
