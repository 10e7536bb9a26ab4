package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Jobs do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	now    func() time.Time
}

type memoryQueue struct {
	jobs      map[string]*Job
	waiting   map[string]float64   // id -> wait score
	delayed   map[string]time.Time // id -> ready time
	active    map[string]time.Time // id -> lease deadline
	completed []string             // newest first
	failed    []string             // newest first
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string]*memoryQueue),
		now:    time.Now,
	}
}

func (s *MemoryStore) queue(name string) *memoryQueue {
	q, ok := s.queues[name]
	if !ok {
		q = &memoryQueue{
			jobs:    make(map[string]*Job),
			waiting: make(map[string]float64),
			delayed: make(map[string]time.Time),
			active:  make(map[string]time.Time),
		}
		s.queues[name] = q
	}
	return q
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(job.Queue)
	stored := *job
	q.jobs[job.ID] = &stored
	q.waiting[job.ID] = waitScore(job.Priority, job.EnqueuedAt.UnixMilli())
	return nil
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, queue string, lease time.Duration) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	now := s.now()

	for id, readyAt := range q.delayed {
		if !readyAt.After(now) {
			delete(q.delayed, id)
			q.waiting[id] = waitScore(q.jobs[id].Priority, now.UnixMilli())
		}
	}

	if len(q.waiting) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(q.waiting))
	for id := range q.waiting {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := q.waiting[ids[i]], q.waiting[ids[j]]
		if si != sj {
			return si < sj
		}
		return ids[i] < ids[j]
	})

	id := ids[0]
	delete(q.waiting, id)
	q.active[id] = now.Add(lease)

	job := q.jobs[id]
	job.State = StateActive
	job.ReadyAt = nil
	job.Attempts++
	out := *job
	return &out, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, job *Job, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(job.Queue)
	delete(q.active, job.ID)
	q.completed = q.finish(q.completed, job, keep)
	return nil
}

// Retry implements Store.
func (s *MemoryStore) Retry(_ context.Context, job *Job, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(job.Queue)
	delete(q.active, job.ID)
	stored := *job
	q.jobs[job.ID] = &stored
	q.delayed[job.ID] = s.now().Add(delay)
	return nil
}

// Fail implements Store.
func (s *MemoryStore) Fail(_ context.Context, job *Job, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(job.Queue)
	delete(q.active, job.ID)
	q.failed = q.finish(q.failed, job, keep)
	return nil
}

// finish stores the terminal job and pushes it to the front of list,
// dropping records beyond keep.
func (q *memoryQueue) finish(list []string, job *Job, keep int) []string {
	if keep <= 0 {
		delete(q.jobs, job.ID)
		return list
	}
	stored := *job
	q.jobs[job.ID] = &stored
	list = append([]string{job.ID}, list...)
	if len(list) > keep {
		for _, old := range list[keep:] {
			delete(q.jobs, old)
		}
		list = list[:keep]
	}
	return list
}

// RecoverStalled implements Store.
func (s *MemoryStore) RecoverStalled(_ context.Context, queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	now := s.now()
	recovered := 0
	for id, deadline := range q.active {
		if deadline.After(now) {
			continue
		}
		delete(q.active, id)
		job := q.jobs[id]
		job.State = StateWaiting
		q.waiting[id] = waitScore(job.Priority, now.UnixMilli())
		recovered++
	}
	return recovered, nil
}

// Counts implements Store.
func (s *MemoryStore) Counts(_ context.Context, queue string) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	return Counts{
		Waiting:   int64(len(q.waiting)),
		Active:    int64(len(q.active)),
		Delayed:   int64(len(q.delayed)),
		Completed: int64(len(q.completed)),
		Failed:    int64(len(q.failed)),
	}, nil
}

// Failed implements Store.
func (s *MemoryStore) Failed(_ context.Context, queue string, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	n := len(q.failed)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Job, 0, n)
	for _, id := range q.failed[:n] {
		out = append(out, *q.jobs[id])
	}
	return out, nil
}

// Requeue implements Store.
func (s *MemoryStore) Requeue(_ context.Context, queue, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	idx := -1
	for i, fid := range q.failed {
		if fid == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFailed
	}
	q.failed = append(q.failed[:idx], q.failed[idx+1:]...)

	job.State = StateWaiting
	job.Attempts = 0
	job.FinishedAt = nil
	q.waiting[id] = waitScore(job.Priority, s.now().UnixMilli())
	out := *job
	return &out, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
