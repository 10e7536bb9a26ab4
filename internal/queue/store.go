package queue

import (
	"context"
	"time"
)

// Store holds jobs for one or more named queues.
//
// Implementations must make Reserve exclusive: a job returned to one caller
// is not returned to another until its lease expires and RecoverStalled
// moves it back to waiting.
type Store interface {
	// Add places a new job in the waiting set of job.Queue.
	Add(ctx context.Context, job *Job) error

	// Reserve promotes delayed jobs whose backoff has elapsed, then removes
	// the highest-priority waiting job and leases it for lease. The stored
	// Attempts is incremented in the same step and the returned job carries
	// the new value. It returns (nil, nil) when nothing is ready.
	Reserve(ctx context.Context, queue string, lease time.Duration) (*Job, error)

	// Complete records a successful job, keeping at most keep completed records.
	Complete(ctx context.Context, job *Job, keep int) error

	// Retry schedules an active job to become waiting again after delay.
	Retry(ctx context.Context, job *Job, delay time.Duration) error

	// Fail records a terminally failed job, keeping at most keep failed records.
	Fail(ctx context.Context, job *Job, keep int) error

	// RecoverStalled moves active jobs whose lease has expired back to waiting.
	RecoverStalled(ctx context.Context, queue string) (int, error)

	// Counts returns the number of jobs in each state.
	Counts(ctx context.Context, queue string) (Counts, error)

	// Failed returns up to limit failed jobs, most recent first.
	Failed(ctx context.Context, queue string, limit int) ([]Job, error)

	// Requeue moves a failed job back to waiting with its attempts reset.
	Requeue(ctx context.Context, queue, id string) (*Job, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// waitScore orders waiting jobs: lower priority value first, then FIFO by
// the time the job became ready.
func waitScore(priority int, readyMS int64) float64 {
	return float64(priority)*priorityScale + float64(readyMS)
}

// priorityScale is larger than any millisecond timestamp this side of 2286,
// so priority always dominates readiness time.
const priorityScale = 1e13
