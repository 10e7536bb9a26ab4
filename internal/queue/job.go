package queue

import (
	"time"

	"github.com/nerrad567/telemetry-core/internal/topic"
)

// Lane identifies one of the two processing lanes.
type Lane string

const (
	LaneHistory  Lane = "history"
	LaneRealtime Lane = "realtime"
)

// ParseLane converts a lane name into a Lane.
func ParseLane(s string) (Lane, error) {
	switch Lane(s) {
	case LaneHistory, LaneRealtime:
		return Lane(s), nil
	default:
		return "", ErrUnknownLane
	}
}

// Ingestion is the payload carried by every job: one decoded MQTT message
// plus what the classifier learned from its topic.
type Ingestion struct {
	Topic      string           `json:"topic"`
	Descriptor topic.Descriptor `json:"descriptor"`
	Payload    map[string]any   `json:"payload"`
	ReceivedAt time.Time        `json:"receivedAt"`
}

// State is the lifecycle position of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is the queue envelope around an Ingestion.
//
// Attempts counts processing attempts started so far. The store increments
// and persists it when it leases the job, so a handler sees 1 on the first
// run and a lease lost to a crashed worker still counts.
type Job struct {
	ID          string     `json:"id"`
	Queue       string     `json:"queue"`
	Priority    int        `json:"priority"`
	Data        Ingestion  `json:"data"`
	State       State      `json:"state"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   string     `json:"lastError,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueuedAt"`
	ReadyAt     *time.Time `json:"readyAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Counts is a snapshot of how many jobs a lane holds in each state.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
