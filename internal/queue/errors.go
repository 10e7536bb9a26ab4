package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned when adding to a queue that is shutting down.
	ErrStopped = errors.New("queue: stopped")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("queue: already started")

	// ErrNoHandler is returned when Start is called without a handler.
	ErrNoHandler = errors.New("queue: no handler")

	// ErrJobNotFound is returned when a job ID is not present in the store.
	ErrJobNotFound = errors.New("queue: job not found")

	// ErrNotFailed is returned when retrying a job that is not in the failed list.
	ErrNotFailed = errors.New("queue: job is not failed")

	// ErrUnknownLane is returned for a lane name other than history or realtime.
	ErrUnknownLane = errors.New("queue: unknown lane")

	// ErrStopTimeout is returned when in-flight jobs did not finish in time.
	ErrStopTimeout = errors.New("queue: stop timed out")

	errAttemptsExhausted = errors.New("queue: attempts exhausted by expired leases")
)

// PermanentError marks a handler error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the queue fails the job without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
