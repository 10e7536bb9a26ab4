package ingest

import "errors"

// Domain errors for the ingest package.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("ingest: collector already started")

	// ErrStopped is returned by site subscriptions after Stop.
	ErrStopped = errors.New("ingest: collector stopped")

	// ErrWrongClass is returned when a site subscription is requested on
	// a collector that does not handle realtime data.
	ErrWrongClass = errors.New("ingest: collector does not handle realtime data")
)
