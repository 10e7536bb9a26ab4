package subscription

import "errors"

// Domain errors for the subscription package.
var (
	// ErrAccessDenied is returned when the user may not access any
	// project bound to the site.
	ErrAccessDenied = errors.New("subscription: project not found or access denied for this site")

	// ErrNotSubscribed is returned when unsubscribing a site the user
	// does not follow.
	ErrNotSubscribed = errors.New("subscription: not subscribed to this site")

	// ErrBroker is returned when the broker-level subscribe fails.
	ErrBroker = errors.New("subscription: broker subscribe failed")

	// ErrInvalidSite is returned for an empty site id.
	ErrInvalidSite = errors.New("subscription: site id is required")
)
