package project

import "errors"

var (
	// ErrProjectNotFound is returned when no project matches a lookup.
	ErrProjectNotFound = errors.New("project: not found")

	// ErrAccessDenied is returned when a user may not access a project.
	ErrAccessDenied = errors.New("project: access denied")
)
