package core

import "errors"

var (
	// ErrNotFound is returned by stores when a key or record is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidGraph is returned when a task graph fails validation.
	ErrInvalidGraph = errors.New("invalid task graph")
)
