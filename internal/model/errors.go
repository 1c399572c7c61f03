package model

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a row exists but belongs to another
	// user. Request-facing code reports it as ErrNotFound.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMaxDepth is returned when a subtask would exceed the nesting limit.
	ErrMaxDepth = errors.New("maximum subtask depth exceeded")

	// ErrInvalidMove is returned for reorders that reference the moved task,
	// one of its descendants, or a task outside the user's list.
	ErrInvalidMove = errors.New("invalid move")

	// ErrInvalidInput is returned when caller-supplied fields fail
	// validation.
	ErrInvalidInput = errors.New("invalid input")
)
