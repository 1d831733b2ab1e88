package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced job, bid, or room does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a lifecycle transition is attempted
	// from a state that does not permit it
	ErrInvalidState = errors.New("invalid state for requested transition")

	// ErrConflict is returned on a duplicate bid or a racing room creation
	ErrConflict = errors.New("conflicting record already exists")

	// ErrUnauthorized is returned when the caller is not allowed to act on
	// the resource, or is not a participant of the room
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPersistence wraps store write failures
	ErrPersistence = errors.New("persistence failure")
)
