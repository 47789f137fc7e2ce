package controller

import "errors"

// Domain errors for the control loop.
var (
	// ErrInvalidOptions is returned by New when a dependency or setting is missing.
	ErrInvalidOptions = errors.New("controller: invalid options")

	// ErrQueueFull is returned by OnMessage when the event queue has no room.
	ErrQueueFull = errors.New("controller: event queue full")

	// ErrStopped is returned when an event arrives after Run has returned.
	ErrStopped = errors.New("controller: stopped")

	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("controller: already running")
)
