package server

import "errors"

var (
	// ErrQueueFull is returned by Post when the handoff queue is full.
	ErrQueueFull = errors.New("server: handoff queue full")

	// ErrStopped is returned once the server has been stopped.
	ErrStopped = errors.New("server: stopped")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("server: already started")

	// ErrPanic wraps a recovered panic from work run through Do.
	ErrPanic = errors.New("server: work panicked")
)
