package plugin

import "errors"

var (
	// ErrMissingEntryPoint is returned when a module lacks Construct, Destruct or Name.
	ErrMissingEntryPoint = errors.New("plugin: missing entry point")

	// ErrRollbackFailed wraps the joined error of a construction rollback
	// that could not remove everything it created.
	ErrRollbackFailed = errors.New("plugin: rollback failed")

	// ErrInvalidState is returned when a descriptor is used out of lifecycle order.
	ErrInvalidState = errors.New("plugin: invalid lifecycle state")

	// ErrUnknownCandidate is returned when a loader is asked for a candidate it did not discover.
	ErrUnknownCandidate = errors.New("plugin: unknown candidate")

	// ErrNotConstructed is returned by module operations that need a constructed module.
	ErrNotConstructed = errors.New("plugin: module not constructed")

	// ErrIncompleteHost is returned by Construct when a collaborator the
	// module depends on is missing from the Host.
	ErrIncompleteHost = errors.New("plugin: host is missing a collaborator")
)
