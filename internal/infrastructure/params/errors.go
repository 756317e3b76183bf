package params

import "errors"

var (
	// ErrUnknownParam indicates a parameter name that is not supported.
	ErrUnknownParam = errors.New("params: unknown parameter")

	// ErrInvalidValue indicates a value that is not a decimal integer.
	ErrInvalidValue = errors.New("params: invalid value")

	// ErrOutOfRange indicates a value outside the parameter's range.
	ErrOutOfRange = errors.New("params: value out of range")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("params: store closed")
)
