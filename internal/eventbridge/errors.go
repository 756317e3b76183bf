package eventbridge

import "errors"

var (
	// ErrMalformed is returned by Event getters when a key is missing or has
	// the wrong type. Bridge logs such events at warning level and drops them.
	ErrMalformed = errors.New("eventbridge: malformed event")

	// ErrUnknownSubscription is returned when unsubscribing an id that is not active.
	ErrUnknownSubscription = errors.New("eventbridge: unknown subscription")

	// ErrHubClosed is returned when subscribing to a closed hub.
	ErrHubClosed = errors.New("eventbridge: hub closed")

	// ErrNilCallback is returned when subscribing without a callback.
	ErrNilCallback = errors.New("eventbridge: nil callback")
)
