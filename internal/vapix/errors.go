package vapix

import (
	"errors"
	"fmt"
)

// Domain-specific errors for device API operations.
var (
	// ErrRequestFailed is returned when the HTTP round trip itself fails.
	ErrRequestFailed = errors.New("vapix: request failed")

	// ErrStatus is returned for any response status other than 200.
	ErrStatus = errors.New("vapix: unexpected status")

	// ErrAPI is returned when the device answers with an error envelope.
	ErrAPI = errors.New("vapix: api error")

	// ErrMalformedResponse is returned when a response cannot be decoded.
	ErrMalformedResponse = errors.New("vapix: malformed response")

	// ErrNoCredentials is returned when no credentials exist for a domain.
	ErrNoCredentials = errors.New("vapix: no credentials for domain")

	// ErrInvalidVersion is returned for an unparsable "major.minor" string.
	ErrInvalidVersion = errors.New("vapix: invalid version")

	// ErrUnsupportedVersion is returned when the device lacks a required API version.
	ErrUnsupportedVersion = errors.New("vapix: api version not supported")
)

// APIError is the error envelope of a JSON API response.
type APIError struct {
	Method  string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("vapix: %s failed (code %d): %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("vapix: %s failed: %s", e.Method, e.Message)
}

// Unwrap lets errors.Is match ErrAPI.
func (e *APIError) Unwrap() error {
	return ErrAPI
}
