package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/server"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// StatusCode is the engine status name when the error came from the address space.
	StatusCode string `json:"status_code,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeBadGateway     = "bad_gateway"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// engineStatus maps address space and handoff errors to HTTP statuses.
// Order matters: the first match wins.
var engineStatus = []struct {
	err    error
	status int
	code   string
}{
	{addrspace.ErrNodeIDUnknown, http.StatusNotFound, ErrCodeNotFound},
	{addrspace.ErrNoMatch, http.StatusNotFound, ErrCodeNotFound},
	{addrspace.ErrInvalidNodeID, http.StatusBadRequest, ErrCodeBadRequest},
	{addrspace.ErrNotReadable, http.StatusForbidden, ErrCodeForbidden},
	{addrspace.ErrNotWritable, http.StatusForbidden, ErrCodeForbidden},
	{addrspace.ErrTypeMismatch, http.StatusBadRequest, ErrCodeValidation},
	{addrspace.ErrOutOfRange, http.StatusBadRequest, ErrCodeValidation},
	{addrspace.ErrArgumentsMissing, http.StatusBadRequest, ErrCodeValidation},
	{addrspace.ErrTooManyArguments, http.StatusBadRequest, ErrCodeValidation},
	{addrspace.ErrNodeClassInvalid, http.StatusBadRequest, ErrCodeValidation},
	{addrspace.ErrMethodInvalid, http.StatusBadRequest, ErrCodeValidation},
	{addrspace.ErrCommunication, http.StatusBadGateway, ErrCodeBadGateway},
	{server.ErrStopped, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{server.ErrQueueFull, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

// writeEngineError writes the envelope for an error returned through the
// server handoff, carrying the engine status name alongside.
func writeEngineError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, ErrCodeInternal
	for _, m := range engineStatus {
		if errors.Is(err, m.err) {
			status, code = m.status, m.code
			break
		}
	}
	writeJSON(w, status, Error{
		Status:     status,
		Code:       code,
		Message:    err.Error(),
		StatusCode: addrspace.StatusCode(err),
	})
}
