package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/params"
)

type setParamRequest struct {
	Value json.RawMessage `json:"value"`
}

// handleListParams returns every parameter with its effective value.
func (s *Server) handleListParams(w http.ResponseWriter, _ *http.Request) {
	if s.params == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "parameters are not configured")
		return
	}

	all, err := s.params.All()
	if err != nil {
		s.logger.Error("reading parameters failed", "error", err)
		writeInternalError(w, "failed to read parameters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"params": all})
}

// handleSetParam validates and stores one parameter. The value may be sent
// as a JSON number or a string. LogLevel applies immediately; Port at the
// next start.
func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	if s.params == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "parameters are not configured")
		return
	}

	var req setParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Value) == 0 || string(req.Value) == "null" {
		writeBadRequest(w, "value is required")
		return
	}

	name := chi.URLParam(r, "name")
	value := strings.Trim(string(req.Value), `"`)

	if err := s.params.Set(name, value); err != nil {
		switch {
		case errors.Is(err, params.ErrUnknownParam):
			writeNotFound(w, err.Error())
		case errors.Is(err, params.ErrInvalidValue), errors.Is(err, params.ErrOutOfRange):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("storing parameter failed", "param", name, "error", err)
			writeInternalError(w, "failed to store parameter")
		}
		return
	}

	s.logger.Info("parameter changed", "param", name, "value", value, "by", subject(r))
	w.WriteHeader(http.StatusNoContent)
}
