package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-ua/internal/audit"
	"github.com/nerrad567/gray-logic-ua/internal/history"
)

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// handleListHistory returns recorded state transitions, newest first.
//
// Query parameters:
//   - module: filter by logical module name
//   - instance: filter by instance (requires module)
//   - limit: max results (default 50, max 200)
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not configured")
		return
	}

	limit, ok := queryInt(r, "limit")
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	q := history.Query{
		Module:   r.URL.Query().Get("module"),
		Instance: r.URL.Query().Get("instance"),
		Limit:    limit,
	}
	if q.Instance != "" && q.Module == "" {
		writeBadRequest(w, "instance requires module")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), q)
	if err != nil {
		s.logger.Error("state history query failed", "error", err)
		writeInternalError(w, "failed to query state history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleListAudit returns paginated module audit entries with optional filters.
//
// Query parameters:
//   - action: filter by lifecycle action
//   - module: filter by logical module name
//   - loader: filter by loader kind (builtin, lua)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail is not configured")
		return
	}

	limit, ok := queryInt(r, "limit")
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	q := r.URL.Query()
	result, err := s.audit.List(r.Context(), audit.Filter{
		Action: q.Get("action"),
		Module: q.Get("module"),
		Loader: q.Get("loader"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "failed to query audit trail")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
