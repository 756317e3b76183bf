package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/gray-logic-ua/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID, s.accessLog, s.recoverPanics, s.cors, middleware.RequestSize(maxRequestBodySize))

	// Health check and metrics (no auth required)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	// Event stream (read-only, no auth required)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/modules", s.handleListModules)
		r.Get("/history", s.handleListHistory)
		r.Get("/audit", s.handleListAudit)

		r.Get("/params", s.handleListParams)
		r.With(s.requirePermission(auth.PermParamWrite)).Put("/params/{name}", s.handleSetParam)

		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetNode)
			r.Get("/references", s.handleBrowse)
			r.Get("/value", s.handleReadValue)

			// Mutating routes need a bearer token
			r.With(s.requirePermission(auth.PermNodeWrite)).Put("/value", s.handleWriteValue)
			r.With(s.requirePermission(auth.PermMethodCall)).Post("/methods/{method}", s.handleCallMethod)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"uptime_seconds":    int64(time.Since(s.startTime).Seconds()),
		"modules":           len(s.modules.Active()),
		"websocket_clients": s.hub.ClientCount(),
	})
}

// handleListModules returns the active modules in load order.
func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	modules := s.modules.Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"modules": modules,
		"count":   len(modules),
	})
}
