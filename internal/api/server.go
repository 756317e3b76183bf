package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/audit"
	"github.com/nerrad567/gray-logic-ua/internal/history"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Nodes is the address space surface the API needs. *server.Server
// implements it; every call is handed to the server goroutine.
type Nodes interface {
	Node(ctx context.Context, id addrspace.NodeID) (addrspace.NodeInfo, error)
	Browse(ctx context.Context, id addrspace.NodeID) ([]addrspace.ReferenceDescription, error)
	Read(ctx context.Context, id addrspace.NodeID) (any, error)
	Write(ctx context.Context, id addrspace.NodeID, value any) error
	Call(ctx context.Context, object, method addrspace.NodeID, input []any) ([]any, error)
	Subscribe(sink addrspace.EventSink) (unsubscribe func())
}

// Modules lists the active capability modules.
type Modules interface {
	Active() []plugin.ModuleInfo
}

// ParamStore reads and changes persistent parameters.
type ParamStore interface {
	All() (map[string]int, error)
	Set(name, value string) error
}

// RequestObserver records completed requests. *metrics.Metrics
// implements it.
type RequestObserver interface {
	HTTPRequest(route, method string, status int, elapsed time.Duration)
}

// AuditLister reads the module audit trail.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Nodes    Nodes
	Modules  Modules
	History  history.Reader  // optional: /history answers 503 without it
	Audit    AuditLister     // optional: /audit answers 503 without it
	Params   ParamStore      // optional: /params answers 503 without it
	Metrics  http.Handler    // optional: /metrics is not mounted without it
	Requests RequestObserver // optional
	Version  string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	nodes     Nodes
	modules   Modules
	history   history.Reader
	audit     AuditLister
	params    ParamStore
	metrics   http.Handler
	requests  RequestObserver
	version   string
	startTime time.Time

	server *http.Server
	hub    *Hub

	mu          sync.Mutex
	cancel      context.CancelFunc // cancels background goroutines on Close()
	unsubscribe func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, nodes, modules)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Nodes == nil {
		return nil, fmt.Errorf("nodes are required")
	}
	if deps.Modules == nil {
		return nil, fmt.Errorf("module registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		nodes:     deps.Nodes,
		modules:   deps.Modules,
		history:   deps.History,
		audit:     deps.Audit,
		params:    deps.Params,
		metrics:   deps.Metrics,
		requests:  deps.Requests,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes the hub to triggered events and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	s.unsubscribe = s.nodes.Subscribe(s.hub.BroadcastEvent)

	read, write, idle := s.cfg.Timeouts.Durations()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      write,
		IdleTimeout:       idle,
	}

	srv := s.server
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", srv.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It detaches the hub from the event stream, then waits up to 10 seconds
// for in-flight requests to complete.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
