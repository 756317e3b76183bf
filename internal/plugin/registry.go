package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-ua/internal/audit"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
)

// State is a descriptor's lifecycle state.
type State int

// Lifecycle states.
const (
	Discovered State = iota
	Loaded
	Active
	Unloaded
)

var stateNames = [...]string{"discovered", "loaded", "active", "unloaded"}

// String returns the lower-case state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Descriptor tracks one loaded module.
type Descriptor struct {
	Name    string
	Loader  string
	Source  string
	Symbols Symbols

	handle io.Closer
	state  State
}

// State returns the descriptor's lifecycle state.
func (d *Descriptor) State() State {
	return d.state
}

// closeHandle closes the handle once.
func (d *Descriptor) closeHandle() error {
	if d.handle == nil {
		return nil
	}
	h := d.handle
	d.handle = nil
	return h.Close()
}

// ModuleInfo describes an active module for the API and CLI.
type ModuleInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Loader      string `json:"loader"`
	Source      string `json:"source"`
	State       string `json:"state"`
}

// Registry owns the loaders and the set of active modules.
//
// Load and activation are not safe for concurrent use and run on the
// startup goroutine. Active may be called from any goroutine.
type Registry struct {
	loaders  []Loader
	logger   *logging.Logger
	audit    audit.Recorder
	observer Observer

	mu     sync.RWMutex
	active []*Descriptor
}

// NewRegistry creates a registry over the given loaders.
func NewRegistry(logger *logging.Logger, loaders ...Loader) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		loaders:  loaders,
		logger:   logger.With("component", "plugin"),
		observer: NopObserver{},
	}
}

// SetAudit sets the audit trail. Without one, transitions are only logged.
func (r *Registry) SetAudit(a audit.Recorder) {
	r.audit = a
}

// SetObserver sets the metrics observer.
func (r *Registry) SetObserver(o Observer) {
	if o != nil {
		r.observer = o
	}
}

func (r *Registry) record(ctx context.Context, action, module, loader string, details map[string]any) {
	r.observer.ModuleState(module, action)
	if r.audit == nil {
		return
	}
	e := &audit.Entry{Action: action, Module: module, Loader: loader, Details: details}
	if err := r.audit.Record(ctx, e); err != nil {
		r.logger.Warn("writing module audit failed", "module", module, "action", action, "error", err)
	}
}

// Discover asks every loader for candidates. A loader error is logged and
// joined into the returned error; the candidates of other loaders are still
// returned. A logical name found twice keeps its first candidate.
func (r *Registry) Discover() ([]Candidate, error) {
	var (
		out  []Candidate
		errs []error
		seen = make(map[string]string)
	)
	for _, l := range r.loaders {
		found, err := l.Discover()
		if err != nil {
			r.logger.Error("module discovery failed", "loader", l.Kind(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", l.Kind(), err))
		}
		for _, c := range found {
			if prev, dup := seen[c.Name]; dup {
				r.logger.Warn("duplicate module name, skipping",
					"module", c.Name, "loader", c.Loader, "kept", prev)
				continue
			}
			seen[c.Name] = c.Loader
			out = append(out, c)
		}
	}
	return out, errors.Join(errs...)
}

func (r *Registry) loader(kind string) Loader {
	for _, l := range r.loaders {
		if l.Kind() == kind {
			return l
		}
	}
	return nil
}

// Load resolves the entry points of c. A candidate missing any entry point
// is rejected: its handle is closed and ErrMissingEntryPoint is returned.
func (r *Registry) Load(ctx context.Context, c Candidate) (*Descriptor, error) {
	l := r.loader(c.Loader)
	if l == nil {
		err := fmt.Errorf("%w: no %s loader for %s", ErrUnknownCandidate, c.Loader, c.Name)
		r.reject(ctx, c, err)
		return nil, err
	}

	syms, handle, err := l.Load(c)
	if err != nil {
		if handle != nil {
			_ = handle.Close()
		}
		r.reject(ctx, c, err)
		return nil, err
	}

	if missing := syms.missing(); len(missing) > 0 {
		if handle != nil {
			_ = handle.Close()
		}
		err := fmt.Errorf("%w: %s lacks %s", ErrMissingEntryPoint, c.Name, strings.Join(missing, ", "))
		r.reject(ctx, c, err)
		return nil, err
	}

	d := &Descriptor{
		Name:    c.Name,
		Loader:  c.Loader,
		Source:  c.Source,
		Symbols: syms,
		handle:  handle,
		state:   Loaded,
	}
	r.logger.Debug("module loaded", "module", c.Name, "loader", c.Loader, "source", c.Source)
	r.record(ctx, audit.ActionLoaded, c.Name, c.Loader, map[string]any{"source": c.Source})
	return d, nil
}

func (r *Registry) reject(ctx context.Context, c Candidate, err error) {
	r.logger.Error("module rejected", "module", c.Name, "loader", c.Loader, "error", err)
	r.record(ctx, audit.ActionRejected, c.Name, c.Loader, map[string]any{"error": err.Error()})
}

// Activate constructs a loaded module. On success the module joins the
// active set. On failure the handle is closed and the descriptor is dropped.
func (r *Registry) Activate(ctx context.Context, d *Descriptor, h Host) error {
	if d == nil || d.state != Loaded {
		return ErrInvalidState
	}

	if err := d.Symbols.Construct(ctx, h.ForModule(d.Name)); err != nil {
		d.state = Unloaded
		if errors.Is(err, ErrRollbackFailed) {
			r.logger.Critical("module rollback failed, address space may hold residue",
				"module", d.Name, "error", err)
			r.observer.RollbackFailed(d.Name)
			r.record(ctx, audit.ActionRollbackFailed, d.Name, d.Loader, map[string]any{"error": err.Error()})
		}
		r.logger.Error("module construction failed", "module", d.Name, "loader", d.Loader, "error", err)
		r.record(ctx, audit.ActionConstructFailed, d.Name, d.Loader, map[string]any{"error": err.Error()})
		if cerr := d.closeHandle(); cerr != nil {
			r.logger.Warn("closing module handle failed", "module", d.Name, "error", cerr)
		}
		return fmt.Errorf("constructing %s: %w", d.Name, err)
	}

	d.state = Active
	r.mu.Lock()
	r.active = append(r.active, d)
	r.mu.Unlock()

	display := d.Symbols.Name()
	r.logger.Info("module activated", "module", d.Name, "name", display, "loader", d.Loader)
	r.record(ctx, audit.ActionActivated, d.Name, d.Loader, map[string]any{"name": display})
	return nil
}

// LoadAll discovers, loads and activates every candidate in order. Failures
// are logged and skipped. It returns the number of active modules and the
// joined errors.
func (r *Registry) LoadAll(ctx context.Context, h Host) (int, error) {
	candidates, err := r.Discover()
	errs := []error{err}

	for _, c := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		d, err := r.Load(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.Activate(ctx, d, h); err != nil {
			errs = append(errs, err)
		}
	}

	n := len(r.Active())
	r.logger.Info("modules loaded", "active", n, "candidates", len(candidates))
	return n, errors.Join(errs...)
}

// DeactivateAll destructs every active module in load order and closes its
// handle. Errors are logged and never stop the remaining modules.
func (r *Registry) DeactivateAll(ctx context.Context) error {
	r.mu.Lock()
	active := r.active
	r.active = nil
	r.mu.Unlock()

	var errs []error
	for _, d := range active {
		if err := d.Symbols.Destruct(); err != nil {
			r.logger.Error("module destruct failed", "module", d.Name, "error", err)
			errs = append(errs, fmt.Errorf("destructing %s: %w", d.Name, err))
		}
		if err := d.closeHandle(); err != nil {
			r.logger.Warn("closing module handle failed", "module", d.Name, "error", err)
			errs = append(errs, fmt.Errorf("closing %s: %w", d.Name, err))
		}
		d.state = Unloaded
		r.logger.Info("module unloaded", "module", d.Name)
		r.record(ctx, audit.ActionUnloaded, d.Name, d.Loader, nil)
	}
	return errors.Join(errs...)
}

// Active returns the active modules in load order.
func (r *Registry) Active() []ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModuleInfo, 0, len(r.active))
	for _, d := range r.active {
		out = append(out, ModuleInfo{
			Name:        d.Name,
			DisplayName: d.Symbols.Name(),
			Loader:      d.Loader,
			Source:      d.Source,
			State:       d.state.String(),
		})
	}
	return out
}
