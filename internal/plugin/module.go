package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
	"github.com/nerrad567/gray-logic-ua/internal/history"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/vapix"
)

// DefaultPrefix is the naming convention prefix for modules.
const DefaultPrefix = "libopcua-"

// Module is a capability module.
//
// Construct builds the module's subtree and is a no-op when the module is
// already constructed. Destruct releases everything and is safe after a
// failed or absent construction. Name returns the self-reported name; before
// construction it returns NotInitialized(logical name).
type Module interface {
	Construct(ctx context.Context, h Host) error
	Destruct() error
	Name() string
}

// Symbols are the three resolved entry points of a module.
type Symbols struct {
	Construct func(ctx context.Context, h Host) error
	Destruct  func() error
	Name      func() string
}

// SymbolsOf resolves the entry points of m. A nil module resolves nothing.
func SymbolsOf(m Module) Symbols {
	if m == nil {
		return Symbols{}
	}
	return Symbols{Construct: m.Construct, Destruct: m.Destruct, Name: m.Name}
}

// missing lists the entry points that are nil.
func (s Symbols) missing() []string {
	var out []string
	if s.Construct == nil {
		out = append(out, "construct")
	}
	if s.Destruct == nil {
		out = append(out, "destruct")
	}
	if s.Name == nil {
		out = append(out, "name")
	}
	return out
}

// NotInitialized is the name a module reports before construction.
func NotInitialized(name string) string {
	return fmt.Sprintf("The %s is not initialized", name)
}

// DeviceConnector hands out authenticated device API clients per
// credentials domain. *vapix.Connector implements it.
type DeviceConnector interface {
	Client(ctx context.Context, domain string) (*vapix.Client, error)
}

// ParamReader reads persistent parameters. *params.Store implements it.
type ParamReader interface {
	Get(name string) (int, error)
}

// Observer receives module and runtime outcomes, for metrics.
type Observer interface {
	eventbridge.Observer
	ModuleState(module, state string)
	RollbackFailed(module string)
	DataSourceError(module, property, status string)
}

// NopObserver discards every observation.
type NopObserver struct{}

func (NopObserver) EventHandled(string)                    {}
func (NopObserver) EventDropped(string, string)            {}
func (NopObserver) ModuleState(string, string)             {}
func (NopObserver) RollbackFailed(string)                  {}
func (NopObserver) DataSourceError(string, string, string) {}

// Host is what the runtime hands to a module's constructor.
type Host struct {
	// Engine is the address space. Modules touch it only during
	// construction and destruction, and through Poster at runtime.
	Engine addrspace.Engine

	// Logger is the module's component logger.
	Logger *logging.Logger

	// Events is the device notification service.
	Events eventbridge.Service

	// Poster hands engine work to the server goroutine.
	Poster eventbridge.Poster

	// Device issues device API clients.
	Device DeviceConnector

	// Recorder stores state transitions.
	Recorder history.Recorder

	// Metrics observes module outcomes.
	Metrics Observer

	// Params reads persistent parameters.
	Params ParamReader
}

// WithDefaults fills unset optional collaborators with no-op implementations.
func (h Host) WithDefaults() Host {
	if h.Logger == nil {
		h.Logger = logging.Default()
	}
	if h.Recorder == nil {
		h.Recorder = history.Nop{}
	}
	if h.Metrics == nil {
		h.Metrics = NopObserver{}
	}
	return h
}

// ForModule returns a copy of h whose logger is tagged with the module name.
func (h Host) ForModule(name string) Host {
	h = h.WithDefaults()
	h.Logger = h.Logger.With("module", name)
	return h
}

// Finish ends a guarded construction. When err is non-nil and the builder is
// still open, it rolls back. A failing rollback is joined to err, wrapped in
// ErrRollbackFailed.
func Finish(b *graph.Builder, err error) error {
	if err == nil {
		return nil
	}
	if rbErr := b.Close(); rbErr != nil {
		return errors.Join(err, fmt.Errorf("%w: %w", ErrRollbackFailed, rbErr))
	}
	return err
}
