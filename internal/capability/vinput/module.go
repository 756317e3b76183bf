package vinput

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
	"github.com/nerrad567/gray-logic-ua/internal/statecache"
)

const (
	Namespace         = "http://www.axis.com/OpcUA/VirtualInput/"
	ModuleName        = "opc-vinput-plugin"
	CredentialsDomain = "vapix-virtualinput-user"
	LogicalName       = "vinput"

	// MaxPorts is the highest virtual input number. Older firmware may
	// have fewer inputs.
	MaxPorts = 64

	// idInputBase + N is the node of VirtualInput-N.
	idInputBase = 6100

	objectName   = "VirtualInputs"
	inputNameFmt = "VirtualInput-%d"
)

// Module publishes the virtual inputs.
type Module struct {
	mu          sync.Mutex
	constructed bool
	bridge      *eventbridge.Bridge
	manifest    *graph.Manifest

	// Set during construction, read-only afterwards.
	host     plugin.Host
	logger   *logging.Logger
	ns       uint16
	api      inputsAPI
	schema   string
	object   addrspace.NodeID
	activate addrspace.NodeID
	deact    addrspace.NodeID

	states *statecache.Cache[int, bool]
}

// New returns an unconstructed module.
func New() *Module {
	return &Module{states: statecache.New[int, bool]()}
}

// Construct implements plugin.Module.
func (m *Module) Construct(ctx context.Context, h plugin.Host) error {
	if m.isConstructed() {
		return nil
	}
	h = h.WithDefaults()
	if h.Engine == nil || h.Device == nil || h.Events == nil {
		return fmt.Errorf("%w: %s needs an engine, a device connector and an event service", plugin.ErrIncompleteHost, LogicalName)
	}

	client, err := h.Device.Client(ctx, CredentialsDomain)
	if err != nil {
		return err
	}
	api := deviceClient{c: client}
	schema, err := api.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("querying virtual input schema version: %w", err)
	}
	return m.build(h, api, schema)
}

func (m *Module) build(h plugin.Host, api inputsAPI, schema string) (err error) {
	m.host = h
	m.logger = h.Logger
	m.api = api
	m.schema = schema

	b := graph.Begin(h.Engine)
	defer func() { err = plugin.Finish(b, err) }()

	bridge := eventbridge.NewBridge(h.Events, LogicalName, h.Logger)
	bridge.SetObserver(h.Metrics)
	defer func() {
		if err == nil {
			return
		}
		if cerr := bridge.Close(); cerr != nil {
			m.logger.Warn("unsubscribing after failed construction", "error", cerr)
		}
		m.states.Clear()
	}()

	// Inputs start inactive until an event or a write says otherwise.
	initial := make(map[int]bool, MaxPorts)
	for port := 1; port <= MaxPorts; port++ {
		initial[port] = false
	}
	m.states.Replace(initial)

	if err := bridge.Subscribe(inputFilter, m.handleInput); err != nil {
		return err
	}

	m.ns = h.Engine.AddNamespace(Namespace)
	m.object, err = b.AddObject(addrspace.ObjectNode{
		Parent:        addrspace.ObjectsFolder,
		ReferenceType: addrspace.Organizes,
		BrowseName:    m.qn(objectName),
		Description:   objectName,
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", objectName, err)
	}

	for port := 1; port <= MaxPorts; port++ {
		name := inputName(port)
		id, err := b.AddVariable(addrspace.VariableNode{
			RequestedID: InputID(m.ns, port),
			Parent:      m.object,
			BrowseName:  m.qn(name),
			DataType:    addrspace.BooleanType,
			Value:       false,
			AccessLevel: addrspace.AccessReadWrite,
		})
		if err != nil {
			return fmt.Errorf("adding %s: %w", name, err)
		}
		if err := h.Engine.SetDataSource(id, m.dataSource()); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
	}

	if err := m.addMethods(b); err != nil {
		return err
	}

	manifest, err := b.Commit()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.bridge = bridge
	m.manifest = manifest
	m.constructed = true
	m.mu.Unlock()

	m.logger.Info("virtual inputs published", "inputs", MaxPorts, "schema", schema)
	return nil
}

// Destruct implements plugin.Module.
func (m *Module) Destruct() error {
	m.mu.Lock()
	if !m.constructed {
		m.mu.Unlock()
		return nil
	}
	m.constructed = false
	bridge, manifest := m.bridge, m.manifest
	m.bridge, m.manifest = nil, nil
	m.mu.Unlock()

	var errs []error
	if err := bridge.Close(); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribing: %w", err))
	}
	if err := manifest.Teardown(m.host.Engine); err != nil {
		errs = append(errs, fmt.Errorf("teardown: %w", err))
	}
	m.states.Clear()
	return errors.Join(errs...)
}

// Name implements plugin.Module.
func (m *Module) Name() string {
	if !m.isConstructed() {
		return plugin.NotInitialized(ModuleName)
	}
	return ModuleName
}

// States returns a copy of the cached input states keyed by port number.
func (m *Module) States() map[int]bool {
	return m.states.Snapshot()
}

// Object returns the VirtualInputs node and its method nodes.
func (m *Module) Object() (object, activate, deactivate addrspace.NodeID) {
	return m.object, m.activate, m.deact
}

// Subscriptions returns the number of live event subscriptions.
func (m *Module) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bridge == nil {
		return 0
	}
	return m.bridge.Len()
}

func (m *Module) isConstructed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constructed
}

func (m *Module) qn(name string) addrspace.QualifiedName {
	return addrspace.QualifiedName{Namespace: m.ns, Name: name}
}

func inputName(port int) string {
	return fmt.Sprintf(inputNameFmt, port)
}

// InputID returns the node of VirtualInput-port in namespace ns.
func InputID(ns uint16, port int) addrspace.NodeID {
	return addrspace.NumericID(ns, uint32(idInputBase+port))
}

// portOf maps an input node back to its port number.
func (m *Module) portOf(id addrspace.NodeID) (int, error) {
	if id.Namespace != m.ns || !id.IsNumeric() {
		return 0, fmt.Errorf("%w: %s is not a virtual input", addrspace.ErrNodeIDUnknown, id)
	}
	port := int(id.Numeric) - idInputBase
	if port < 1 || port > MaxPorts {
		return 0, fmt.Errorf("%w: %s is not a virtual input", addrspace.ErrNodeIDUnknown, id)
	}
	return port, nil
}
