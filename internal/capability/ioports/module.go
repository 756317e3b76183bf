package ioports

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
	"github.com/nerrad567/gray-logic-ua/internal/vapix"
)

// instance is the typed context handed to the IOPortObjType constructor.
type instance struct {
	Index int
	Port  Port
}

// Module publishes the device's I/O ports.
//
// Thread Safety: Construct and Destruct run on the startup and shutdown
// goroutine. Data sources run on the server goroutine and event handlers on
// notifier goroutines; both reach port state only through the cache.
type Module struct {
	mu          sync.Mutex
	constructed bool
	bridge      *eventbridge.Bridge
	manifest    *graph.Manifest

	// Set during construction, read-only afterwards.
	host   plugin.Host
	logger *logging.Logger
	ns     uint16
	api    portsAPI
	nodes  map[int]addrspace.NodeID

	ports *statecache.Cache[int, Port]
}

// New returns an unconstructed module.
func New() *Module {
	return &Module{ports: statecache.New[int, Port]()}
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

	versions, err := api.SupportedVersions(ctx)
	if err != nil {
		return fmt.Errorf("querying port management versions: %w", err)
	}
	if err := vapix.RequireVersion(endpoint, versions, APIVersion); err != nil {
		return err
	}
	return m.build(ctx, h, api)
}

// build runs the guarded part of construction.
func (m *Module) build(ctx context.Context, h plugin.Host, api portsAPI) (err error) {
	m.host = h
	m.logger = h.Logger
	m.api = api

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
		m.ports.Clear()
	}()

	m.ns = h.Engine.AddNamespace(Namespace)
	if err := installTypes(b, m.ns); err != nil {
		return fmt.Errorf("installing types: %w", err)
	}
	if err := h.Engine.SetTypeConstructor(m.id(idPortObjType), addrspace.TypedConstructor(m.constructInstance)); err != nil {
		return fmt.Errorf("installing IOPortObjType constructor: %w", err)
	}

	ports, err := api.GetPorts(ctx)
	if err != nil {
		return fmt.Errorf("fetching ports: %w", err)
	}
	m.ports.Replace(ports)

	nodes := make(map[int]addrspace.NodeID, len(ports))
	for _, index := range sortedIndexes(ports) {
		label := portLabel(index)
		id, err := b.AddObject(addrspace.ObjectNode{
			Parent:         m.id(idPorts),
			ReferenceType:  addrspace.Organizes,
			BrowseName:     m.qn(label),
			TypeDefinition: m.id(idPortObjType),
			Context:        instance{Index: index, Port: ports[index]},
		})
		if err != nil {
			return fmt.Errorf("adding %s: %w", label, err)
		}
		nodes[index] = id
	}
	m.nodes = nodes

	if err := bridge.Subscribe(stateFilter, m.handleState); err != nil {
		return err
	}
	if err := bridge.Subscribe(configFilter, m.handleConfig); err != nil {
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

	m.logger.Info("I/O ports published", "ports", len(ports))
	return nil
}

// Destruct implements plugin.Module. Subscriptions are closed before the
// subtree is removed and the cache cleared.
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
	m.ports.Clear()
	return errors.Join(errs...)
}

// Name implements plugin.Module.
func (m *Module) Name() string {
	if !m.isConstructed() {
		return plugin.NotInitialized(ModuleName)
	}
	return ModuleName
}

// Ports returns a copy of the cached port state.
func (m *Module) Ports() map[int]Port {
	return m.ports.Snapshot()
}

// Node returns the instance node of port index.
func (m *Module) Node(index int) (addrspace.NodeID, bool) {
	if !m.isConstructed() {
		return addrspace.NodeID{}, false
	}
	id, ok := m.nodes[index]
	return id, ok
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

func (m *Module) id(n uint32) addrspace.NodeID {
	return addrspace.NumericID(m.ns, n)
}

func (m *Module) qn(name string) addrspace.QualifiedName {
	return addrspace.QualifiedName{Namespace: m.ns, Name: name}
}

// portLabel is the browse name of a port's instance. The device numbers
// ports from zero; labels start at one.
func portLabel(index int) string {
	return fmt.Sprintf(labelFmt, index+1)
}

// constructInstance is the IOPortObjType constructor. For every property it
// writes the initial value, applies the access level and binds the cache
// backed data source of live properties.
func (m *Module) constructInstance(e addrspace.Engine, id addrspace.NodeID, inst instance) error {
	for _, decl := range properties {
		name := m.qn(decl.name)
		if err := e.WriteObjectProperty(id, name, inst.Port.value(decl.name, inst.Index)); err != nil {
			return fmt.Errorf("writing %s: %w", decl.name, err)
		}
		prop, err := e.TranslateBrowsePath(id, addrspace.HasProperty, name)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", decl.name, err)
		}
		if err := e.WriteAccessLevel(prop, AccessFor(decl.name, inst.Port)); err != nil {
			return fmt.Errorf("setting access level of %s: %w", decl.name, err)
		}
		if decl.live {
			if err := e.SetDataSource(prop, m.dataSource(decl.name)); err != nil {
				return fmt.Errorf("binding %s: %w", decl.name, err)
			}
		}
	}
	return e.WriteEventNotifier(id, addrspace.SubscribeToEvents)
}
