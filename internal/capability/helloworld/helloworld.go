// Package helloworld publishes a single read-only string variable. It is the
// smallest complete module and a template for new ones.
package helloworld

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
)

const (
	Namespace  = "http://www.axis.com/OpcUA/HelloWorld/"
	ModuleName = "opc-hello-world-plugin"
	NodeName   = "HelloWorldNode"
	Greeting   = "Hello World!"
)

// Module publishes HelloWorldNode below the Objects folder.
type Module struct {
	mu       sync.Mutex
	engine   addrspace.Engine
	manifest *graph.Manifest
	node     addrspace.NodeID
}

// New returns an unconstructed module.
func New() *Module {
	return &Module{}
}

// Construct implements plugin.Module.
func (m *Module) Construct(_ context.Context, h plugin.Host) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifest != nil {
		return nil
	}
	h = h.WithDefaults()
	if h.Engine == nil {
		return fmt.Errorf("%w: %s needs an engine", plugin.ErrIncompleteHost, ModuleName)
	}

	b := graph.Begin(h.Engine)
	defer func() { err = plugin.Finish(b, err) }()

	ns := h.Engine.AddNamespace(Namespace)
	id, err := b.AddVariable(addrspace.VariableNode{
		RequestedID: addrspace.StringID(ns, NodeName),
		Parent:      addrspace.ObjectsFolder,
		BrowseName:  addrspace.QualifiedName{Namespace: ns, Name: NodeName},
		Description: "Hello World Node",
		DataType:    addrspace.StringType,
		Value:       Greeting,
		AccessLevel: addrspace.AccessRead,
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", NodeName, err)
	}

	manifest, err := b.Commit()
	if err != nil {
		return err
	}
	m.engine = h.Engine
	m.manifest = manifest
	m.node = id
	h.Logger.Info("hello world node published", "node", id.String())
	return nil
}

// Destruct implements plugin.Module.
func (m *Module) Destruct() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifest == nil {
		return nil
	}
	manifest := m.manifest
	m.manifest = nil
	return manifest.Teardown(m.engine)
}

// Name implements plugin.Module.
func (m *Module) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifest == nil {
		return plugin.NotInitialized(ModuleName)
	}
	return ModuleName
}

// Node returns the published variable.
func (m *Module) Node() addrspace.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.node
}
