// Package bdi publishes the device's basic device information (serial
// number, product name, firmware version and so on) as read-only string
// properties of a BasicDeviceInfo object.
package bdi

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
	"github.com/nerrad567/gray-logic-ua/internal/history"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
	"github.com/nerrad567/gray-logic-ua/internal/vapix"
)

const (
	Namespace         = "http://www.axis.com/OpcUA/BasicDeviceInformation/"
	ModuleName        = "opc-bdi-plugin"
	CredentialsDomain = "vapix-basicdeviceinfo-user"
	LogicalName       = "bdi"

	ObjectName = "BasicDeviceInfo"

	endpoint   = "basicdeviceinfo.cgi"
	apiVersion = "1.3"
)

// Module publishes the basic device information.
type Module struct {
	mu         sync.Mutex
	engine     addrspace.Engine
	manifest   *graph.Manifest
	object     addrspace.NodeID
	properties map[string]string
}

// New returns an unconstructed module.
func New() *Module {
	return &Module{}
}

// Construct implements plugin.Module.
func (m *Module) Construct(ctx context.Context, h plugin.Host) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifest != nil {
		return nil
	}
	h = h.WithDefaults()
	if h.Engine == nil || h.Device == nil {
		return fmt.Errorf("%w: %s needs an engine and a device connector", plugin.ErrIncompleteHost, LogicalName)
	}

	client, err := h.Device.Client(ctx, CredentialsDomain)
	if err != nil {
		return err
	}
	props, err := fetchProperties(ctx, client)
	if err != nil {
		return err
	}

	b := graph.Begin(h.Engine)
	defer func() { err = plugin.Finish(b, err) }()

	ns := h.Engine.AddNamespace(Namespace)
	object, err := b.AddObject(addrspace.ObjectNode{
		Parent:        addrspace.ObjectsFolder,
		ReferenceType: addrspace.Organizes,
		BrowseName:    addrspace.QualifiedName{Namespace: ns, Name: ObjectName},
		Description:   ObjectName,
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", ObjectName, err)
	}

	for _, name := range slices.Sorted(maps.Keys(props)) {
		_, err := b.AddVariable(addrspace.VariableNode{
			Parent:         object,
			ReferenceType:  addrspace.HasProperty,
			BrowseName:     addrspace.QualifiedName{Namespace: ns, Name: name},
			Description:    name,
			TypeDefinition: addrspace.PropertyType,
			DataType:       addrspace.StringType,
			Value:          props[name],
			AccessLevel:    addrspace.AccessRead,
		})
		if err != nil {
			return fmt.Errorf("adding property %s: %w", name, err)
		}
	}

	manifest, err := b.Commit()
	if err != nil {
		return err
	}
	m.engine = h.Engine
	m.manifest = manifest
	m.object = object
	m.properties = props

	recordInventory(h, props)
	h.Logger.Info("basic device information published", "properties", len(props))
	return nil
}

// recordInventory writes the published values to the state history so that
// firmware changes between starts show up there.
func recordInventory(h plugin.Host, props map[string]string) {
	now := time.Now()
	for name, value := range props {
		err := h.Recorder.RecordTransition(context.Background(), history.Transition{
			Module:   LogicalName,
			Instance: ObjectName,
			Property: name,
			Value:    value,
			Source:   history.SourceInventory,
			At:       now,
		})
		if err != nil {
			h.Logger.Warn("recording inventory failed", "property", name, "error", err)
			return
		}
	}
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
	m.properties = nil
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

// Object returns the BasicDeviceInfo node.
func (m *Module) Object() addrspace.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.object
}

// Properties returns a copy of the published values.
func (m *Module) Properties() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.properties)
}

// fetchProperties calls getAllProperties. Values that are not strings are
// rendered with fmt.
func fetchProperties(ctx context.Context, c *vapix.Client) (map[string]string, error) {
	var out struct {
		PropertyList map[string]any `json:"propertyList"`
	}
	req := vapix.Request{APIVersion: apiVersion, Method: "getAllProperties"}
	if err := c.PostJSON(ctx, endpoint, req, &out); err != nil {
		return nil, fmt.Errorf("fetching basic device information: %w", err)
	}
	if out.PropertyList == nil {
		return nil, fmt.Errorf("%w: %s: no propertyList", vapix.ErrMalformedResponse, endpoint)
	}
	props := make(map[string]string, len(out.PropertyList))
	for k, v := range out.PropertyList {
		if k == "" || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			props[k] = s
			continue
		}
		props[k] = fmt.Sprint(v)
	}
	return props, nil
}
