// Package simpleevent turns the device's live stream access notifications
// into protocol events.
//
// The LiveStreamAccessed object carries an Accessed property mirroring the
// last notification. Each notification with accessed=true also triggers a
// BaseEventType event anchored at the object.
package simpleevent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/capability/uaevent"
	"github.com/nerrad567/gray-logic-ua/internal/eventbridge"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
	"github.com/nerrad567/gray-logic-ua/internal/history"
	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ua/internal/plugin"
	"github.com/nerrad567/gray-logic-ua/internal/statecache"
)

const (
	Namespace   = "http://www.axis.com/OpcUA/SimpleEvent/"
	ModuleName  = "opc-simple-event-plugin"
	LogicalName = "simpleevent"

	ObjectName   = "LiveStreamAccessed"
	AccessedName = "Accessed"

	// Severity of the triggered events.
	Severity = 500
)

var accessFilter = eventbridge.Filter{
	"topic0":   "VideoSource",
	"topic1":   "LiveStreamAccessed",
	"accessed": eventbridge.Any,
}

// Module publishes the LiveStreamAccessed object.
type Module struct {
	mu          sync.Mutex
	constructed bool
	bridge      *eventbridge.Bridge
	manifest    *graph.Manifest

	// Set during construction, read-only afterwards.
	host   plugin.Host
	logger *logging.Logger
	ns     uint16
	object addrspace.NodeID

	accessed *statecache.Cache[string, bool]
}

// New returns an unconstructed module.
func New() *Module {
	return &Module{accessed: statecache.New[string, bool]()}
}

// Construct implements plugin.Module.
func (m *Module) Construct(_ context.Context, h plugin.Host) (err error) {
	if m.isConstructed() {
		return nil
	}
	h = h.WithDefaults()
	if h.Engine == nil || h.Events == nil || h.Poster == nil {
		return fmt.Errorf("%w: %s needs an engine, an event service and a poster", plugin.ErrIncompleteHost, LogicalName)
	}
	m.host = h
	m.logger = h.Logger

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
		m.accessed.Clear()
	}()

	m.ns = h.Engine.AddNamespace(Namespace)
	m.object, err = b.AddObject(addrspace.ObjectNode{
		Parent:        addrspace.ObjectsFolder,
		ReferenceType: addrspace.Organizes,
		BrowseName:    m.qn(ObjectName),
		Description:   "Livestream Accessed Object",
		EventNotifier: addrspace.SubscribeToEvents,
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", ObjectName, err)
	}
	_, err = b.AddVariable(addrspace.VariableNode{
		Parent:         m.object,
		ReferenceType:  addrspace.HasProperty,
		BrowseName:     m.qn(AccessedName),
		TypeDefinition: addrspace.PropertyType,
		DataType:       addrspace.BooleanType,
		Value:          false,
		AccessLevel:    addrspace.AccessRead,
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", AccessedName, err)
	}
	m.accessed.Put(AccessedName, false)

	if err := bridge.Subscribe(accessFilter, m.handleAccess); err != nil {
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

	m.logger.Info("live stream access events published")
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
	m.accessed.Clear()
	return errors.Join(errs...)
}

// Name implements plugin.Module.
func (m *Module) Name() string {
	if !m.isConstructed() {
		return plugin.NotInitialized(ModuleName)
	}
	return ModuleName
}

// Object returns the LiveStreamAccessed node.
func (m *Module) Object() addrspace.NodeID {
	return m.object
}

// Accessed returns the last reported access state.
func (m *Module) Accessed() bool {
	v, _ := m.accessed.Get(AccessedName)
	return v
}

func (m *Module) isConstructed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constructed
}

func (m *Module) qn(name string) addrspace.QualifiedName {
	return addrspace.QualifiedName{Namespace: m.ns, Name: name}
}

// handleAccess mirrors a notification into Accessed and, for accesses,
// triggers an event. Both happen on the server goroutine.
func (m *Module) handleAccess(ev *eventbridge.Event) error {
	topic, err := ev.String("topic1")
	if err != nil {
		return err
	}
	accessed, err := ev.Bool("accessed")
	if err != nil {
		return err
	}
	m.logger.Debug("live stream access event", "topic", topic, "accessed", accessed)

	before, after, _ := m.accessed.Update(AccessedName, func(v *bool) { *v = accessed })
	if before != after {
		m.record(after)
	}

	spec := uaevent.Spec{
		Type:       addrspace.BaseEventType,
		Origin:     m.object,
		SourceName: ObjectName,
		Message:    topic,
		Severity:   Severity,
		Time:       ev.Received,
	}
	object, name := m.object, m.qn(AccessedName)
	err = m.host.Poster.Post(func(e addrspace.Engine) {
		if accessed {
			if _, err := uaevent.Trigger(e, spec); err != nil {
				m.logger.Error("triggering access event failed", "error", err)
			}
		}
		if err := e.WriteObjectProperty(object, name, accessed); err != nil {
			m.logger.Error("writing Accessed failed", "error", err)
		}
	})
	if err != nil {
		m.host.Metrics.EventDropped(LogicalName, "handoff")
		m.logger.Warn("handoff refused, dropping access event", "error", err)
	}
	return nil
}

func (m *Module) record(accessed bool) {
	t := history.Transition{
		Module:   LogicalName,
		Instance: ObjectName,
		Property: AccessedName,
		Value:    strconv.FormatBool(accessed),
		Source:   history.SourceEvent,
		At:       time.Now(),
	}
	if err := m.host.Recorder.RecordTransition(context.Background(), t); err != nil {
		m.logger.Warn("recording transition failed", "error", err)
	}
}
