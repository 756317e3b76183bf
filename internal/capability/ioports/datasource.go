package ioports

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/statecache"
)

// writeStrategy says how a successful device write reaches the cache. Every
// port property is echoed back by the device as an event.
var writeStrategy = map[string]statecache.Strategy{
	PropName:        statecache.Eventual,
	PropUsage:       statecache.Eventual,
	PropDirection:   statecache.Eventual,
	PropNormalState: statecache.Eventual,
	PropState:       statecache.Eventual,
}

func (m *Module) dataSource(prop string) addrspace.DataSource {
	return addrspace.DataSource{
		Read: func(_ context.Context, id addrspace.NodeID) (any, error) {
			return m.read(id, prop)
		},
		Write: func(ctx context.Context, id addrspace.NodeID, value any) error {
			return m.write(ctx, id, prop, value)
		},
	}
}

// portIndex resolves the device index of the port a property belongs to:
// the inverse hierarchical reference leads to the instance, whose Index
// property holds it.
func (m *Module) portIndex(prop addrspace.NodeID) (int, error) {
	e := m.host.Engine
	obj, err := e.Parent(prop)
	if err != nil {
		return 0, err
	}
	v, err := e.ReadObjectProperty(obj, m.qn(PropIndex))
	if err != nil {
		return 0, err
	}
	index, ok := v.(int32)
	if !ok {
		return 0, fmt.Errorf("%w: index of %s is %T", addrspace.ErrTypeMismatch, obj, v)
	}
	return int(index), nil
}

func (m *Module) read(id addrspace.NodeID, prop string) (any, error) {
	index, err := m.portIndex(id)
	if err != nil {
		return nil, m.failed(prop, err)
	}
	p, ok := m.ports.Get(index)
	if !ok {
		return nil, m.failed(prop, fmt.Errorf("%w: port %d is not cached", addrspace.ErrNodeIDUnknown, index))
	}
	return p.value(prop, index), nil
}

func (m *Module) write(ctx context.Context, id addrspace.NodeID, prop string, value any) error {
	key, native, err := deviceValue(prop, value)
	if err != nil {
		return m.failed(prop, err)
	}
	index, err := m.portIndex(id)
	if err != nil {
		return m.failed(prop, err)
	}

	if err := m.api.SetPort(ctx, index, key, native); err != nil {
		return m.failed(prop, fmt.Errorf("%w: setting %s of port %d: %w", addrspace.ErrCommunication, prop, index, err))
	}

	if writeStrategy[prop] == statecache.Optimistic {
		m.ports.Update(index, func(p *Port) { applyValue(p, prop, value) })
	}

	if prop == PropDirection {
		p, ok := m.ports.Get(index)
		if !ok {
			return m.failed(prop, fmt.Errorf("%w: port %d is not cached", addrspace.ErrNodeIDUnknown, index))
		}
		p.Direction = Direction(value.(int32))
		if err := m.setStateAccess(m.host.Engine, id, p); err != nil {
			return m.failed(prop, err)
		}
	}
	return nil
}

// setStateAccess follows a direction change on the State sibling of prop.
// p carries the new direction.
func (m *Module) setStateAccess(e addrspace.Engine, prop addrspace.NodeID, p Port) error {
	obj, err := e.Parent(prop)
	if err != nil {
		return err
	}
	return m.setStateAccessOn(e, obj, p)
}

// setStateAccessOn applies AccessFor to the State property of obj, so a
// disabled port stays read-only whatever its direction.
func (m *Module) setStateAccessOn(e addrspace.Engine, obj addrspace.NodeID, p Port) error {
	state, err := e.TranslateBrowsePath(obj, addrspace.HasProperty, m.qn(PropState))
	if err != nil {
		return err
	}
	return e.WriteAccessLevel(state, AccessFor(PropState, p))
}

// failed counts and logs a data-source error and returns it unchanged.
func (m *Module) failed(prop string, err error) error {
	status := addrspace.StatusCode(err)
	m.host.Metrics.DataSourceError(LogicalName, prop, status)
	m.logger.Warn("data source failed", "property", prop, "status", status, "error", err)
	return err
}

// deviceValue validates a client value and translates it to the setPorts
// key and value.
func deviceValue(prop string, value any) (key, native string, err error) {
	switch prop {
	case PropName, PropUsage:
		s, ok := value.(string)
		if !ok {
			return "", "", fmt.Errorf("%w: %s expects a string, got %T", addrspace.ErrTypeMismatch, prop, value)
		}
		if prop == PropName {
			return keyName, s, nil
		}
		return keyUsage, s, nil
	case PropDirection:
		n, ok := value.(int32)
		if !ok {
			return "", "", fmt.Errorf("%w: %s expects an enum value, got %T", addrspace.ErrTypeMismatch, prop, value)
		}
		if n != int32(Input) && n != int32(Output) {
			return "", "", fmt.Errorf("%w: direction %d", addrspace.ErrOutOfRange, n)
		}
		return keyDirection, Direction(n).device(), nil
	case PropState, PropNormalState:
		n, ok := value.(int32)
		if !ok {
			return "", "", fmt.Errorf("%w: %s expects an enum value, got %T", addrspace.ErrTypeMismatch, prop, value)
		}
		if n != int32(Open) && n != int32(Closed) {
			return "", "", fmt.Errorf("%w: state %d", addrspace.ErrOutOfRange, n)
		}
		if prop == PropState {
			return keyState, State(n).device(), nil
		}
		return keyNormalState, State(n).device(), nil
	}
	return "", "", fmt.Errorf("%w: %s", addrspace.ErrNotWritable, prop)
}

// applyValue stores a validated client value in p.
func applyValue(p *Port, prop string, value any) {
	switch prop {
	case PropName:
		p.Name, _ = value.(string)
	case PropUsage:
		p.Usage, _ = value.(string)
	case PropDirection:
		if n, ok := value.(int32); ok {
			p.Direction = Direction(n)
		}
	case PropNormalState:
		if n, ok := value.(int32); ok {
			p.NormalState = State(n)
		}
	case PropState:
		if n, ok := value.(int32); ok {
			p.State = State(n)
		}
	}
}
