package addrspace

import (
	"context"
	"fmt"
)

// child finds the forward hierarchical child of parent with the given browse
// name. A null refType matches any hierarchical reference.
func (s *Space) child(parent, refType NodeID, name QualifiedName) (NodeID, error) {
	p, ok := s.nodes[parent]
	if !ok {
		return NodeID{}, fmt.Errorf("%w: %s", ErrNodeIDUnknown, parent)
	}
	for _, r := range p.refs {
		if !r.forward {
			continue
		}
		if refType.IsNull() {
			if !hierarchical(r.typ) {
				continue
			}
		} else if r.typ != refType {
			continue
		}
		if c, ok := s.nodes[r.target]; ok && c.browseName == name {
			return c.id, nil
		}
	}
	return NodeID{}, fmt.Errorf("%w: %s has no child %s", ErrNoMatch, parent, name)
}

// TranslateBrowsePath resolves the child of start reached through refType
// with the given browse name. A null refType follows any hierarchical
// reference.
func (s *Space) TranslateBrowsePath(start, refType NodeID, name QualifiedName) (NodeID, error) {
	return s.child(start, refType, name)
}

// Parent returns the source of the first inverse hierarchical reference of id.
func (s *Space) Parent(id NodeID) (NodeID, error) {
	n, ok := s.nodes[id]
	if !ok {
		return NodeID{}, fmt.Errorf("%w: %s", ErrNodeIDUnknown, id)
	}
	for _, r := range n.refs {
		if !r.forward && hierarchical(r.typ) {
			return r.target, nil
		}
	}
	return NodeID{}, fmt.Errorf("%w: %s has no parent", ErrNoMatch, id)
}

// Browse lists every reference of id, forward and inverse.
func (s *Space) Browse(id NodeID) ([]ReferenceDescription, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeIDUnknown, id)
	}
	out := make([]ReferenceDescription, 0, len(n.refs))
	for _, r := range n.refs {
		t, ok := s.nodes[r.target]
		if !ok {
			continue
		}
		out = append(out, ReferenceDescription{
			ReferenceType:  r.typ,
			IsForward:      r.forward,
			Target:         t.id,
			BrowseName:     t.browseName,
			DisplayName:    t.displayName,
			NodeClass:      t.class,
			TypeDefinition: t.typeDef,
		})
	}
	return out, nil
}

// Node returns a snapshot of the attributes of id.
func (s *Space) Node(id NodeID) (NodeInfo, error) {
	n, ok := s.nodes[id]
	if !ok {
		return NodeInfo{}, fmt.Errorf("%w: %s", ErrNodeIDUnknown, id)
	}
	return NodeInfo{
		ID:             n.id,
		Class:          n.class,
		BrowseName:     n.browseName,
		DisplayName:    n.displayName,
		Description:    n.description,
		TypeDefinition: n.typeDef,
		DataType:       n.dataType,
		AccessLevel:    n.access,
		EventNotifier:  n.notifier,
		Abstract:       n.abstract,
		HasDataSource:  n.source != nil,
		InputArguments: append([]Argument(nil), n.inputArgs...),
		OutputArgs:     append([]Argument(nil), n.outputArgs...),
	}, nil
}

func (s *Space) variable(id NodeID) (*node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeIDUnknown, id)
	}
	if n.class != ClassVariable {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNodeClassInvalid, id, n.class)
	}
	return n, nil
}

// SetDataSource backs the variable id with ds.
func (s *Space) SetDataSource(id NodeID, ds DataSource) error {
	n, err := s.variable(id)
	if err != nil {
		return err
	}
	if ds.Read == nil {
		return fmt.Errorf("%w: data source for %s has no read callback", ErrNodeClassInvalid, id)
	}
	n.source = &ds
	return nil
}

// WriteAccessLevel sets the client access level of a variable.
func (s *Space) WriteAccessLevel(id NodeID, level AccessLevel) error {
	n, err := s.variable(id)
	if err != nil {
		return err
	}
	n.access = level
	return nil
}

// WriteEventNotifier sets the event notifier of an object.
func (s *Space) WriteEventNotifier(id NodeID, notifier EventNotifier) error {
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeIDUnknown, id)
	}
	if n.class != ClassObject {
		return fmt.Errorf("%w: %s is a %s", ErrNodeClassInvalid, id, n.class)
	}
	n.notifier = notifier
	return nil
}

// WriteValue sets the value of a variable without checking its access level.
// Variables backed by a data source forward the write to it.
func (s *Space) WriteValue(id NodeID, value any) error {
	n, err := s.variable(id)
	if err != nil {
		return err
	}
	if err := s.checkValue(n.dataType, value); err != nil {
		return err
	}
	if n.source != nil {
		if n.source.Write == nil {
			return fmt.Errorf("%w: %s", ErrNotWritable, id)
		}
		return n.source.Write(context.Background(), id, value)
	}
	n.value = value
	return nil
}

// WriteObjectProperty writes the property called name of obj. obj may also
// be an event created with CreateEvent.
func (s *Space) WriteObjectProperty(obj NodeID, name QualifiedName, value any) error {
	if ev, ok := s.events[obj]; ok {
		ev.fields[name.Name] = value
		return nil
	}
	prop, err := s.child(obj, HasProperty, name)
	if err != nil {
		return err
	}
	return s.WriteValue(prop, value)
}

// ReadObjectProperty reads the property called name of obj without
// consulting access levels.
func (s *Space) ReadObjectProperty(obj NodeID, name QualifiedName) (any, error) {
	if ev, ok := s.events[obj]; ok {
		v, ok := ev.fields[name.Name]
		if !ok {
			return nil, fmt.Errorf("%w: event field %s", ErrNoMatch, name)
		}
		return v, nil
	}
	prop, err := s.child(obj, HasProperty, name)
	if err != nil {
		return nil, err
	}
	return s.readValue(context.Background(), s.nodes[prop])
}

func (s *Space) readValue(ctx context.Context, n *node) (any, error) {
	if n.source != nil {
		return n.source.Read(ctx, n.id)
	}
	return n.value, nil
}

// Read is the client read path. It enforces the read access bit.
func (s *Space) Read(ctx context.Context, id NodeID) (any, error) {
	n, err := s.variable(id)
	if err != nil {
		return nil, err
	}
	if n.access&AccessRead == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotReadable, id)
	}
	return s.readValue(ctx, n)
}

// Write is the client write path. It enforces the write access bit and the
// data type, then stores the value or forwards it to the data source.
func (s *Space) Write(ctx context.Context, id NodeID, value any) error {
	n, err := s.variable(id)
	if err != nil {
		return err
	}
	if n.access&AccessWrite == 0 {
		return fmt.Errorf("%w: %s", ErrNotWritable, id)
	}
	if err := s.checkValue(n.dataType, value); err != nil {
		return err
	}
	if n.source != nil {
		if n.source.Write == nil {
			return fmt.Errorf("%w: %s", ErrNotWritable, id)
		}
		return n.source.Write(ctx, id, value)
	}
	n.value = value
	return nil
}

// Call invokes method on object after checking the input arguments.
func (s *Space) Call(ctx context.Context, object, method NodeID, input []any) ([]any, error) {
	if !s.Exists(object) {
		return nil, fmt.Errorf("%w: %s", ErrNodeIDUnknown, object)
	}
	m, ok := s.nodes[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeIDUnknown, method)
	}
	if m.class != ClassMethod || m.method == nil || !s.hasRef(object, HasComponent, method) {
		return nil, fmt.Errorf("%w: %s on %s", ErrMethodInvalid, method, object)
	}
	if len(input) < len(m.inputArgs) {
		return nil, fmt.Errorf("%w: %s wants %d", ErrArgumentsMissing, method, len(m.inputArgs))
	}
	if len(input) > len(m.inputArgs) {
		return nil, fmt.Errorf("%w: %s wants %d", ErrTooManyArguments, method, len(m.inputArgs))
	}
	for i, arg := range m.inputArgs {
		if err := s.checkValue(arg.DataType, input[i]); err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
	}
	return m.method(ctx, object, input)
}

// CoerceValue converts a loosely typed value for the variable id.
func (s *Space) CoerceValue(id NodeID, v any) (any, error) {
	n, err := s.variable(id)
	if err != nil {
		return nil, err
	}
	return s.Coerce(n.dataType, v)
}

// CoerceArguments converts loosely typed method inputs for method.
func (s *Space) CoerceArguments(method NodeID, input []any) ([]any, error) {
	m, ok := s.nodes[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeIDUnknown, method)
	}
	if m.class != ClassMethod {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNodeClassInvalid, method, m.class)
	}
	out := make([]any, len(input))
	for i, v := range input {
		if i >= len(m.inputArgs) {
			out[i] = v
			continue
		}
		c, err := s.Coerce(m.inputArgs[i].DataType, v)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", m.inputArgs[i].Name, err)
		}
		out[i] = c
	}
	return out, nil
}
