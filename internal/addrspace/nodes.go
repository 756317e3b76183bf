package addrspace

import (
	"errors"
	"fmt"
)

// AddObjectNode creates an object under n.Parent and instantiates the
// Mandatory children of its type definition. Registered type constructors
// run last; if one fails the new object is removed again and the error is
// returned.
func (s *Space) AddObjectNode(n ObjectNode) (NodeID, error) {
	refType := defaultID(n.ReferenceType, HasComponent)
	typeDef := defaultID(n.TypeDefinition, BaseObjectType)

	td, ok := s.nodes[typeDef]
	if !ok || td.class != ClassObjectType || td.abstract {
		return NodeID{}, fmt.Errorf("%w: %s", ErrTypeDefinitionInvalid, typeDef)
	}

	id, err := s.prepare(n.RequestedID, n.Parent, refType, n.BrowseName)
	if err != nil {
		return NodeID{}, err
	}

	obj := &node{
		id:          id,
		class:       ClassObject,
		browseName:  n.BrowseName,
		displayName: Text(defaultString(n.DisplayName, n.BrowseName.Name)),
		description: Text(n.Description),
		typeDef:     typeDef,
		notifier:    n.EventNotifier,
	}
	s.insert(obj)
	s.link(n.Parent, refType, id)
	s.link(id, HasTypeDefinition, typeDef)

	if err := s.instantiate(id, typeDef); err != nil {
		_ = s.DeleteNode(id, true)
		return NodeID{}, err
	}

	if err := s.construct(id, typeDef, n.Context); err != nil {
		_ = s.DeleteNode(id, true)
		return NodeID{}, err
	}
	return id, nil
}

// AddVariableNode creates a variable under n.Parent.
func (s *Space) AddVariableNode(n VariableNode) (NodeID, error) {
	refType := defaultID(n.ReferenceType, HasComponent)
	typeDef := defaultID(n.TypeDefinition, BaseDataVariableType)

	if td, ok := s.nodes[typeDef]; !ok || td.class != ClassVariableType {
		return NodeID{}, fmt.Errorf("%w: %s", ErrTypeDefinitionInvalid, typeDef)
	}
	if dt, ok := s.nodes[n.DataType]; !ok || dt.class != ClassDataType {
		return NodeID{}, fmt.Errorf("%w: data type %s", ErrTypeDefinitionInvalid, n.DataType)
	}
	if err := s.checkValue(n.DataType, n.Value); err != nil {
		return NodeID{}, err
	}
	if !n.ModellingRule.IsNull() && !s.Exists(n.ModellingRule) {
		return NodeID{}, fmt.Errorf("%w: modelling rule %s", ErrNodeIDUnknown, n.ModellingRule)
	}

	id, err := s.prepare(n.RequestedID, n.Parent, refType, n.BrowseName)
	if err != nil {
		return NodeID{}, err
	}

	access := n.AccessLevel
	if access == 0 {
		access = AccessRead
	}
	s.insert(&node{
		id:          id,
		class:       ClassVariable,
		browseName:  n.BrowseName,
		displayName: Text(defaultString(n.DisplayName, n.BrowseName.Name)),
		description: Text(n.Description),
		typeDef:     typeDef,
		dataType:    n.DataType,
		value:       n.Value,
		access:      access,
	})
	s.link(n.Parent, refType, id)
	s.link(id, HasTypeDefinition, typeDef)
	if !n.ModellingRule.IsNull() {
		s.link(id, HasModellingRule, n.ModellingRule)
	}
	return id, nil
}

// AddMethodNode creates a method under n.Parent.
func (s *Space) AddMethodNode(n MethodNode) (NodeID, error) {
	refType := defaultID(n.ReferenceType, HasComponent)
	for _, a := range append(append([]Argument{}, n.InputArguments...), n.OutputArguments...) {
		if dt, ok := s.nodes[a.DataType]; !ok || dt.class != ClassDataType {
			return NodeID{}, fmt.Errorf("%w: argument %q data type %s", ErrTypeDefinitionInvalid, a.Name, a.DataType)
		}
	}

	id, err := s.prepare(n.RequestedID, n.Parent, refType, n.BrowseName)
	if err != nil {
		return NodeID{}, err
	}
	s.insert(&node{
		id:          id,
		class:       ClassMethod,
		browseName:  n.BrowseName,
		displayName: Text(defaultString(n.DisplayName, n.BrowseName.Name)),
		description: Text(n.Description),
		method:      n.Callback,
		inputArgs:   append([]Argument(nil), n.InputArguments...),
		outputArgs:  append([]Argument(nil), n.OutputArguments...),
	})
	s.link(n.Parent, refType, id)
	return id, nil
}

// AddObjectTypeNode creates an object type as a subtype of n.Parent.
func (s *Space) AddObjectTypeNode(n ObjectTypeNode) (NodeID, error) {
	parent := defaultID(n.Parent, BaseObjectType)
	if p, ok := s.nodes[parent]; !ok || p.class != ClassObjectType {
		return NodeID{}, fmt.Errorf("%w: supertype %s", ErrParentNodeIDInvalid, parent)
	}
	id, err := s.prepare(n.RequestedID, parent, HasSubtype, n.BrowseName)
	if err != nil {
		return NodeID{}, err
	}
	s.insert(&node{
		id:          id,
		class:       ClassObjectType,
		browseName:  n.BrowseName,
		displayName: Text(defaultString(n.DisplayName, n.BrowseName.Name)),
		description: Text(n.Description),
		abstract:    n.Abstract,
	})
	s.link(parent, HasSubtype, id)
	return id, nil
}

// AddDataTypeNode creates a data type as a subtype of n.Parent.
func (s *Space) AddDataTypeNode(n DataTypeNode) (NodeID, error) {
	parent := defaultID(n.Parent, BaseDataType)
	if p, ok := s.nodes[parent]; !ok || p.class != ClassDataType {
		return NodeID{}, fmt.Errorf("%w: supertype %s", ErrParentNodeIDInvalid, parent)
	}
	id, err := s.prepare(n.RequestedID, parent, HasSubtype, n.BrowseName)
	if err != nil {
		return NodeID{}, err
	}
	s.insert(&node{
		id:          id,
		class:       ClassDataType,
		browseName:  n.BrowseName,
		displayName: Text(defaultString(n.DisplayName, n.BrowseName.Name)),
		description: Text(n.Description),
	})
	s.link(parent, HasSubtype, id)
	return id, nil
}

// AddReference adds a forward reference between two existing nodes.
func (s *Space) AddReference(r Reference) error {
	if !s.Exists(r.Source) {
		return fmt.Errorf("%w: source %s", ErrNodeIDUnknown, r.Source)
	}
	if !s.Exists(r.Target) {
		return fmt.Errorf("%w: target %s", ErrNodeIDUnknown, r.Target)
	}
	if rt, ok := s.nodes[r.Type]; !ok || rt.class != ClassReferenceType {
		return fmt.Errorf("%w: %s", ErrReferenceTypeInvalid, r.Type)
	}
	if s.hasRef(r.Source, r.Type, r.Target) {
		return fmt.Errorf("%w: %s -> %s", ErrReferenceExists, r.Source, r.Target)
	}
	s.link(r.Source, r.Type, r.Target)
	return nil
}

// DeleteReference removes a forward reference and its inverse.
func (s *Space) DeleteReference(r Reference) error {
	if !s.unlink(r.Source, r.Type, r.Target) {
		return fmt.Errorf("%w: %s -> %s", ErrReferenceUnknown, r.Source, r.Target)
	}
	return nil
}

// DeleteNode removes a node together with the children it aggregates
// (HasComponent, HasProperty) that have no other aggregating parent. With
// deleteReferences set, references held by other nodes are removed too.
func (s *Space) DeleteNode(id NodeID, deleteReferences bool) error {
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeIDUnknown, id)
	}

	var owned []NodeID
	for _, r := range n.refs {
		if r.forward && aggregates(r.typ) && s.parentCount(r.target) == 1 {
			owned = append(owned, r.target)
		}
	}

	if deleteReferences {
		for _, r := range n.refs {
			if other, ok := s.nodes[r.target]; ok && other != n {
				other.refs, _ = removeRef(other.refs, ref{typ: r.typ, target: id, forward: !r.forward})
			}
		}
	}
	delete(s.nodes, id)
	delete(s.constructors, id)

	var errs []error
	for _, child := range owned {
		if !s.Exists(child) {
			continue
		}
		if err := s.DeleteNode(child, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// prepare validates the common parts of a node request and returns the id to use.
func (s *Space) prepare(requested, parent, refType NodeID, name QualifiedName) (NodeID, error) {
	if _, ok := s.nodes[parent]; !ok {
		return NodeID{}, fmt.Errorf("%w: %s", ErrParentNodeIDInvalid, parent)
	}
	if rt, ok := s.nodes[refType]; !ok || rt.class != ClassReferenceType {
		return NodeID{}, fmt.Errorf("%w: %s", ErrReferenceTypeInvalid, refType)
	}
	if name.Name == "" {
		return NodeID{}, fmt.Errorf("%w: empty browse name", ErrBrowseNameDuplicated)
	}
	if refType != HasSubtype {
		if _, err := s.child(parent, NodeID{}, name); err == nil {
			return NodeID{}, fmt.Errorf("%w: %s under %s", ErrBrowseNameDuplicated, name, parent)
		}
	}

	// A zero identifier asks for allocation, in the requested namespace when
	// one is given.
	if requested.Numeric == 0 && requested.Text == "" {
		ns := name.Namespace
		if requested.Namespace != 0 {
			ns = requested.Namespace
		}
		return s.allocate(ns), nil
	}
	if s.Exists(requested) {
		return NodeID{}, fmt.Errorf("%w: %s", ErrNodeIDExists, requested)
	}
	return requested, nil
}

// parentCount counts aggregating references pointing at id.
func (s *Space) parentCount(id NodeID) int {
	n, ok := s.nodes[id]
	if !ok {
		return 0
	}
	count := 0
	for _, r := range n.refs {
		if !r.forward && aggregates(r.typ) {
			count++
		}
	}
	return count
}

// instantiate copies Mandatory children of typeDef and its supertypes onto id.
// Children declared on a more specific type win over inherited ones.
func (s *Space) instantiate(id, typeDef NodeID) error {
	seen := make(map[QualifiedName]bool)
	for cur, depth := typeDef, 0; depth < 64; depth++ {
		t, ok := s.nodes[cur]
		if !ok {
			break
		}
		for _, r := range t.refs {
			if !r.forward || !aggregates(r.typ) {
				continue
			}
			decl, ok := s.nodes[r.target]
			if !ok || !s.hasRef(decl.id, HasModellingRule, ModellingRuleMandatory) || seen[decl.browseName] {
				continue
			}
			seen[decl.browseName] = true
			if err := s.copyChild(id, r.typ, decl); err != nil {
				return err
			}
		}
		next, ok := s.supertype(cur)
		if !ok || cur == BaseObjectType {
			break
		}
		cur = next
	}
	return nil
}

func (s *Space) copyChild(parent, refType NodeID, decl *node) error {
	switch decl.class {
	case ClassVariable:
		id := s.allocate(parent.Namespace)
		s.insert(&node{
			id:          id,
			class:       ClassVariable,
			browseName:  decl.browseName,
			displayName: decl.displayName,
			description: decl.description,
			typeDef:     decl.typeDef,
			dataType:    decl.dataType,
			value:       decl.value,
			access:      decl.access,
		})
		s.link(parent, refType, id)
		s.link(id, HasTypeDefinition, decl.typeDef)
		return nil
	case ClassObject:
		_, err := s.AddObjectNode(ObjectNode{
			RequestedID:    NumericID(parent.Namespace, 0),
			Parent:         parent,
			ReferenceType:  refType,
			BrowseName:     decl.browseName,
			DisplayName:    decl.displayName.Text,
			TypeDefinition: decl.typeDef,
			EventNotifier:  decl.notifier,
		})
		return err
	case ClassMethod:
		s.link(parent, refType, decl.id)
		return nil
	}
	return nil
}

// construct runs the registered constructors of the type chain, base type first.
func (s *Space) construct(id, typeDef NodeID, nodeContext any) error {
	var chain []NodeID
	for cur, depth := typeDef, 0; depth < 64; depth++ {
		chain = append(chain, cur)
		next, ok := s.supertype(cur)
		if !ok {
			break
		}
		cur = next
	}
	for i := len(chain) - 1; i >= 0; i-- {
		fn, ok := s.constructors[chain[i]]
		if !ok {
			continue
		}
		if err := fn(s, chain[i], id, nodeContext); err != nil {
			return fmt.Errorf("constructing %s: %w", id, err)
		}
	}
	return nil
}

// SetTypeConstructor registers the constructor for instances of typeID.
func (s *Space) SetTypeConstructor(typeID NodeID, fn Constructor) error {
	t, ok := s.nodes[typeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeIDUnknown, typeID)
	}
	if t.class != ClassObjectType {
		return fmt.Errorf("%w: %s is a %s", ErrNodeClassInvalid, typeID, t.class)
	}
	if fn == nil {
		delete(s.constructors, typeID)
		return nil
	}
	s.constructors[typeID] = fn
	return nil
}

func defaultID(id, def NodeID) NodeID {
	if id.IsNull() {
		return def
	}
	return id
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
