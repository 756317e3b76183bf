package addrspace

import (
	"sort"
	"time"
)

// StandardNamespace is the URI of namespace 0.
const StandardNamespace = "http://opcfoundation.org/UA/"

// firstAllocatedID is where identifier allocation starts in every namespace.
const firstAllocatedID = 50000

// Options configures a new Space.
type Options struct {
	// ApplicationURI becomes namespace 1.
	ApplicationURI string

	// Clock overrides time.Now for event timestamps.
	Clock func() time.Time
}

type ref struct {
	typ     NodeID
	target  NodeID
	forward bool
}

type node struct {
	id          NodeID
	class       NodeClass
	browseName  QualifiedName
	displayName LocalizedText
	description LocalizedText
	typeDef     NodeID
	dataType    NodeID
	value       any
	access      AccessLevel
	notifier    EventNotifier
	abstract    bool
	source      *DataSource
	method      MethodFunc
	inputArgs   []Argument
	outputArgs  []Argument
	refs        []ref
}

type pendingEvent struct {
	eventType NodeID
	fields    map[string]any
}

// Space is the in-memory address space. See the package documentation for
// its concurrency rules.
type Space struct {
	nodes        map[NodeID]*node
	namespaces   []string
	nextID       map[uint16]uint32
	customTypes  *TypeTable
	constructors map[NodeID]Constructor
	events       map[NodeID]*pendingEvent
	nextEventID  uint32
	sinks        []EventSink
	now          func() time.Time
}

// New creates a Space with namespace 0 seeded.
func New(opts Options) *Space {
	s := &Space{
		nodes:        make(map[NodeID]*node),
		namespaces:   []string{StandardNamespace},
		nextID:       make(map[uint16]uint32),
		constructors: make(map[NodeID]Constructor),
		events:       make(map[NodeID]*pendingEvent),
		nextEventID:  1 << 30,
		now:          opts.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.ApplicationURI != "" {
		s.AddNamespace(opts.ApplicationURI)
	}
	s.seed()
	return s
}

// AddNamespace registers uri and returns its index. Registering an existing
// uri returns the existing index.
func (s *Space) AddNamespace(uri string) uint16 {
	if idx, ok := s.NamespaceIndex(uri); ok {
		return idx
	}
	s.namespaces = append(s.namespaces, uri)
	return uint16(len(s.namespaces) - 1)
}

// NamespaceIndex looks up the index of a registered namespace uri.
func (s *Space) NamespaceIndex(uri string) (uint16, bool) {
	for i, ns := range s.namespaces {
		if ns == uri {
			return uint16(i), true
		}
	}
	return 0, false
}

// Namespaces returns the registered namespace uris in index order.
func (s *Space) Namespaces() []string {
	out := make([]string, len(s.namespaces))
	copy(out, s.namespaces)
	return out
}

// NodeCount returns the number of nodes in the space.
func (s *Space) NodeCount() int {
	return len(s.nodes)
}

// Exists reports whether id names a node.
func (s *Space) Exists(id NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// NodeIDs returns every node id, sorted by their string form.
func (s *Space) NodeIDs() []NodeID {
	out := make([]NodeID, 0, len(s.nodes))
	for id := range s.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ReferenceCount returns the number of forward references in the space.
func (s *Space) ReferenceCount() int {
	count := 0
	for _, n := range s.nodes {
		for _, r := range n.refs {
			if r.forward {
				count++
			}
		}
	}
	return count
}

// OnEvent registers a sink for triggered events.
func (s *Space) OnEvent(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

func (s *Space) allocate(ns uint16) NodeID {
	next, ok := s.nextID[ns]
	if !ok {
		next = firstAllocatedID
	}
	for {
		id := NumericID(ns, next)
		next++
		if _, taken := s.nodes[id]; !taken {
			s.nextID[ns] = next
			return id
		}
	}
}

func (s *Space) insert(n *node) {
	s.nodes[n.id] = n
}

// link adds a forward reference on src and the matching inverse on target.
func (s *Space) link(src, typ, target NodeID) {
	if sn, ok := s.nodes[src]; ok {
		sn.refs = append(sn.refs, ref{typ: typ, target: target, forward: true})
	}
	if tn, ok := s.nodes[target]; ok {
		tn.refs = append(tn.refs, ref{typ: typ, target: src, forward: false})
	}
}

func (s *Space) unlink(src, typ, target NodeID) bool {
	found := false
	if sn, ok := s.nodes[src]; ok {
		sn.refs, found = removeRef(sn.refs, ref{typ: typ, target: target, forward: true})
	}
	if tn, ok := s.nodes[target]; ok {
		tn.refs, _ = removeRef(tn.refs, ref{typ: typ, target: src, forward: false})
	}
	return found
}

func removeRef(refs []ref, r ref) ([]ref, bool) {
	for i, cur := range refs {
		if cur == r {
			return append(refs[:i], refs[i+1:]...), true
		}
	}
	return refs, false
}

func (s *Space) hasRef(src, typ, target NodeID) bool {
	sn, ok := s.nodes[src]
	if !ok {
		return false
	}
	for _, r := range sn.refs {
		if r.forward && r.typ == typ && r.target == target {
			return true
		}
	}
	return false
}

// supertype returns the direct supertype of a type node.
func (s *Space) supertype(id NodeID) (NodeID, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return NodeID{}, false
	}
	for _, r := range n.refs {
		if !r.forward && r.typ == HasSubtype {
			return r.target, true
		}
	}
	return NodeID{}, false
}

func (s *Space) isSubtypeOf(id, super NodeID) bool {
	for cur, depth := id, 0; depth < 64; depth++ {
		if cur == super {
			return true
		}
		next, ok := s.supertype(cur)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// seed creates the parts of namespace 0 the service relies on.
func (s *Space) seed() {
	add := func(id NodeID, class NodeClass, name string) *node {
		n := &node{
			id:          id,
			class:       class,
			browseName:  QualifiedName{Name: name},
			displayName: Text(name),
		}
		s.insert(n)
		return n
	}

	for _, rt := range []struct {
		id   NodeID
		name string
	}{
		{References, "References"},
		{HierarchicalReferences, "HierarchicalReferences"},
		{Organizes, "Organizes"},
		{HasEventSource, "HasEventSource"},
		{HasModellingRule, "HasModellingRule"},
		{HasTypeDefinition, "HasTypeDefinition"},
		{GeneratesEvent, "GeneratesEvent"},
		{HasSubtype, "HasSubtype"},
		{HasProperty, "HasProperty"},
		{HasComponent, "HasComponent"},
		{HasNotifier, "HasNotifier"},
	} {
		add(rt.id, ClassReferenceType, rt.name)
	}

	add(BaseDataType, ClassDataType, "BaseDataType").abstract = true
	for _, dt := range []struct {
		id   NodeID
		name string
	}{
		{BooleanType, "Boolean"},
		{UInt16Type, "UInt16"},
		{Int32Type, "Int32"},
		{UInt32Type, "UInt32"},
		{StringType, "String"},
		{DateTimeType, "DateTime"},
		{ByteStringType, "ByteString"},
		{NodeIDType, "NodeId"},
		{LocalizedTextType, "LocalizedText"},
		{EnumerationType, "Enumeration"},
	} {
		add(dt.id, ClassDataType, dt.name)
		s.link(BaseDataType, HasSubtype, dt.id)
	}
	s.nodes[EnumerationType].abstract = true

	add(BaseObjectType, ClassObjectType, "BaseObjectType")
	add(FolderType, ClassObjectType, "FolderType")
	s.link(BaseObjectType, HasSubtype, FolderType)
	add(BaseEventType, ClassObjectType, "BaseEventType").abstract = true
	s.link(BaseObjectType, HasSubtype, BaseEventType)

	add(BaseVariableType, ClassVariableType, "BaseVariableType").abstract = true
	add(BaseDataVariableType, ClassVariableType, "BaseDataVariableType")
	s.link(BaseVariableType, HasSubtype, BaseDataVariableType)
	add(PropertyType, ClassVariableType, "PropertyType")
	s.link(BaseVariableType, HasSubtype, PropertyType)

	eventFields := []struct {
		id       uint32
		name     string
		dataType NodeID
	}{
		{2042, FieldEventID, ByteStringType},
		{2043, FieldEventType, NodeIDType},
		{2044, FieldSourceNode, NodeIDType},
		{2045, FieldSourceName, StringType},
		{2046, FieldTime, DateTimeType},
		{2047, FieldReceiveTime, DateTimeType},
		{2050, FieldMessage, LocalizedTextType},
		{2051, FieldSeverity, UInt16Type},
	}
	for _, f := range eventFields {
		p := add(NumericID(0, f.id), ClassVariable, f.name)
		p.typeDef = PropertyType
		p.dataType = f.dataType
		p.access = AccessRead
		s.link(BaseEventType, HasProperty, p.id)
		s.link(p.id, HasTypeDefinition, PropertyType)
	}

	add(ModellingRuleMandatory, ClassObject, "Mandatory")

	for _, obj := range []struct {
		id       NodeID
		name     string
		parent   NodeID
		typeDef  NodeID
		notifier EventNotifier
	}{
		{RootFolder, "Root", NodeID{}, FolderType, 0},
		{ObjectsFolder, "Objects", RootFolder, FolderType, 0},
		{TypesFolder, "Types", RootFolder, FolderType, 0},
		{ServerObject, "Server", ObjectsFolder, BaseObjectType, SubscribeToEvents},
	} {
		n := add(obj.id, ClassObject, obj.name)
		n.typeDef = obj.typeDef
		n.notifier = obj.notifier
		s.link(obj.id, HasTypeDefinition, obj.typeDef)
		if !obj.parent.IsNull() {
			refType := Organizes
			if obj.id == ServerObject {
				refType = HasComponent
			}
			s.link(obj.parent, refType, obj.id)
		}
	}
}
