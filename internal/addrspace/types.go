package addrspace

import (
	"context"
	"fmt"
	"time"
)

// NodeClass is the class of a node.
type NodeClass int

// Node classes.
const (
	ClassObject NodeClass = iota + 1
	ClassVariable
	ClassMethod
	ClassObjectType
	ClassVariableType
	ClassReferenceType
	ClassDataType
)

var nodeClassNames = map[NodeClass]string{
	ClassObject:        "Object",
	ClassVariable:      "Variable",
	ClassMethod:        "Method",
	ClassObjectType:    "ObjectType",
	ClassVariableType:  "VariableType",
	ClassReferenceType: "ReferenceType",
	ClassDataType:      "DataType",
}

// String returns the OPC UA name of the class.
func (c NodeClass) String() string {
	if s, ok := nodeClassNames[c]; ok {
		return s
	}
	return fmt.Sprintf("NodeClass(%d)", int(c))
}

// AccessLevel is the bit mask controlling client access to a variable value.
type AccessLevel uint8

// Access level bits.
const (
	AccessRead  AccessLevel = 1 << 0
	AccessWrite AccessLevel = 1 << 1

	AccessReadWrite = AccessRead | AccessWrite
)

// EventNotifier is the bit mask controlling event subscriptions on an object.
type EventNotifier uint8

// SubscribeToEvents marks an object as a source clients may subscribe to.
const SubscribeToEvents EventNotifier = 1

// DataSource backs a variable with live values instead of static storage.
// Read and Write run on the server goroutine and must not block for longer
// than one device round trip.
type DataSource struct {
	Read  func(ctx context.Context, id NodeID) (any, error)
	Write func(ctx context.Context, id NodeID, value any) error
}

// MethodFunc implements a method node. object is the node the method is called on.
type MethodFunc func(ctx context.Context, object NodeID, input []any) ([]any, error)

// Argument describes one method argument.
type Argument struct {
	Name        string
	DataType    NodeID
	Description string
}

// Constructor runs when an instance of an object type is created. nodeContext
// is the Context field of the ObjectNode request.
type Constructor func(e Engine, typeID, id NodeID, nodeContext any) error

// TypedConstructor adapts fn into a Constructor that only accepts contexts of
// type T. Any other context fails with ErrBadContext.
func TypedConstructor[T any](fn func(e Engine, id NodeID, c T) error) Constructor {
	return func(e Engine, typeID, id NodeID, nodeContext any) error {
		c, ok := nodeContext.(T)
		if !ok {
			return fmt.Errorf("%w: instance of %s got %T", ErrBadContext, typeID, nodeContext)
		}
		return fn(e, id, c)
	}
}

// Reference is a directed reference from Source to Target.
type Reference struct {
	Source NodeID
	Type   NodeID
	Target NodeID
}

// ReferenceDescription is one browse result.
type ReferenceDescription struct {
	ReferenceType  NodeID
	IsForward      bool
	Target         NodeID
	BrowseName     QualifiedName
	DisplayName    LocalizedText
	NodeClass      NodeClass
	TypeDefinition NodeID
}

// NodeInfo is a snapshot of a node's attributes.
type NodeInfo struct {
	ID             NodeID
	Class          NodeClass
	BrowseName     QualifiedName
	DisplayName    LocalizedText
	Description    LocalizedText
	TypeDefinition NodeID
	DataType       NodeID
	AccessLevel    AccessLevel
	EventNotifier  EventNotifier
	Abstract       bool
	HasDataSource  bool
	InputArguments []Argument
	OutputArgs     []Argument
}

// ObjectNode requests a new object.
type ObjectNode struct {
	RequestedID    NodeID
	Parent         NodeID
	ReferenceType  NodeID // defaults to HasComponent
	BrowseName     QualifiedName
	DisplayName    string // defaults to BrowseName.Name
	Description    string
	TypeDefinition NodeID // defaults to BaseObjectType
	EventNotifier  EventNotifier
	Context        any
}

// VariableNode requests a new variable.
type VariableNode struct {
	RequestedID    NodeID
	Parent         NodeID
	ReferenceType  NodeID // defaults to HasComponent
	BrowseName     QualifiedName
	DisplayName    string
	Description    string
	TypeDefinition NodeID // defaults to BaseDataVariableType
	DataType       NodeID
	Value          any
	AccessLevel    AccessLevel // defaults to AccessRead
	ModellingRule  NodeID
}

// MethodNode requests a new method.
type MethodNode struct {
	RequestedID     NodeID
	Parent          NodeID
	ReferenceType   NodeID // defaults to HasComponent
	BrowseName      QualifiedName
	DisplayName     string
	Description     string
	InputArguments  []Argument
	OutputArguments []Argument
	Callback        MethodFunc
}

// ObjectTypeNode requests a new object type. Parent is the supertype.
type ObjectTypeNode struct {
	RequestedID NodeID
	Parent      NodeID // defaults to BaseObjectType
	BrowseName  QualifiedName
	DisplayName string
	Description string
	Abstract    bool
}

// DataTypeNode requests a new data type. Parent is the supertype.
type DataTypeNode struct {
	RequestedID NodeID
	Parent      NodeID // defaults to BaseDataType
	BrowseName  QualifiedName
	DisplayName string
	Description string
}

// Event is a triggered event as delivered to sinks.
type Event struct {
	EventID     []byte
	EventType   NodeID
	SourceNode  NodeID
	SourceName  string
	Time        time.Time
	ReceiveTime time.Time
	Message     LocalizedText
	Severity    uint16
	Fields      map[string]any
}

// EventSink receives triggered events. Sinks run on the goroutine that
// triggers the event and must not block.
type EventSink func(Event)

// Engine is the address-space surface used by capability modules and the
// server. *Space implements it.
type Engine interface {
	AddNamespace(uri string) uint16
	NamespaceIndex(uri string) (uint16, bool)

	AddObjectNode(n ObjectNode) (NodeID, error)
	AddVariableNode(n VariableNode) (NodeID, error)
	AddMethodNode(n MethodNode) (NodeID, error)
	AddObjectTypeNode(n ObjectTypeNode) (NodeID, error)
	AddDataTypeNode(n DataTypeNode) (NodeID, error)
	AddReference(ref Reference) error
	DeleteReference(ref Reference) error
	DeleteNode(id NodeID, deleteReferences bool) error

	CustomTypes() *TypeTable
	SetCustomTypes(t *TypeTable)

	SetTypeConstructor(typeID NodeID, fn Constructor) error
	SetDataSource(id NodeID, ds DataSource) error
	WriteAccessLevel(id NodeID, level AccessLevel) error
	WriteEventNotifier(id NodeID, n EventNotifier) error
	WriteValue(id NodeID, value any) error
	WriteObjectProperty(obj NodeID, name QualifiedName, value any) error
	ReadObjectProperty(obj NodeID, name QualifiedName) (any, error)
	TranslateBrowsePath(start, refType NodeID, name QualifiedName) (NodeID, error)
	Parent(id NodeID) (NodeID, error)
	Browse(id NodeID) ([]ReferenceDescription, error)
	Node(id NodeID) (NodeInfo, error)
	Exists(id NodeID) bool

	Read(ctx context.Context, id NodeID) (any, error)
	Write(ctx context.Context, id NodeID, value any) error
	Call(ctx context.Context, object, method NodeID, input []any) ([]any, error)
	CoerceValue(id NodeID, v any) (any, error)
	CoerceArguments(method NodeID, input []any) ([]any, error)

	CreateEvent(eventType NodeID) (NodeID, error)
	TriggerEvent(event, origin NodeID, deleteEvent bool) ([]byte, error)
	DeleteEvent(event NodeID) error
}
