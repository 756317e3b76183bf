package addrspace

// Well-known namespace 0 identifiers.
var (
	RootFolder    = NumericID(0, 84)
	ObjectsFolder = NumericID(0, 85)
	TypesFolder   = NumericID(0, 86)
	ServerObject  = NumericID(0, 2253)

	// Reference types.
	References             = NumericID(0, 31)
	HierarchicalReferences = NumericID(0, 33)
	Organizes              = NumericID(0, 35)
	HasEventSource         = NumericID(0, 36)
	HasModellingRule       = NumericID(0, 37)
	HasTypeDefinition      = NumericID(0, 40)
	GeneratesEvent         = NumericID(0, 41)
	HasSubtype             = NumericID(0, 45)
	HasProperty            = NumericID(0, 46)
	HasComponent           = NumericID(0, 47)
	HasNotifier            = NumericID(0, 48)

	// Data types.
	BooleanType       = NumericID(0, 1)
	UInt16Type        = NumericID(0, 5)
	Int32Type         = NumericID(0, 6)
	UInt32Type        = NumericID(0, 7)
	StringType        = NumericID(0, 12)
	DateTimeType      = NumericID(0, 13)
	ByteStringType    = NumericID(0, 15)
	NodeIDType        = NumericID(0, 17)
	LocalizedTextType = NumericID(0, 21)
	BaseDataType      = NumericID(0, 24)
	EnumerationType   = NumericID(0, 29)

	// Object, variable and event types.
	BaseObjectType       = NumericID(0, 58)
	FolderType           = NumericID(0, 61)
	BaseVariableType     = NumericID(0, 62)
	BaseDataVariableType = NumericID(0, 63)
	PropertyType         = NumericID(0, 68)
	BaseEventType        = NumericID(0, 2041)

	// Modelling rules.
	ModellingRuleMandatory = NumericID(0, 78)
)

// Standard BaseEventType field names.
const (
	FieldEventID     = "EventId"
	FieldEventType   = "EventType"
	FieldSourceNode  = "SourceNode"
	FieldSourceName  = "SourceName"
	FieldTime        = "Time"
	FieldReceiveTime = "ReceiveTime"
	FieldMessage     = "Message"
	FieldSeverity    = "Severity"
)

// hierarchical reports whether refType is one of the hierarchical reference
// types children are organised with.
func hierarchical(refType NodeID) bool {
	switch refType {
	case Organizes, HasComponent, HasProperty, HasEventSource, HasNotifier, HierarchicalReferences:
		return true
	}
	return false
}

// aggregates reports whether targets of refType are owned by their source and
// are removed together with it.
func aggregates(refType NodeID) bool {
	return refType == HasComponent || refType == HasProperty
}
