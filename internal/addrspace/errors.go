package addrspace

import "errors"

// Engine errors. Each one maps to an OPC UA status code through StatusCode.
var (
	// ErrNodeIDUnknown is returned when a NodeID does not exist.
	ErrNodeIDUnknown = errors.New("addrspace: node id unknown")

	// ErrNodeIDExists is returned when a requested NodeID is already taken.
	ErrNodeIDExists = errors.New("addrspace: node id exists")

	// ErrInvalidNodeID is returned when a NodeID cannot be parsed.
	ErrInvalidNodeID = errors.New("addrspace: invalid node id")

	// ErrParentNodeIDInvalid is returned when the parent of a new node does not exist.
	ErrParentNodeIDInvalid = errors.New("addrspace: parent node id invalid")

	// ErrReferenceTypeInvalid is returned when a reference type is not a ReferenceType node.
	ErrReferenceTypeInvalid = errors.New("addrspace: reference type invalid")

	// ErrTypeDefinitionInvalid is returned when a type definition is missing, abstract or of the wrong class.
	ErrTypeDefinitionInvalid = errors.New("addrspace: type definition invalid")

	// ErrBrowseNameDuplicated is returned when a sibling already uses the browse name.
	ErrBrowseNameDuplicated = errors.New("addrspace: browse name duplicated")

	// ErrNodeClassInvalid is returned when an operation targets a node of the wrong class.
	ErrNodeClassInvalid = errors.New("addrspace: node class invalid")

	// ErrNotReadable is returned when a client reads a value without read access.
	ErrNotReadable = errors.New("addrspace: not readable")

	// ErrNotWritable is returned when a client writes a value without write access.
	ErrNotWritable = errors.New("addrspace: not writable")

	// ErrTypeMismatch is returned when a value does not match the variable's data type.
	ErrTypeMismatch = errors.New("addrspace: type mismatch")

	// ErrOutOfRange is returned when a value is outside its legal domain.
	ErrOutOfRange = errors.New("addrspace: out of range")

	// ErrNoMatch is returned when a browse path resolves to nothing.
	ErrNoMatch = errors.New("addrspace: no match")

	// ErrReferenceExists is returned when adding a reference that is already present.
	ErrReferenceExists = errors.New("addrspace: reference exists")

	// ErrReferenceUnknown is returned when deleting a reference that is not present.
	ErrReferenceUnknown = errors.New("addrspace: reference unknown")

	// ErrMethodInvalid is returned when a method has no callback or is not a child of the object.
	ErrMethodInvalid = errors.New("addrspace: method invalid")

	// ErrArgumentsMissing is returned when a method is called with too few arguments.
	ErrArgumentsMissing = errors.New("addrspace: arguments missing")

	// ErrTooManyArguments is returned when a method is called with too many arguments.
	ErrTooManyArguments = errors.New("addrspace: too many arguments")

	// ErrBadContext is returned by typed constructors when the instance context has the wrong type.
	ErrBadContext = errors.New("addrspace: instance context has wrong type")

	// ErrCommunication is wrapped by data sources when the device cannot be reached.
	ErrCommunication = errors.New("addrspace: communication error")

	// ErrEventUnknown is returned when an event id does not exist.
	ErrEventUnknown = errors.New("addrspace: event unknown")
)

var statusCodes = []struct {
	err  error
	code string
}{
	{ErrNodeIDUnknown, "BadNodeIdUnknown"},
	{ErrNodeIDExists, "BadNodeIdExists"},
	{ErrInvalidNodeID, "BadNodeIdInvalid"},
	{ErrParentNodeIDInvalid, "BadParentNodeIdInvalid"},
	{ErrReferenceTypeInvalid, "BadReferenceTypeIdInvalid"},
	{ErrTypeDefinitionInvalid, "BadTypeDefinitionInvalid"},
	{ErrBrowseNameDuplicated, "BadBrowseNameDuplicated"},
	{ErrNodeClassInvalid, "BadNodeClassInvalid"},
	{ErrNotReadable, "BadNotReadable"},
	{ErrNotWritable, "BadNotWritable"},
	{ErrTypeMismatch, "BadTypeMismatch"},
	{ErrOutOfRange, "BadOutOfRange"},
	{ErrNoMatch, "BadNoMatch"},
	{ErrReferenceExists, "BadDuplicateReferenceNotAllowed"},
	{ErrReferenceUnknown, "BadNotFound"},
	{ErrMethodInvalid, "BadMethodInvalid"},
	{ErrArgumentsMissing, "BadArgumentsMissing"},
	{ErrTooManyArguments, "BadTooManyArguments"},
	{ErrCommunication, "BadCommunicationError"},
	{ErrEventUnknown, "BadEventIdUnknown"},
}

// StatusCode maps an engine error to its OPC UA status code name. A nil error
// is "Good"; anything unrecognised is "BadInternalError".
func StatusCode(err error) string {
	if err == nil {
		return "Good"
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return "BadInternalError"
}
