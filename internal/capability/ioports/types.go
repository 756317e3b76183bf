package ioports

import (
	"fmt"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
)

const (
	// Namespace is the URI of the module's namespace.
	Namespace = "http://www.axis.com/OpcUA/IOPorts/"

	// ModuleName is the self-reported name.
	ModuleName = "opc-ioports-plugin"

	// CredentialsDomain selects the device service account.
	CredentialsDomain = "vapix-ioports-user"

	// LogicalName is the registration suffix after the module prefix.
	LogicalName = "ioports"
)

// Numeric identifiers within Namespace.
const (
	idPortObjType          = 1004
	idEventType            = 1005
	idStateEventType       = 1008
	idDirectionEventType   = 1011
	idNormalStateEventType = 1014
	idDirectionType        = 3004
	idStateType            = 3005
	idPorts                = 5006
	idPropConfigurable     = 6007
	idPropDirection        = 6008
	idPropDisabled         = 6009
	idPropIndex            = 6010
	idPropName             = 6011
	idPropNormalState      = 6012
	idPropState            = 6013
	idPropUsage            = 6014
	idDirectionEnumStrings = 6026
	idStateEnumStrings     = 6042
)

// Property browse names of IOPortObjType.
const (
	PropConfigurable = "Configurable"
	PropDirection    = "Direction"
	PropDisabled     = "Disabled"
	PropIndex        = "Index"
	PropName         = "Name"
	PropNormalState  = "NormalState"
	PropState        = "State"
	PropUsage        = "Usage"
)

const (
	rootName   = "I/O Ports"
	labelFmt   = "I/O Port %d"
	evSeverity = 100
)

// Direction is the IOPortDirectionType enumeration.
type Direction int32

// Port directions.
const (
	Input Direction = iota
	Output
)

var directionNames = []string{"Input", "Output"}

func (d Direction) String() string {
	if d >= 0 && int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", int32(d))
}

// State is the IOPortStateType enumeration.
type State int32

// Port states.
const (
	Open State = iota
	Closed
)

var stateNames = []string{"Open", "Closed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Toggle returns the opposite state.
func (s State) Toggle() State {
	if s == Open {
		return Closed
	}
	return Open
}

// NextState is the state a port takes when the device reports it active or
// inactive: an active port leaves its normal state.
func NextState(active bool, normal State) State {
	if active {
		return normal.Toggle()
	}
	return normal
}

// Port is the cached state of one I/O port, keyed by its device index.
type Port struct {
	Configurable bool
	Direction    Direction
	Disabled     bool
	Name         string
	Usage        string
	NormalState  State
	State        State
}

// value returns the property's value in its engine representation.
func (p Port) value(prop string, index int) any {
	switch prop {
	case PropConfigurable:
		return p.Configurable
	case PropDirection:
		return int32(p.Direction)
	case PropDisabled:
		return p.Disabled
	case PropIndex:
		return int32(index)
	case PropName:
		return p.Name
	case PropNormalState:
		return int32(p.NormalState)
	case PropState:
		return int32(p.State)
	case PropUsage:
		return p.Usage
	}
	return nil
}

// property declares one Mandatory property of IOPortObjType.
type property struct {
	name     string
	id       uint32
	dataType func(ns uint16) addrspace.NodeID
	writable bool
	live     bool
}

func std(id addrspace.NodeID) func(uint16) addrspace.NodeID {
	return func(uint16) addrspace.NodeID { return id }
}

func local(id uint32) func(uint16) addrspace.NodeID {
	return func(ns uint16) addrspace.NodeID { return addrspace.NumericID(ns, id) }
}

// properties lists the object type's properties in declaration order. live
// properties are backed by the state cache.
var properties = []property{
	{PropConfigurable, idPropConfigurable, std(addrspace.BooleanType), false, false},
	{PropDirection, idPropDirection, local(idDirectionType), true, true},
	{PropDisabled, idPropDisabled, std(addrspace.BooleanType), false, false},
	{PropIndex, idPropIndex, std(addrspace.Int32Type), false, false},
	{PropName, idPropName, std(addrspace.StringType), true, true},
	{PropNormalState, idPropNormalState, local(idStateType), true, true},
	{PropState, idPropState, local(idStateType), true, true},
	{PropUsage, idPropUsage, std(addrspace.StringType), true, true},
}

// AccessFor returns the access level of prop on an instance of p. A disabled
// port is read-only throughout. Direction is writable only on configurable
// ports and State only on outputs.
func AccessFor(prop string, p Port) addrspace.AccessLevel {
	if p.Disabled {
		return addrspace.AccessRead
	}
	switch prop {
	case PropDirection:
		if p.Configurable {
			return addrspace.AccessReadWrite
		}
		return addrspace.AccessRead
	case PropState:
		return stateAccess(p.Direction)
	}
	for _, decl := range properties {
		if decl.name == prop && decl.writable {
			return addrspace.AccessReadWrite
		}
	}
	return addrspace.AccessRead
}

func stateAccess(d Direction) addrspace.AccessLevel {
	if d == Output {
		return addrspace.AccessReadWrite
	}
	return addrspace.AccessRead
}
