package addrspace

// DataType describes a custom data type known to the engine. Enumerations
// list their members in value order, starting at zero.
type DataType struct {
	TypeID  NodeID
	Name    string
	Members []string
}

// IsEnum reports whether the type is an enumeration.
func (d DataType) IsEnum() bool {
	return len(d.Members) > 0
}

// TypeTable is one link in the chain of custom data type arrays. Modules
// prepend their own table and keep the previous head in Next.
type TypeTable struct {
	Types []DataType
	Next  *TypeTable
}

// Lookup finds a type by id anywhere in the chain.
func (t *TypeTable) Lookup(id NodeID) (DataType, bool) {
	for cur := t; cur != nil; cur = cur.Next {
		for _, dt := range cur.Types {
			if dt.TypeID == id {
				return dt, true
			}
		}
	}
	return DataType{}, false
}

// Len returns the number of types in the whole chain.
func (t *TypeTable) Len() int {
	n := 0
	for cur := t; cur != nil; cur = cur.Next {
		n += len(cur.Types)
	}
	return n
}

// CustomTypes returns the current head of the custom type chain.
func (s *Space) CustomTypes() *TypeTable {
	return s.customTypes
}

// SetCustomTypes replaces the head of the custom type chain.
func (s *Space) SetCustomTypes(t *TypeTable) {
	s.customTypes = t
}
