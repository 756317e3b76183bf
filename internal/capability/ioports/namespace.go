package ioports

import (
	"fmt"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/graph"
)

const enumStrings = "EnumStrings"

// installTypes builds the module's type system and the root object: the two
// enumerations, IOPortObjType with its Mandatory properties, the event type
// hierarchy and the "I/O Ports" folder.
func installTypes(b *graph.Builder, ns uint16) error {
	id := func(n uint32) addrspace.NodeID { return addrspace.NumericID(ns, n) }
	qn := func(name string) addrspace.QualifiedName { return addrspace.QualifiedName{Namespace: ns, Name: name} }

	if err := b.InstallTypes([]addrspace.DataType{
		{TypeID: id(idDirectionType), Name: "IOPortDirectionType", Members: directionNames},
		{TypeID: id(idStateType), Name: "IOPortStateType", Members: stateNames},
	}); err != nil {
		return err
	}

	enums := []struct {
		typeID, stringsID uint32
		name              string
		members           []string
	}{
		{idStateType, idStateEnumStrings, "IOPortStateType", stateNames},
		{idDirectionType, idDirectionEnumStrings, "IOPortDirectionType", directionNames},
	}
	for _, en := range enums {
		if _, err := b.AddDataType(addrspace.DataTypeNode{
			RequestedID: id(en.typeID),
			Parent:      addrspace.EnumerationType,
			BrowseName:  qn(en.name),
		}); err != nil {
			return fmt.Errorf("adding %s: %w", en.name, err)
		}
		texts := make([]addrspace.LocalizedText, len(en.members))
		for i, m := range en.members {
			texts[i] = addrspace.LocalizedText{Text: m}
		}
		if _, err := b.AddVariable(addrspace.VariableNode{
			RequestedID:    id(en.stringsID),
			Parent:         id(en.typeID),
			ReferenceType:  addrspace.HasProperty,
			BrowseName:     addrspace.QualifiedName{Name: enumStrings},
			TypeDefinition: addrspace.PropertyType,
			DataType:       addrspace.LocalizedTextType,
			Value:          texts,
		}); err != nil {
			return fmt.Errorf("adding %s enum strings: %w", en.name, err)
		}
	}

	if _, err := b.AddObjectType(addrspace.ObjectTypeNode{
		RequestedID: id(idPortObjType),
		BrowseName:  qn("IOPortObjType"),
	}); err != nil {
		return fmt.Errorf("adding IOPortObjType: %w", err)
	}
	for _, p := range properties {
		access := addrspace.AccessRead
		if p.writable {
			access = addrspace.AccessReadWrite
		}
		if _, err := b.AddVariable(addrspace.VariableNode{
			RequestedID:    id(p.id),
			Parent:         id(idPortObjType),
			ReferenceType:  addrspace.HasProperty,
			BrowseName:     qn(p.name),
			TypeDefinition: addrspace.PropertyType,
			DataType:       p.dataType(ns),
			AccessLevel:    access,
			ModellingRule:  addrspace.ModellingRuleMandatory,
		}); err != nil {
			return fmt.Errorf("adding property %s: %w", p.name, err)
		}
	}

	if _, err := b.AddObjectType(addrspace.ObjectTypeNode{
		RequestedID: id(idEventType),
		Parent:      addrspace.BaseEventType,
		BrowseName:  qn("IOPEventType"),
		Abstract:    true,
	}); err != nil {
		return fmt.Errorf("adding IOPEventType: %w", err)
	}
	for _, ev := range []struct {
		id   uint32
		name string
	}{
		{idDirectionEventType, "IOPDirectionEventType"},
		{idNormalStateEventType, "IOPNormalStateEventType"},
		{idStateEventType, "IOPStateEventType"},
	} {
		if _, err := b.AddObjectType(addrspace.ObjectTypeNode{
			RequestedID: id(ev.id),
			Parent:      id(idEventType),
			BrowseName:  qn(ev.name),
		}); err != nil {
			return fmt.Errorf("adding %s: %w", ev.name, err)
		}
	}

	if _, err := b.AddObject(addrspace.ObjectNode{
		RequestedID:   id(idPorts),
		Parent:        addrspace.ObjectsFolder,
		ReferenceType: addrspace.Organizes,
		BrowseName:    qn(rootName),
		Description:   rootName,
		EventNotifier: addrspace.SubscribeToEvents,
	}); err != nil {
		return fmt.Errorf("adding %s: %w", rootName, err)
	}
	return nil
}
