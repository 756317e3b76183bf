package graph

import (
	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/ledger"
)

// TypeMutator is the engine surface Teardown needs.
type TypeMutator interface {
	ledger.Mutator
	CustomTypes() *addrspace.TypeTable
}

// Manifest lists what a committed builder created.
type Manifest struct {
	entries []ledger.Entry
	types   *addrspace.TypeTable
}

// Nodes returns the created node ids, most recent first.
func (m *Manifest) Nodes() []addrspace.NodeID {
	if m == nil {
		return nil
	}
	var out []addrspace.NodeID
	for _, e := range m.entries {
		if !e.IsReference() {
			out = append(out, e.Node)
		}
	}
	return out
}

// Teardown removes the subtree described by the manifest and unlinks its
// type table from the engine's chain. Other modules' tables stay in place.
// It must only run while no client traffic is being served. A manifest can
// be torn down once; later calls do nothing.
func (m *Manifest) Teardown(e TypeMutator) error {
	if m == nil {
		return nil
	}
	err := ledger.Undo(e, m.entries, nil, false)
	if m.types != nil {
		e.SetCustomTypes(unlink(e.CustomTypes(), m.types))
	}
	m.entries = nil
	m.types = nil
	return err
}

func unlink(head, t *addrspace.TypeTable) *addrspace.TypeTable {
	if head == t {
		return t.Next
	}
	for cur := head; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			break
		}
	}
	return head
}
