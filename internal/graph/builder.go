package graph

import (
	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
	"github.com/nerrad567/gray-logic-ua/internal/ledger"
)

// Builder wraps an engine and records every successful mutation.
type Builder struct {
	engine    addrspace.Engine
	ledger    *ledger.Ledger
	installed *addrspace.TypeTable
}

// Begin opens a builder with a fresh ledger.
func Begin(e addrspace.Engine) *Builder {
	return &Builder{engine: e, ledger: ledger.New()}
}

// Engine returns the wrapped engine for reads and attribute writes that do
// not create nodes.
func (b *Builder) Engine() addrspace.Engine {
	return b.engine
}

// Recorded returns the number of recorded creations.
func (b *Builder) Recorded() int {
	return b.ledger.Len()
}

// AddObject creates an object and records it.
func (b *Builder) AddObject(n addrspace.ObjectNode) (addrspace.NodeID, error) {
	return b.add(func() (addrspace.NodeID, error) { return b.engine.AddObjectNode(n) })
}

// AddVariable creates a variable and records it.
func (b *Builder) AddVariable(n addrspace.VariableNode) (addrspace.NodeID, error) {
	return b.add(func() (addrspace.NodeID, error) { return b.engine.AddVariableNode(n) })
}

// AddMethod creates a method and records it.
func (b *Builder) AddMethod(n addrspace.MethodNode) (addrspace.NodeID, error) {
	return b.add(func() (addrspace.NodeID, error) { return b.engine.AddMethodNode(n) })
}

// AddObjectType creates an object type and records it.
func (b *Builder) AddObjectType(n addrspace.ObjectTypeNode) (addrspace.NodeID, error) {
	return b.add(func() (addrspace.NodeID, error) { return b.engine.AddObjectTypeNode(n) })
}

// AddDataType creates a data type and records it.
func (b *Builder) AddDataType(n addrspace.DataTypeNode) (addrspace.NodeID, error) {
	return b.add(func() (addrspace.NodeID, error) { return b.engine.AddDataTypeNode(n) })
}

// AddReference adds a reference and records it.
func (b *Builder) AddReference(ref addrspace.Reference) error {
	if err := b.ledger.Err(); err != nil {
		return err
	}
	if err := b.engine.AddReference(ref); err != nil {
		return err
	}
	return b.ledger.RecordReference(ref)
}

// InstallTypes prepends types to the engine's custom type chain. The
// previous head is saved so that a rollback restores it. It can be called
// once per builder.
func (b *Builder) InstallTypes(types []addrspace.DataType) error {
	if err := b.ledger.Err(); err != nil {
		return err
	}
	old := b.engine.CustomTypes()
	if err := b.ledger.SaveTypeTable(old); err != nil {
		return err
	}
	table := &addrspace.TypeTable{Types: append([]addrspace.DataType(nil), types...), Next: old}
	b.engine.SetCustomTypes(table)
	b.installed = table
	return nil
}

func (b *Builder) add(create func() (addrspace.NodeID, error)) (addrspace.NodeID, error) {
	if err := b.ledger.Err(); err != nil {
		return addrspace.NodeID{}, err
	}
	id, err := create()
	if err != nil {
		return addrspace.NodeID{}, err
	}
	if err := b.ledger.Record(id); err != nil {
		return addrspace.NodeID{}, err
	}
	return id, nil
}

// Commit ends construction and returns the manifest of everything created.
func (b *Builder) Commit() (*Manifest, error) {
	if err := b.ledger.Err(); err != nil {
		return nil, err
	}
	m := &Manifest{entries: b.ledger.Entries(), types: b.installed}
	if err := b.ledger.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

// Rollback undoes everything recorded. It fails with ledger.ErrCommitted
// after Commit.
func (b *Builder) Rollback() error {
	return b.ledger.Rollback(b.engine)
}

// Close rolls back unless the builder was committed or rolled back already.
func (b *Builder) Close() error {
	if b.ledger.State() != ledger.Open {
		return nil
	}
	return b.Rollback()
}

// State returns the state of the underlying ledger.
func (b *Builder) State() ledger.State {
	return b.ledger.State()
}
