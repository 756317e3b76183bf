package ledger

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-ua/internal/addrspace"
)

// State is the lifecycle state of a Ledger.
type State int

const (
	// Open ledgers accept records.
	Open State = iota
	// Committed ledgers were discarded without rollback.
	Committed
	// RolledBack ledgers have undone their records.
	RolledBack
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Mutator is the part of the engine a rollback needs.
type Mutator interface {
	DeleteNode(id addrspace.NodeID, deleteReferences bool) error
	DeleteReference(ref addrspace.Reference) error
	SetCustomTypes(t *addrspace.TypeTable)
}

// Entry is one recorded creation: either a node or a reference.
type Entry struct {
	Node      addrspace.NodeID
	Reference *addrspace.Reference
}

// IsReference reports whether the entry records a reference.
func (e Entry) IsReference() bool {
	return e.Reference != nil
}

// Ledger records creations in order. See the package documentation.
type Ledger struct {
	entries    []Entry
	savedTypes *addrspace.TypeTable
	saved      bool
	state      State
}

// New returns an open, empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Err returns nil while the ledger is open, otherwise the error describing
// its terminal state.
func (l *Ledger) Err() error {
	switch l.state {
	case Committed:
		return ErrCommitted
	case RolledBack:
		return ErrRolledBack
	}
	return nil
}

// Record appends a created node.
func (l *Ledger) Record(id addrspace.NodeID) error {
	if err := l.Err(); err != nil {
		return err
	}
	l.entries = append(l.entries, Entry{Node: id})
	return nil
}

// RecordReference appends a created reference.
func (l *Ledger) RecordReference(ref addrspace.Reference) error {
	if err := l.Err(); err != nil {
		return err
	}
	r := ref
	l.entries = append(l.entries, Entry{Reference: &r})
	return nil
}

// SaveTypeTable remembers the type table to restore on rollback. It may be
// called at most once.
func (l *Ledger) SaveTypeTable(old *addrspace.TypeTable) error {
	if err := l.Err(); err != nil {
		return err
	}
	if l.saved {
		return ErrTypeTableSaved
	}
	l.savedTypes = old
	l.saved = true
	return nil
}

// SavedTypeTable returns the saved type table and whether one was saved.
func (l *Ledger) SavedTypeTable() (*addrspace.TypeTable, bool) {
	return l.savedTypes, l.saved
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns the recorded entries, most recent first.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// State returns the lifecycle state.
func (l *Ledger) State() State {
	return l.state
}

// Rollback restores the saved type table and then deletes every recorded
// entry, most recent first. The ledger is terminal afterwards even when some
// deletes failed.
func (l *Ledger) Rollback(m Mutator) error {
	if err := l.Err(); err != nil {
		return err
	}
	l.state = RolledBack
	err := Undo(m, l.Entries(), l.savedTypes, l.saved)
	l.entries = nil
	l.savedTypes = nil
	return err
}

// Commit discards the record. The engine is not touched.
func (l *Ledger) Commit() error {
	if err := l.Err(); err != nil {
		return err
	}
	l.state = Committed
	l.entries = nil
	l.savedTypes = nil
	return nil
}

// Undo removes entries (given most recent first) from m, restoring types
// first when restoreTypes is set. Failures are collected, not fatal.
func Undo(m Mutator, entries []Entry, types *addrspace.TypeTable, restoreTypes bool) error {
	if restoreTypes {
		m.SetCustomTypes(types)
	}

	var errs []error
	for _, e := range entries {
		if e.IsReference() {
			if err := m.DeleteReference(*e.Reference); err != nil && !gone(err) {
				errs = append(errs, fmt.Errorf("deleting reference %s -> %s: %w", e.Reference.Source, e.Reference.Target, err))
			}
			continue
		}
		if err := m.DeleteNode(e.Node, true); err != nil && !gone(err) {
			errs = append(errs, fmt.Errorf("deleting node %s: %w", e.Node, err))
		}
	}
	return errors.Join(errs...)
}

// gone reports whether a delete failed only because the target no longer exists.
func gone(err error) bool {
	return errors.Is(err, addrspace.ErrNodeIDUnknown) || errors.Is(err, addrspace.ErrReferenceUnknown)
}
