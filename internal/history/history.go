// Package history records live state transitions observed by capability
// modules.
//
// A transition is one property of one capability instance changing value,
// either because a client wrote it or because the device reported it
// through an event. Transitions are stored in the state_history SQLite
// table and, when InfluxDB is enabled, mirrored as state_transition points.
package history

import (
	"context"
	"time"
)

// Transition sources.
const (
	SourceEvent     = "event"
	SourceWrite     = "write"
	SourceInventory = "inventory"
)

// Transition is a single property change on a capability instance.
type Transition struct {
	// Module is the logical module name (ioports, vinput).
	Module string `json:"module"`

	// Instance identifies the capability instance within the module,
	// for example the port index.
	Instance string `json:"instance"`

	// Property is the browse name of the changed property.
	Property string `json:"property"`

	// Value is the new value rendered as text.
	Value string `json:"value"`

	// Source identifies how the change was observed.
	Source string `json:"source"`

	// At is when the change was observed. Zero means now.
	At time.Time `json:"at"`
}

// Entry is a stored transition.
type Entry struct {
	ID int64 `json:"id"`
	Transition
}

// Query selects stored transitions.
type Query struct {
	Module   string // optional
	Instance string // optional, only meaningful with Module
	Limit    int    // default 50, max 200
}

// Recorder accepts state transitions.
//
// Implementations must be safe for concurrent use: modules record from
// notifier goroutines and from the server goroutine.
type Recorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// Reader returns stored transitions newest first.
type Reader interface {
	GetHistory(ctx context.Context, q Query) ([]Entry, error)
}

// Nop discards every transition.
type Nop struct{}

// RecordTransition implements Recorder.
func (Nop) RecordTransition(context.Context, Transition) error { return nil }
