// Package addrspace provides the in-memory address space that capability
// modules build their object graphs in.
//
// The address space follows the OPC UA information model closely enough for
// the rest of the service: nodes are identified by NodeID, organised through
// typed references, and instantiated from object types whose Mandatory
// children are copied onto every new instance. Namespace 0 is seeded with the
// standard folders, reference types, data types and BaseEventType.
//
// # Concurrency
//
// A Space is NOT safe for concurrent use. It is built single-threaded during
// module construction and afterwards owned by the server goroutine (see
// package server). Code running on any other goroutine must hand engine work
// to the server through a queue.
//
// # Live values
//
// Variables either hold a static value or are backed by a DataSource. Client
// reads and writes (Read, Write) enforce access levels and route through the
// data source; module-side writes (WriteValue, WriteObjectProperty) do not
// check access levels.
//
// # Type constructors
//
// SetTypeConstructor registers a callback that runs whenever an instance of
// an object type is created. Use TypedConstructor to receive the per-instance
// context with a checked type:
//
//	space.SetTypeConstructor(portType, addrspace.TypedConstructor(
//	    func(e addrspace.Engine, id addrspace.NodeID, p Port) error {
//	        return e.WriteObjectProperty(id, addrspace.QualifiedName{Namespace: ns, Name: "Name"}, p.Name)
//	    }))
//
// # Events
//
// CreateEvent allocates an event of a BaseEventType subtype, the caller fills
// its fields with WriteObjectProperty and TriggerEvent delivers it to every
// registered EventSink.
package addrspace
