// Package ioports publishes the device's physical I/O ports in the address
// space.
//
// Construction fetches the port list through the port management API and
// creates one IOPortObjType instance per port below the "I/O Ports" object.
// The type's constructor writes the initial property values, applies access
// rights from the port's capability flags and binds the live properties
// (Name, Usage, Direction, NormalState, State) to a mutex-guarded cache.
//
// Client writes go straight to the device; the cache follows when the device
// echoes the change as a state or configuration event:
//
//	client write ──▶ setPorts ──▶ device
//	                                │
//	device event ──▶ hub ──▶ handleState / handleConfig ──▶ cache
//	                                │
//	                                └──▶ Post ──▶ IOPStateEventType on the port
//
// Every cache transition is written to the state history.
package ioports
