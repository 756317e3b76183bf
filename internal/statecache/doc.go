// Package statecache holds the live device state a capability module mirrors
// into the address space.
//
// A Cache is a map from a device-assigned index to a state value guarded by a
// single mutex. Values are copied in and out, so callers never hold a
// reference into the map after a method returns. Use value types without
// shared pointers or slices for V.
//
// Data-source callbacks on the server goroutine read from the cache; client
// write handlers and event bridge callbacks on notifier goroutines write to
// it. Never call out to the engine, the device or a database while inside
// Update: the function runs with the lock held.
package statecache
