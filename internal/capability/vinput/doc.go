// Package vinput exposes the device's virtual inputs.
//
// The VirtualInputs object carries one Boolean variable per input
// (VirtualInput-1 .. VirtualInput-64) and the Activate and Deactivate
// methods. Reads are served from a cache; writes and method calls go to the
// virtual input API and update the cache as soon as the device reports that
// the state changed. Device/IO/VirtualInput events keep the cache in step
// with changes made by other clients.
package vinput
