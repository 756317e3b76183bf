// Package server owns the goroutine that serves the address space.
//
// The engine is not safe for concurrent use. Once Start has been called,
// only the server goroutine touches it:
//
//   - client reads, writes, calls and browses run through Do and wait for
//     their result;
//   - notifier goroutines hand off engine work through Post, a non-blocking
//     send on a bounded queue that fails with ErrQueueFull or ErrStopped.
//
// Triggered events are delivered to the sinks registered with Subscribe,
// on the server goroutine.
//
// Shutdown: Stop refuses new work, signals the loop and joins it. Work still
// queued is discarded.
package server
