// Package eventbridge connects device event notifications to capability
// modules.
//
// # Model
//
// A device event has a hierarchical topic (topic0, topic1, topic2, ...) and a
// key/value payload. Modules subscribe with a Filter over topic levels and
// payload keys through a Service. The in-process Hub is the Service used by
// the server; MQTTFeed republishes device events received over MQTT
// (axis/event/<topic0>/<topic1>/...) into the Hub.
//
// # Threading
//
// Each Hub subscription is served by its own notifier goroutine, so a
// callback never runs concurrently with itself but does run concurrently
// with the server goroutine and with other subscriptions. Unsubscribe blocks
// until an in-flight callback returns; queued events that were not delivered
// yet are released and discarded.
//
// Callbacks must not touch the address space directly. Engine work (event
// triggering, access level changes) is handed to the server goroutine
// through a Poster.
//
// # Release
//
// Every delivered *Event must be released exactly once. Bridge.Subscribe
// wraps handlers so that release happens on every return path, including
// parse errors and panics.
package eventbridge
