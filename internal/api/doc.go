// Package api implements the HTTP REST API and WebSocket event stream.
//
// This package provides:
//   - Read-only endpoints for node attributes, references and values
//   - Operator endpoints for writing variables and calling methods
//   - The module list, state history and module audit trail
//   - A WebSocket hub relaying triggered events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Every address space access goes through the server's handoff, so handlers
// never touch the engine directly. Node ids travel in the path using the
// "ns=1;i=42" notation and must be URL-escaped by the client.
//
// # Security
//
// Reads are open. PUT on a value and POST on a method need a bearer token
// whose role grants node:write or method:call respectively.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
