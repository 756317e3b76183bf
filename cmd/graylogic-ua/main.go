// Gray Logic UA - capability module host for an OPC UA style address space.
//
// This is the main entry point. The binary loads capability modules that
// publish device features (I/O ports, virtual inputs, device information,
// events) as browsable nodes, and serves them over the HTTP API.
//
// Subcommands:
//
//	serve     run the server until interrupted
//	modules   list the modules that would be loaded
//	param     read or change persistent parameters
//	token     issue an API bearer token
//	db        show or roll back schema migrations
//	version   print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Embedded SQL migrations register themselves with the database package.
	_ "github.com/nerrad567/gray-logic-ua/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C and SIGTERM so serve can shut down in order
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
