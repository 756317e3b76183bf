// Package plugin discovers, loads and runs capability modules.
//
// A capability module exposes one device API as a subtree of the address
// space. Every module provides three entry points (Construct, Destruct and
// Name) and is found by a Loader:
//
//   - BuiltinLoader: a compile-time registration table of Go modules
//   - lua.Loader: Lua scripts in a directory (internal/plugin/lua)
//
// Both loaders use the "<prefix><name>" naming convention; the suffix after
// the prefix is the module's logical name.
//
// # Lifecycle
//
//	Discovered ──▶ Loaded ──▶ Active ──▶ Unloaded
//	     │            │
//	     └────────────┴──────────────────▶ Unloaded (rejected / construct failed)
//
// Discovery, loading and activation run once, sequentially, before the
// server goroutine starts. DeactivateAll runs once, after the server
// goroutine has been stopped and joined. Every transition is written to the
// module audit log and reported to the metrics observer.
//
// # Construction guard
//
// Modules build their subtree through a graph.Builder and end construction
// with Finish, which rolls the builder back on error:
//
//	func (m *Module) Construct(ctx context.Context, h plugin.Host) (err error) {
//	    b := graph.Begin(h.Engine)
//	    defer func() { err = plugin.Finish(b, err) }()
//	    ...
//	    m.manifest, err = b.Commit()
//	    return err
//	}
//
// A failed rollback is reported as ErrRollbackFailed and logged at critical
// level by the registry.
package plugin
