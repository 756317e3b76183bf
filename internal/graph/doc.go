// Package graph is the mutation facade capability modules build their
// subtrees through.
//
// Every Add* method forwards to the engine and, on success only, records the
// new node or reference in the builder's ledger. A module opens a Builder,
// defers Close, and commits once its whole subtree is in place:
//
//	b := graph.Begin(engine)
//	defer func() {
//	    if err := b.Close(); err != nil {
//	        log.Critical("rollback failed", "error", err)
//	    }
//	}()
//	root, err := b.AddObject(addrspace.ObjectNode{...})
//	if err != nil {
//	    return err // Close rolls everything back
//	}
//	manifest, err := b.Commit()
//
// Close rolls back unless Commit succeeded, so a construction function can
// return early on any error without tracking what it already created.
//
// Commit returns a Manifest. Modules keep it and call Teardown from their
// destructor, after the server has stopped, to remove their subtree again.
package graph
