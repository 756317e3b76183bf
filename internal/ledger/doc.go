// Package ledger records what a module creates in the address space while it
// builds its subtree, so that a failed construction can be undone.
//
// A Ledger is consumed exactly once: Rollback deletes everything recorded,
// newest first, after restoring the custom type table saved at the start of
// construction; Commit discards the record without touching the engine. Any
// further use returns ErrCommitted or ErrRolledBack.
//
// Rollback is best-effort. A failed delete does not stop the remaining
// deletes; every failure is joined into the returned error. Nodes that are
// already gone (because deleting their parent removed them) count as deleted.
//
// Ledgers are only used during module construction, before the server
// starts serving clients, and are not safe for concurrent use.
package ledger
