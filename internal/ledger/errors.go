package ledger

import "errors"

var (
	// ErrCommitted is returned when a committed ledger is used again.
	ErrCommitted = errors.New("ledger: already committed")

	// ErrRolledBack is returned when a rolled back ledger is used again.
	ErrRolledBack = errors.New("ledger: already rolled back")

	// ErrTypeTableSaved is returned when SaveTypeTable is called twice.
	ErrTypeTableSaved = errors.New("ledger: type table already saved")
)
