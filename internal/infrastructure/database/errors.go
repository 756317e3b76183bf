package database

import "errors"

var (
	// ErrBadMigrationSet indicates migration files that cannot form an
	// ordered history: an orphan .down.sql or a version used twice.
	ErrBadMigrationSet = errors.New("database: invalid migration set")

	// ErrNoDownMigration indicates a rollback of a version without .down.sql.
	ErrNoDownMigration = errors.New("database: migration has no down script")

	// ErrUnknownMigration indicates an applied version with no file.
	ErrUnknownMigration = errors.New("database: applied migration not found")

	// ErrIntegrity indicates a failed SQLite integrity check.
	ErrIntegrity = errors.New("database: integrity check failed")
)
