package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"time"
)

// Migrations holds the migration scripts at its root. The migrations
// package sets it from an embed.FS; a nil source means no migrations.
//
// File names follow YYYYMMDD_HHMMSS_description.up.sql, with an optional
// matching .down.sql.
var Migrations fs.FS

var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// MigrationStatus reports whether a known migration has been applied.
type MigrationStatus struct {
	Version   string
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// ReadMigrations loads the migration scripts in fsys, oldest first. Files
// that do not match the naming scheme are ignored.
//
// Parameters:
//   - fsys: Filesystem with the scripts at its root; nil yields none
//
// Returns:
//   - []Migration: Migrations sorted by version
//   - error: ErrBadMigrationSet for an orphan down script or a duplicate
//     version, or a read error
func ReadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	downs := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, name, direction := m[1], m[2], m[3]

		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		if direction == "down" {
			downs[version] = string(body)
			continue
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("%w: version %s used by %s and %s", ErrBadMigrationSet, version, prev.Name, name)
		}
		byVersion[version] = &Migration{Version: version, Name: name, Up: string(body)}
	}

	for version, body := range downs {
		m, ok := byVersion[version]
		if !ok {
			return nil, fmt.Errorf("%w: down script %s has no up script", ErrBadMigrationSet, version)
		}
		m.Down = body
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every pending migration from Migrations in version order.
//
// Each migration runs in its own transaction. If one fails, the earlier
// ones stay committed and a later Migrate resumes at the failed one.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - int: Number of migrations applied by this call
//   - error: If loading or applying a migration fails
func (db *DB) Migrate(ctx context.Context) (int, error) {
	migrations, err := ReadMigrations(Migrations)
	if err != nil {
		return 0, fmt.Errorf("loading migrations: %w", err)
	}
	if err := db.ensureLedger(ctx); err != nil {
		return 0, err
	}
	applied, err := db.appliedAt(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range migrations {
		if _, done := applied[m.Version]; done {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return n, fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
		n++
	}
	return n, nil
}

// Rollback reverts the most recently applied migration.
//
// Returns:
//   - string: Version reverted, empty when nothing was applied
//   - error: ErrUnknownMigration, ErrNoDownMigration or a SQL error
func (db *DB) Rollback(ctx context.Context) (string, error) {
	migrations, err := ReadMigrations(Migrations)
	if err != nil {
		return "", fmt.Errorf("loading migrations: %w", err)
	}
	if err := db.ensureLedger(ctx); err != nil {
		return "", err
	}

	var latest string
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading latest migration: %w", err)
	}

	idx := sort.Search(len(migrations), func(i int) bool { return migrations[i].Version >= latest })
	if idx == len(migrations) || migrations[idx].Version != latest {
		return "", fmt.Errorf("%w: %s", ErrUnknownMigration, latest)
	}
	m := migrations[idx]
	if m.Down == "" {
		return "", fmt.Errorf("%w: %s (%s)", ErrNoDownMigration, m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return fmt.Errorf("executing down script: %w", err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("rolling back %s (%s): %w", m.Version, m.Name, err)
	}
	return m.Version, nil
}

// Status lists every known migration with its applied state, oldest first.
func (db *DB) Status(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := ReadMigrations(Migrations)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	if err := db.ensureLedger(ctx); err != nil {
		return nil, err
	}
	applied, err := db.appliedAt(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		at, ok := applied[m.Version]
		out = append(out, MigrationStatus{Version: m.Version, Name: m.Name, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

func (db *DB) ensureLedger(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

func (db *DB) appliedAt(ctx context.Context) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var version, at string
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		t, _ := time.Parse(time.RFC3339, at) //nolint:errcheck // Written by apply
		out[version] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return out, nil
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			return fmt.Errorf("executing up script: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
		)
		return err
	})
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
