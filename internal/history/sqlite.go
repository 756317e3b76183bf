package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timeLayout is fixed-width so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// SQLiteStore implements Recorder and Reader on the state_history table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite history store.
//
// Parameters:
//   - db: Open SQLite connection with the state_history migration applied
//
// Returns:
//   - *SQLiteStore: Store ready for use
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// RecordTransition inserts a new transition row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - t: The transition; Module, Instance and Property are required
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) RecordTransition(ctx context.Context, t Transition) error {
	if t.Module == "" || t.Instance == "" || t.Property == "" {
		return fmt.Errorf("transition requires module, instance and property")
	}
	if t.Source == "" {
		t.Source = SourceEvent
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state_history (module, instance, property, value, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Module, t.Instance, t.Property, t.Value, t.Source,
		t.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// GetHistory returns recent transitions, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: Optional module/instance filter and a limit (default 50, max 200)
//
// Returns:
//   - []Entry: Matching transitions (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (s *SQLiteStore) GetHistory(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var conditions []string
	var args []any
	if q.Module != "" {
		conditions = append(conditions, "module = ?")
		args = append(args, q.Module)
		if q.Instance != "" {
			conditions = append(conditions, "instance = ?")
			args = append(args, q.Instance)
		}
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, module, instance, property, value, source, created_at
		 FROM state_history %s
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Module, &e.Instance, &e.Property, &e.Value, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		at, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		e.At = at

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// Prune deletes transitions older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention window; must be positive
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
