package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteExecutor runs migrations and maintains schema_migrations.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates an executor on db.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations if needed.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		execution_time_ms INTEGER NOT NULL
	)`
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return NewMigrationError("", "", "create schema_migrations table", err)
	}
	return nil
}

// Applied returns the recorded migrations keyed by version.
func (e *SQLiteExecutor) Applied(ctx context.Context) (map[string]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, NewMigrationError("", "", "list applied versions", err)
	}
	defer rows.Close()

	applied := make(map[string]AppliedMigration)
	for rows.Next() {
		var (
			a         AppliedMigration
			appliedMs int64
			execMs    int64
		)
		if err := rows.Scan(&a.Version, &appliedMs, &a.Checksum, &execMs); err != nil {
			return nil, NewMigrationError("", "", "scan applied version", err)
		}
		a.AppliedAt = time.UnixMilli(appliedMs).UTC()
		a.ExecutionTime = time.Duration(execMs) * time.Millisecond
		applied[a.Version] = a
	}
	if err := rows.Err(); err != nil {
		return nil, NewMigrationError("", "", "iterate applied versions", err)
	}
	return applied, nil
}

// ExecuteMigration runs every statement of m and records it, all in one
// transaction.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, m Migration) (err error) {
	statements := parseSQL(m.SQL)
	if len(statements) == 0 {
		return NewMigrationError(m.Version, m.FilePath, "parse SQL", errors.New("no SQL statements found"))
	}

	started := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewMigrationError(m.Version, m.FilePath, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return NewMigrationError(m.Version, m.FilePath, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	elapsed := e.now().Sub(started)
	if _, execErr := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		m.Version, e.now().UTC().UnixMilli(), m.Checksum, elapsed.Milliseconds(),
	); execErr != nil {
		return NewMigrationError(m.Version, m.FilePath, "record migration", execErr)
	}

	if err = tx.Commit(); err != nil {
		return NewMigrationError(m.Version, m.FilePath, "commit transaction", err)
	}
	return nil
}
