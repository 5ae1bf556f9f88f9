package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - kv table with byte size column
const currentSchemaVersion = 1

// SQLiteMedium is a Medium backed by a single SQLite file.
//
// The database is opened with:
//   - WAL mode so readers do not block the writer
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, making it the only writer in the process
type SQLiteMedium struct {
	db    *sql.DB
	quota int64 // 0 = unlimited
}

// OpenSQLite creates or opens the database at path and applies the schema.
// quota <= 0 disables the byte limit.
//
// Safe to call repeatedly on the same path.
func OpenSQLite(path string, quota int64) (*SQLiteMedium, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteMedium{db: db, quota: quota}, nil
}

// Close closes the database connection.
func (m *SQLiteMedium) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Get implements Medium.
func (m *SQLiteMedium) Get(ctx context.Context, key string) (string, error) {
	query, args, err := sq.Select("value").From("kv").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}

	var value string
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Put implements Medium. The quota check and the write share a transaction.
func (m *SQLiteMedium) Put(ctx context.Context, key, value string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %q: begin tx: %w", key, err)
	}
	defer tx.Rollback() // No-op if committed

	if m.quota > 0 {
		query, args, err := sq.Select("COALESCE(SUM(size), 0)").
			From("kv").
			Where(sq.NotEq{"key": key}).
			ToSql()
		if err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		var used int64
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&used); err != nil {
			return fmt.Errorf("put %q: usage: %w", key, err)
		}
		if used+int64(len(value)) > m.quota {
			return ErrQuotaExceeded
		}
	}

	query, args, err := sq.Insert("kv").
		Columns("key", "value", "size").
		Values(key, value, len(value)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, size = excluded.size").
		ToSql()
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %q: commit: %w", key, err)
	}
	return nil
}

// Delete implements Medium.
func (m *SQLiteMedium) Delete(ctx context.Context, key string) error {
	query, args, err := sq.Delete("kv").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys implements Medium. Prefix matching is exact and case-sensitive
// (LIKE would fold ASCII case in SQLite).
func (m *SQLiteMedium) Keys(ctx context.Context, prefix string) ([]string, error) {
	query, args, err := sq.Select("key").
		From("kv").
		Where(sq.Expr("substr(key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix)).
		OrderBy("key ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("keys %q: scan: %w", prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	return keys, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and stamps user_version.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}
