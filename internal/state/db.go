// internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the bot's embedded database. One file holds the pending queue, the
// channel cooldowns, the published-post log and the user directory.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between our own goroutines.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{db: sqlDB, path: path}
	if err := d.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the database connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pending_submission (
			id           TEXT NOT NULL PRIMARY KEY,
			submitter_id INTEGER NOT NULL,
			payload      TEXT NOT NULL,
			created_ts   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_submission_created ON pending_submission(created_ts)`,
		`CREATE TABLE IF NOT EXISTS channel_cooldown (
			destination     TEXT NOT NULL PRIMARY KEY,
			last_publish_ns INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS published_post (
			destination    TEXT NOT NULL,
			message_id     INTEGER NOT NULL,
			submission_id  TEXT NOT NULL,
			submitter_id   INTEGER NOT NULL,
			submitter_name TEXT NOT NULL DEFAULT '',
			message_ids    TEXT NOT NULL DEFAULT '[]',
			published_ts   INTEGER NOT NULL,
			PRIMARY KEY (destination, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user (
			id         INTEGER NOT NULL PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			is_admin   INTEGER NOT NULL DEFAULT 0,
			is_banned  INTEGER NOT NULL DEFAULT 0,
			created_ts INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	// Databases created before albums were tracked lack message_ids.
	return d.addColumn(ctx, "published_post", "message_ids", `TEXT NOT NULL DEFAULT '[]'`)
}

func (d *DB) addColumn(ctx context.Context, table, column, decl string) error {
	rows, err := d.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	rows.Close()

	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
