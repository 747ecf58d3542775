// Package ticketstore is the embedded SQLite-backed ticket store: schema
// migrations, CRUD, lock acquisition and the atomic next-ticket claim
// that concurrent dispatch workers rely on.
package ticketstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the shared SQLite handle used by the ticket store, event log
// and throttler/rate-limiter ledgers — all co-located in one file the
// way the teacher keeps its kanban state in a single database.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates the database directory if needed, opens the SQLite file
// with WAL journalling and foreign keys enabled, and runs migrations.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ticketstore: create dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticketstore: open: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY under WAL; readers
	// can still share the pool.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ticketstore: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the raw *sql.DB for components (event log, throttler,
// rate limiter) that co-locate their own tables in this database.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Vacuum reclaims free space; part of the repair CLI path.
func (db *DB) Vacuum() error {
	_, err := db.conn.Exec("VACUUM")
	return err
}

// CheckpointFull forces a full WAL checkpoint; part of the repair CLI path.
func (db *DB) CheckpointFull() error {
	_, err := db.conn.Exec("PRAGMA wal_checkpoint(FULL)")
	return err
}

// SizeBytes reports the on-disk size of the database file, used by the
// background health check.
func (db *DB) SizeBytes() (int64, error) {
	info, err := os.Stat(db.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

var migrations = []string{
	// 1: tickets
	`CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		duplicate_guard TEXT NOT NULL UNIQUE,
		priority TEXT NOT NULL CHECK (priority IN ('P0','P1','P2','P3','P4')),
		error_type TEXT NOT NULL,
		message TEXT NOT NULL,
		source TEXT,
		run_label TEXT,
		correlation_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		format_version INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL CHECK (status IN ('Open','In Progress','Completed')) DEFAULT 'Open',
		documented INTEGER NOT NULL DEFAULT 0,
		functioning INTEGER NOT NULL DEFAULT 0,
		tested INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		locked_by TEXT,
		locked_at TEXT,
		lease_expires TEXT,
		owner TEXT,
		branch TEXT,
		stack_trace TEXT,
		file_context TEXT,
		system_state TEXT,
		ai_remediation_notes TEXT,
		completion_summary TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_priority ON tickets(priority);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_duplicate_guard ON tickets(duplicate_guard);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_lock ON tickets(locked_by, locked_at);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_lease_expires ON tickets(lease_expires);`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_correlation_id ON tickets(correlation_id);`,

	// 2: event_log
	`CREATE TABLE IF NOT EXISTS event_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		event_type TEXT NOT NULL,
		level TEXT NOT NULL CHECK (level IN ('DEBUG','INFO','WARNING','ERROR','CRITICAL')),
		message TEXT NOT NULL,
		ticket_id TEXT REFERENCES tickets(id) ON DELETE SET NULL,
		correlation_id TEXT,
		source TEXT,
		extra_json TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_timestamp ON event_log(timestamp DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_event_type ON event_log(event_type);`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_ticket_id ON event_log(ticket_id);`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_correlation_id ON event_log(correlation_id);`,
	`CREATE INDEX IF NOT EXISTS idx_event_log_level ON event_log(level);`,

	// 3: ticket_creations (throttle ledger)
	`CREATE TABLE IF NOT EXISTS ticket_creations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		priority TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		ticket_id TEXT,
		error_type TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_ticket_creations_timestamp ON ticket_creations(timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_ticket_creations_priority ON ticket_creations(priority);`,

	// 4: api_calls (rate limiter ledger)
	`CREATE TABLE IF NOT EXISTS api_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		success INTEGER NOT NULL,
		tokens_used INTEGER,
		cost_usd REAL,
		error TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_api_calls_timestamp ON api_calls(timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_api_calls_provider ON api_calls(provider);`,
}

func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("ticketstore: create schema_migrations: %w", err)
	}

	var current int
	row := db.conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("ticketstore: read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("ticketstore: begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("ticketstore: apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("ticketstore: record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("ticketstore: commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
