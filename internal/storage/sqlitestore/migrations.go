// Package sqlitestore is the reference Storage implementation backed
// by modernc.org/sqlite, grounded on g960059-agtmux's internal/db
// package (WAL pragma DSN, single-connection pool, versioned
// migrations applied inside a transaction with a schema_migrations
// ledger).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	upSQL   string
}

var migrations = []migration{
	{
		version: 1,
		upSQL: `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS panes (
	pane_id TEXT PRIMARY KEY,
	domain TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	cwd TEXT NOT NULL DEFAULT '',
	observed INTEGER NOT NULL DEFAULT 1,
	ignore_reason TEXT NOT NULL DEFAULT '',
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL,
	closed_at TEXT
);

CREATE TABLE IF NOT EXISTS output_segments (
	pane_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	gap_reason TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	captured_at TEXT NOT NULL,
	PRIMARY KEY(pane_id, seq)
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_id TEXT NOT NULL,
	pane_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	extracted_json TEXT NOT NULL DEFAULT '{}',
	matched_text TEXT NOT NULL DEFAULT '',
	segment_id INTEGER NOT NULL DEFAULT 0,
	detected_at TEXT NOT NULL,
	dedupe_key TEXT NOT NULL UNIQUE,
	handled INTEGER NOT NULL DEFAULT 0,
	handled_by TEXT NOT NULL DEFAULT '',
	handled_at TEXT
);

CREATE INDEX IF NOT EXISTS events_detected_at ON events(detected_at);
CREATE INDEX IF NOT EXISTS events_severity_detected_at ON events(severity, detected_at);

CREATE TABLE IF NOT EXISTS audit_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pane_id TEXT NOT NULL,
	action TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	pane_id TEXT NOT NULL DEFAULT '',
	occurred_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	event_id INTEGER NOT NULL DEFAULT 0,
	sent_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS maintenance_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at TEXT NOT NULL
);
`,
	},
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.upSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
