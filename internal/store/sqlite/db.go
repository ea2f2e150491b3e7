// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package sqlite is the SQLite storage backend. All entities share one
// database file opened in WAL mode.
package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Compile-time interface check.
var _ store.Store = (*DB)(nil)

// DB implements store.Store backed by a single SQLite database.
type DB struct {
	db *sql.DB

	conversations *ConversationStore
	toolCalls     *ToolCallStore
	proposals     *ProposalStore
	memory        *MemoryStore
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "opening sqlite db %s", path)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "pinging sqlite db %s", path)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "migrating sqlite db %s", path)
	}

	return &DB{
		db:            db,
		conversations: &ConversationStore{db: db},
		toolCalls:     &ToolCallStore{db: db},
		proposals:     &ProposalStore{db: db},
		memory:        &MemoryStore{db: db},
	}, nil
}

func (d *DB) Conversations() store.ConversationStore { return d.conversations }
func (d *DB) ToolCalls() store.ToolCallStore         { return d.toolCalls }
func (d *DB) Proposals() store.ProposalStore         { return d.proposals }
func (d *DB) Memory() store.MemoryStore              { return d.memory }

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	model_override TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	tool_call_id    TEXT NOT NULL DEFAULT '',
	tool_name       TEXT NOT NULL DEFAULT '',
	tool_calls      TEXT NOT NULL DEFAULT '[]',
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	UNIQUE (conversation_id, seq),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tool_calls (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL,
	arguments       TEXT NOT NULL DEFAULT '{}',
	approved        INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	result          TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	error_code      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	completed_at    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS proposals (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL,
	runtime       TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL,
	status        TEXT NOT NULL,
	test_output   TEXT NOT NULL DEFAULT '',
	reject_reason TEXT NOT NULL DEFAULT '',
	approved_by   TEXT NOT NULL DEFAULT '',
	history       TEXT NOT NULL DEFAULT '[]',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_entries (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (scope, key)
);

CREATE TABLE IF NOT EXISTS memory_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	scope      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_log_scope ON memory_log(scope, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// timeLayout is RFC3339 with a fixed-width fraction so stored values sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime serialises a time.Time in UTC using timeLayout.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// isConstraint reports whether err is a SQLite constraint violation
// (duplicate primary key, foreign key, unique index).
func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func notFound(code pawerr.Code, format string, args ...any) error {
	return pawerr.Wrapf(store.ErrNotFound, code, format, args...)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
