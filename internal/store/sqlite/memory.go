// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

var _ store.MemoryStore = (*MemoryStore)(nil)

// MemoryStore implements store.MemoryStore. Writes to the same key are
// serialized by SQLite; the last committed upsert wins.
type MemoryStore struct {
	db *sql.DB
}

func (s *MemoryStore) PutEntry(ctx context.Context, e *store.MemoryEntry) error {
	if e.Scope == "" || e.Key == "" {
		return pawerr.New(pawerr.CodeStoreInvalidInput, "memory entry: Scope and Key are required")
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	const q = `INSERT INTO memory_entries (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, e.Scope, e.Key, e.Value, formatTime(e.UpdatedAt)); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "putting memory %s/%s", e.Scope, e.Key)
	}
	return nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, scope, key string) (*store.MemoryEntry, error) {
	const q = `SELECT scope, key, value, updated_at FROM memory_entries WHERE scope = ? AND key = ?`

	var e store.MemoryEntry
	var updatedAt string
	err := s.db.QueryRowContext(ctx, q, scope, key).Scan(&e.Scope, &e.Key, &e.Value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(pawerr.CodeStoreMemoryGetNotFound, "memory %s/%s not found", scope, key)
	}
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "getting memory %s/%s", scope, key)
	}
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, scope, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE scope = ? AND key = ?`, scope, key); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "deleting memory %s/%s", scope, key)
	}
	return nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, scope string) ([]*store.MemoryEntry, error) {
	const q = `SELECT scope, key, value, updated_at FROM memory_entries WHERE scope = ? ORDER BY key ASC`

	rows, err := s.db.QueryContext(ctx, q, scope)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "listing memory in %s", scope)
	}
	defer rows.Close()

	var out []*store.MemoryEntry
	for rows.Next() {
		var e store.MemoryEntry
		var updatedAt string
		if err := rows.Scan(&e.Scope, &e.Key, &e.Value, &updatedAt); err != nil {
			return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "scanning memory row")
		}
		e.UpdatedAt = parseTime(updatedAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *MemoryStore) AppendLog(ctx context.Context, e *store.LogEntry) error {
	if e.Scope == "" || e.Content == "" {
		return pawerr.New(pawerr.CodeStoreInvalidInput, "memory log: Scope and Content are required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_log (scope, content, created_at) VALUES (?, ?, ?)`,
		e.Scope, e.Content, formatTime(e.CreatedAt),
	)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "appending memory log in %s", e.Scope)
	}
	if id, err := result.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (s *MemoryStore) ListLog(ctx context.Context, scope string, since time.Time) ([]*store.LogEntry, error) {
	const q = `SELECT id, scope, content, created_at FROM memory_log
WHERE scope = ? AND created_at >= ? ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, scope, formatTime(since))
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "listing memory log in %s", scope)
	}
	defer rows.Close()

	var out []*store.LogEntry
	for rows.Next() {
		var e store.LogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Scope, &e.Content, &createdAt); err != nil {
			return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "scanning memory log row")
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
