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

var _ store.ToolCallStore = (*ToolCallStore)(nil)

// ToolCallStore implements store.ToolCallStore.
type ToolCallStore struct {
	db *sql.DB
}

const toolCallColumns = `id, conversation_id, name, arguments, approved, status, result, error, error_code, created_at, completed_at`

func (s *ToolCallStore) CreateToolCall(ctx context.Context, tc *store.ToolCall) error {
	if tc.ID == "" || tc.Name == "" {
		return pawerr.New(pawerr.CodeStoreInvalidInput, "tool call: ID and Name are required")
	}
	if tc.Status == "" {
		tc.Status = store.ToolCallPending
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now()
	}

	q := `INSERT INTO tool_calls (` + toolCallColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		tc.ID,
		tc.ConversationID,
		tc.Name,
		tc.Arguments,
		boolToInt(tc.Approved),
		string(tc.Status),
		tc.Result,
		tc.Error,
		tc.ErrorCode,
		formatTime(tc.CreatedAt),
		formatTime(tc.CompletedAt),
	)
	if isConstraint(err) {
		return pawerr.Wrapf(store.ErrConflict, pawerr.CodeStoreConflict, "tool call %s already exists", tc.ID)
	}
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "creating tool call %s", tc.ID)
	}
	return nil
}

func (s *ToolCallStore) CompleteToolCall(ctx context.Context, tc *store.ToolCall) error {
	if tc.CompletedAt.IsZero() {
		tc.CompletedAt = time.Now()
	}

	const q = `UPDATE tool_calls SET status = ?, result = ?, error = ?, error_code = ?, completed_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, q,
		string(tc.Status), tc.Result, tc.Error, tc.ErrorCode, formatTime(tc.CompletedAt), tc.ID,
	)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "completing tool call %s", tc.ID)
	}
	return expectOne(result, pawerr.CodeStoreToolCallGetNotFound, "tool call", tc.ID)
}

func (s *ToolCallStore) GetToolCall(ctx context.Context, id string) (*store.ToolCall, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolCallColumns+` FROM tool_calls WHERE id = ?`, id)
	tc, err := scanToolCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(pawerr.CodeStoreToolCallGetNotFound, "tool call %s not found", id)
	}
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "getting tool call %s", id)
	}
	return tc, nil
}

func (s *ToolCallStore) ListToolCalls(ctx context.Context, conversationID string) ([]*store.ToolCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+toolCallColumns+` FROM tool_calls WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "listing tool calls for %s", conversationID)
	}
	defer rows.Close()

	var calls []*store.ToolCall
	for rows.Next() {
		tc, err := scanToolCall(rows)
		if err != nil {
			return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "scanning tool call row")
		}
		calls = append(calls, tc)
	}
	return calls, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToolCall(row scanner) (*store.ToolCall, error) {
	var tc store.ToolCall
	var approved int
	var createdAt, completedAt string
	if err := row.Scan(
		&tc.ID,
		&tc.ConversationID,
		&tc.Name,
		&tc.Arguments,
		&approved,
		&tc.Status,
		&tc.Result,
		&tc.Error,
		&tc.ErrorCode,
		&createdAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	tc.Approved = approved != 0
	tc.CreatedAt = parseTime(createdAt)
	tc.CompletedAt = parseTime(completedAt)
	return &tc, nil
}
