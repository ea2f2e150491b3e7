// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

var _ store.ConversationStore = (*ConversationStore)(nil)

// ConversationStore implements store.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

func (s *ConversationStore) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	if conv.ID == "" {
		return pawerr.New(pawerr.CodeStoreInvalidInput, "conversation: ID is required")
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	const q = `INSERT INTO conversations (id, title, model_override, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		conv.ID,
		conv.Title,
		conv.ModelOverride,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if isConstraint(err) {
		return pawerr.Wrapf(store.ErrConflict, pawerr.CodeStoreConflict, "conversation %s already exists", conv.ID)
	}
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "creating conversation %s", conv.ID)
	}
	return nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	const q = `SELECT id, title, model_override, created_at, updated_at FROM conversations WHERE id = ?`

	var conv store.Conversation
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&conv.ID, &conv.Title, &conv.ModelOverride, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(pawerr.CodeStoreConversationGetNotFound, "conversation %s not found", id)
	}
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "getting conversation %s", id)
	}

	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	return &conv, nil
}

func (s *ConversationStore) UpdateConversation(ctx context.Context, conv *store.Conversation) error {
	conv.UpdatedAt = time.Now()

	const q = `UPDATE conversations SET title = ?, model_override = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, q, conv.Title, conv.ModelOverride, formatTime(conv.UpdatedAt), conv.ID)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "updating conversation %s", conv.ID)
	}
	return expectOne(result, pawerr.CodeStoreConversationGetNotFound, "conversation", conv.ID)
}

func (s *ConversationStore) ListConversations(ctx context.Context, opts store.ListOpts) ([]*store.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT id, title, model_override, created_at, updated_at
FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, limit, opts.Offset)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "listing conversations")
	}
	defer rows.Close()

	var convs []*store.Conversation
	for rows.Next() {
		var conv store.Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.ModelOverride, &createdAt, &updatedAt); err != nil {
			return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "scanning conversation row")
		}
		conv.CreatedAt = parseTime(createdAt)
		conv.UpdatedAt = parseTime(updatedAt)
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "deleting conversation %s", id)
	}
	return expectOne(result, pawerr.CodeStoreConversationGetNotFound, "conversation", id)
}

func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID string, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreMessageAppendInvalid, "encoding tool calls for message %s", msg.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "beginning append to %s", conversationID)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&seq); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "allocating sequence in %s", conversationID)
	}

	const q = `INSERT INTO messages (id, conversation_id, seq, role, content, tool_call_id, tool_name, tool_calls,
input_tokens, output_tokens, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		msg.ID,
		conversationID,
		seq,
		string(msg.Role),
		msg.Content,
		msg.ToolCallID,
		msg.ToolName,
		string(toolCalls),
		msg.InputTokens,
		msg.OutputTokens,
		formatTime(msg.CreatedAt),
	)
	if isConstraint(err) {
		return pawerr.Wrapf(store.ErrInvalidInput, pawerr.CodeStoreMessageAppendInvalid,
			"appending message %s: unknown conversation %s or duplicate id", msg.ID, conversationID)
	}
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "appending message %s to %s", msg.ID, conversationID)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(msg.CreatedAt), conversationID); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "touching conversation %s", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "committing message %s", msg.ID)
	}

	msg.ConversationID = conversationID
	msg.Seq = seq
	return nil
}

func (s *ConversationStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	// Sub-select the N most recent, then re-order chronologically.
	const q = `SELECT id, conversation_id, seq, role, content, tool_call_id, tool_name, tool_calls,
input_tokens, output_tokens, created_at
FROM (
	SELECT * FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "getting messages for %s", conversationID)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var msg store.Message
		var toolCalls, createdAt string
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Seq,
			&msg.Role,
			&msg.Content,
			&msg.ToolCallID,
			&msg.ToolName,
			&toolCalls,
			&msg.InputTokens,
			&msg.OutputTokens,
			&createdAt,
		); err != nil {
			return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "scanning message row")
		}
		if toolCalls != "" && toolCalls != "[]" && toolCalls != "null" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "decoding tool calls of message %s", msg.ID)
			}
		}
		msg.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func expectOne(result sql.Result, code pawerr.Code, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "checking rows affected for %s %s", kind, id)
	}
	if rows == 0 {
		return notFound(code, "%s %s not found", kind, id)
	}
	return nil
}
