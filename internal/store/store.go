// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package store

import (
	"context"
	"time"
)

// ConversationStore manages conversations and their ordered messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	ListConversations(ctx context.Context, opts ListOpts) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage assigns msg.Seq and msg.ConversationID.
	AppendMessage(ctx context.Context, conversationID string, msg *Message) error
	// GetMessages returns the last limit messages in Seq order; limit <= 0
	// returns all of them.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
}

// ToolCallStore records every dispatched tool call.
type ToolCallStore interface {
	CreateToolCall(ctx context.Context, tc *ToolCall) error
	// CompleteToolCall persists the outcome fields of tc.
	CompleteToolCall(ctx context.Context, tc *ToolCall) error
	GetToolCall(ctx context.Context, id string) (*ToolCall, error)
	ListToolCalls(ctx context.Context, conversationID string) ([]*ToolCall, error)
}

// ProposalStore persists proposals. UpdateProposal is a compare-and-swap on
// the status column: it fails with a conflict when the stored status is no
// longer expected.
type ProposalStore interface {
	CreateProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, id string) (*Proposal, error)
	UpdateProposal(ctx context.Context, p *Proposal, expected ProposalStatus) error
	// ListProposals filters by status; "" lists every proposal.
	ListProposals(ctx context.Context, status ProposalStatus) ([]*Proposal, error)
}

// MemoryStore holds the key/value table and the append-only log.
type MemoryStore interface {
	// PutEntry inserts or overwrites (Scope, Key).
	PutEntry(ctx context.Context, e *MemoryEntry) error
	GetEntry(ctx context.Context, scope, key string) (*MemoryEntry, error)
	// DeleteEntry is a no-op for a missing key.
	DeleteEntry(ctx context.Context, scope, key string) error
	ListEntries(ctx context.Context, scope string) ([]*MemoryEntry, error)

	AppendLog(ctx context.Context, e *LogEntry) error
	// ListLog returns entries created at or after since, oldest first.
	ListLog(ctx context.Context, scope string, since time.Time) ([]*LogEntry, error)
}

// Store groups the persistence collaborators behind one handle.
type Store interface {
	Conversations() ConversationStore
	ToolCalls() ToolCallStore
	Proposals() ProposalStore
	Memory() MemoryStore
	Close() error
}
