// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package store

import (
	"time"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// --- Conversation types ---

// Conversation is one ordered exchange between a caller and the agent.
type Conversation struct {
	ID            string
	Title         string
	ModelOverride string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// --- Message types ---

// MessageRole identifies the sender of a message in a conversation.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// Valid reports whether the role is a known message role.
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem, MessageRoleTool:
		return true
	default:
		return false
	}
}

// ToolCallRequest is a tool invocation requested by an assistant message.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single entry in a conversation. Seq is assigned by the
// store on append and orders messages within their conversation.
type Message struct {
	ID             string
	ConversationID string
	Seq            int64
	Role           MessageRole
	Content        string
	ToolCallID     string
	ToolName       string
	ToolCalls      []ToolCallRequest
	InputTokens    int
	OutputTokens   int
	CreatedAt      time.Time
}

// Validate checks the fields the store relies on.
func (m Message) Validate() error {
	if m.ID == "" {
		return pawerr.New(pawerr.CodeStoreMessageAppendInvalid, "message: ID is required")
	}
	if !m.Role.Valid() {
		return pawerr.Errorf(pawerr.CodeStoreMessageAppendInvalid, "message: invalid role %q", m.Role)
	}
	if m.Role == MessageRoleTool && m.ToolCallID == "" {
		return pawerr.New(pawerr.CodeStoreMessageAppendInvalid, "message: tool messages require ToolCallID")
	}
	return nil
}

// --- Tool call types ---

// ToolCallStatus tracks a dispatch from request to outcome.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallSucceeded ToolCallStatus = "succeeded"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCall is the durable record of one tool dispatch.
type ToolCall struct {
	ID             string
	ConversationID string
	Name           string
	Arguments      string
	Approved       bool
	Status         ToolCallStatus
	Result         string
	Error          string
	ErrorCode      string
	CreatedAt      time.Time
	CompletedAt    time.Time
}

// --- Proposal types ---

// ProposalKind distinguishes capability bundles from standalone scripts.
type ProposalKind string

const (
	ProposalKindPlugin ProposalKind = "plugin"
	ProposalKindScript ProposalKind = "script"
)

// ProposalStatus is a state in the proposal workflow.
type ProposalStatus string

const (
	ProposalDraft      ProposalStatus = "draft"
	ProposalTestedPass ProposalStatus = "tested-pass"
	ProposalTestedFail ProposalStatus = "tested-fail"
	ProposalApproved   ProposalStatus = "approved"
	ProposalActive     ProposalStatus = "active"
	ProposalRejected   ProposalStatus = "rejected"
)

// ProposalEvent records one state change.
type ProposalEvent struct {
	From  ProposalStatus `json:"from"`
	To    ProposalStatus `json:"to"`
	Actor string         `json:"actor,omitempty"`
	Note  string         `json:"note,omitempty"`
	At    time.Time      `json:"at"`
}

// Proposal is a self-authored capability awaiting test and human approval.
type Proposal struct {
	ID           string
	Name         string
	Description  string
	Kind         ProposalKind
	Runtime      string
	Source       string
	Status       ProposalStatus
	TestOutput   string
	RejectReason string
	ApprovedBy   string
	History      []ProposalEvent
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// --- Memory types ---

// MemoryEntry is a key/value fact. (Scope, Key) is unique.
type MemoryEntry struct {
	Scope     string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// LogEntry is one append-only memory log line.
type LogEntry struct {
	ID        int64
	Scope     string
	Content   string
	CreatedAt time.Time
}

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}
