// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package provider is the gateway to language-model backends. Adapters for
// each vendor live in subpackages and translate to and from the types here.
package provider

import (
	"context"
	"encoding/json"
)

// Provider is the core interface for LLM providers.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	// Chat streams the model reply. Failures after the stream starts arrive
	// as an EventTypeError event carrying a classified error.
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// Router routes chat requests to the appropriate provider based on model name.
type Router interface {
	Route(ctx context.Context, modelName string) (Provider, string, error)
	RegisterProvider(name string, provider Provider) error
	Close() error
}

// HealthReporter is implemented by providers that track their own health
// so the router can skip them after failures.
type HealthReporter interface {
	RecordFailure()
	RecordSuccess()
}

// ChatRequest represents a request to the LLM.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolDefinition
	SystemPrompt string
	Options      ChatOptions
}

// ChatOptions contains model configuration.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
}

// Message represents a conversation message.
type Message struct {
	Role    MessageRole
	Content string
	// ToolCalls are the invocations an assistant message requested.
	ToolCalls []ToolCall
	// ToolCallID and ToolName identify the request a tool message answers.
	ToolCallID string
	ToolName   string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// ToolDefinition describes a tool available to the agent.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// SchemaMap decodes Schema into a generic map, which several SDKs want.
// An empty or invalid schema yields an empty object schema.
func (d ToolDefinition) SchemaMap() map[string]any {
	m := map[string]any{}
	if len(d.Schema) > 0 {
		_ = json.Unmarshal(d.Schema, &m)
	}
	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	return m
}

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type     EventType
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
	// Error is the message of an EventTypeError event; Err is the classified
	// error behind it.
	Error string
	Err   error
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeToolCall  EventType = "tool_call"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// ErrorEvent builds an EventTypeError event from a classified error.
func ErrorEvent(err error) ChatEvent {
	return ChatEvent{Type: EventTypeError, Error: err.Error(), Err: err}
}

// ToolCall represents a tool invocation by the LLM.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Total is input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Merge folds a usage event of the same reply into u. Usage events carry
// running totals, so each field keeps its largest value.
func (u *Usage) Merge(o Usage) {
	u.InputTokens = max(u.InputTokens, o.InputTokens)
	u.OutputTokens = max(u.OutputTokens, o.OutputTokens)
	u.CacheReadTokens = max(u.CacheReadTokens, o.CacheReadTokens)
	u.CacheWriteTokens = max(u.CacheWriteTokens, o.CacheWriteTokens)
}

// Add accumulates the usage of another reply into u.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadTokens += o.CacheReadTokens
	u.CacheWriteTokens += o.CacheWriteTokens
}

// ModelInfo describes a model's capabilities.
type ModelInfo struct {
	ID           string
	Name         string
	Provider     string
	Capabilities ModelCapabilities
}

// ModelCapabilities declares what a model supports.
type ModelCapabilities struct {
	SupportsTools     bool
	SupportsVision    bool
	SupportsStreaming bool
	SupportsThinking  bool
	MaxContextTokens  int
	MaxOutputTokens   int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
}
