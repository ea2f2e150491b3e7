// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package anthropic adapts the Anthropic Messages API to provider.Provider.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/elemarin/paw/internal/provider"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

const name = "anthropic"

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, pawerr.New(pawerr.CodeProviderRequestInvalid, "anthropic: missing api_key in config",
			pawerr.FieldProvider(name))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by the agent loop.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: anthropicsdk.NewClient(opts...),
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return name }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) HealthMetrics() provider.HealthMetrics { return p.health.Metrics() }

func knownModels() []provider.ModelInfo {
	caps := func(out int, thinking bool) provider.ModelCapabilities {
		return provider.ModelCapabilities{
			SupportsTools:     true,
			SupportsVision:    true,
			SupportsStreaming: true,
			SupportsThinking:  thinking,
			MaxContextTokens:  200000,
			MaxOutputTokens:   out,
		}
	}
	return []provider.ModelInfo{
		{ID: "claude-opus-4-1", Name: "Claude Opus 4.1", Provider: name, Capabilities: caps(32000, true)},
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Provider: name, Capabilities: caps(64000, true)},
		{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", Provider: name, Capabilities: caps(64000, false)},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return knownModels(), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.ChatEvent, provider.EventBuffer)
	go func() {
		defer close(ch)
		p.streamChat(ctx, params, ch)
	}()
	return ch, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: p.Available(ctx), Provider: name, Message: "ok"}, nil
}

func (p *Provider) Close() error { return nil }

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Options.Temperature))
	}
	if len(req.Options.StopSequences) > 0 {
		params.StopSequences = req.Options.StopSequences
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

// convertMessages maps the conversation onto Anthropic turns. Consecutive
// tool results are merged into a single user turn, and assistant tool
// requests become tool_use blocks.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam
	var pendingResults []anthropicsdk.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			result = append(result, anthropicsdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range msgs {
		if msg.Role != provider.MessageRoleTool {
			flush()
		}
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content)))

		case provider.MessageRoleAssistant:
			var blocks []anthropicsdk.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, rawArgs(tc.Arguments), tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))

		case provider.MessageRoleTool:
			pendingResults = append(pendingResults,
				anthropicsdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false))

		case provider.MessageRoleSystem:
			// Carried by the top-level system parameter.
			continue

		default:
			return nil, pawerr.Errorf(pawerr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}
	flush()
	return result, nil
}

func rawArgs(args string) json.RawMessage {
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

func convertTools(tools []provider.ToolDefinition) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: extractSchema(t.SchemaMap()),
			},
		})
	}
	return result
}

// extractSchema splits a full JSON schema into the Properties and Required
// fields the SDK expects.
func extractSchema(raw map[string]any) anthropicsdk.ToolInputSchemaParam {
	schema := anthropicsdk.ToolInputSchemaParam{}
	if props, ok := raw["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := raw["required"].([]any); ok {
		strs := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				strs = append(strs, s)
			}
		}
		schema.Required = strs
	}
	return schema
}

// classify maps SDK errors onto provider error codes.
func classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		retryAfter := ""
		if apiErr.Response != nil {
			retryAfter = apiErr.Response.Header.Get("Retry-After")
		}
		return provider.ClassifyHTTP(name, apiErr.StatusCode, retryAfter, err)
	}
	return provider.Classify(name, err)
}

func (p *Provider) streamChat(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	type toolAccum struct {
		id          string
		name        string
		partialJSON string
	}
	toolBlocks := make(map[int64]*toolAccum)
	send := func(ev provider.ChatEvent) bool { return provider.Send(ctx, ch, ev) }

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			u := event.Message.Usage
			if u.InputTokens > 0 || u.OutputTokens > 0 {
				if !send(provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
					InputTokens:      int(u.InputTokens),
					OutputTokens:     int(u.OutputTokens),
					CacheReadTokens:  int(u.CacheReadInputTokens),
					CacheWriteTokens: int(u.CacheCreationInputTokens),
				}}) {
					return
				}
			}

		case "content_block_start":
			if cb := event.ContentBlock; cb.Type == "tool_use" {
				toolBlocks[event.Index] = &toolAccum{id: cb.ID, name: cb.Name}
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if !send(provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: event.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if acc, ok := toolBlocks[event.Index]; ok {
					acc.partialJSON += event.Delta.PartialJSON
				}
			}

		case "content_block_stop":
			if acc, ok := toolBlocks[event.Index]; ok {
				delete(toolBlocks, event.Index)
				if !send(provider.ChatEvent{Type: provider.EventTypeToolCall, ToolCall: &provider.ToolCall{
					ID:        acc.id,
					Name:      acc.name,
					Arguments: string(rawArgs(acc.partialJSON)),
				}}) {
					return
				}
			}

		case "message_delta":
			if string(event.Delta.StopReason) == "refusal" {
				send(provider.ErrorEvent(provider.ContentPolicyError(name, "refusal")))
				return
			}
			// Output usage here is cumulative for the message.
			if !send(provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
				OutputTokens: int(event.Usage.OutputTokens),
			}}) {
				return
			}

		case "message_stop":
			p.health.RecordSuccess()
			send(provider.ChatEvent{Type: provider.EventTypeDone})
			return
		}
	}

	if err := stream.Err(); err != nil {
		cerr := classify(err)
		if pawerr.IsRetryable(cerr) {
			p.health.RecordFailure()
		}
		send(provider.ErrorEvent(cerr))
		return
	}

	p.health.RecordSuccess()
	send(provider.ChatEvent{Type: provider.EventTypeDone})
}
