// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/elemarin/paw/internal/provider"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

const name = "openai"

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, also used for OpenAI-compatible gateways
}

// Provider implements provider.Provider using the OpenAI Chat Completions API.
type Provider struct {
	client openaisdk.Client
	health *provider.HealthTracker
}

// New creates a new OpenAI provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, pawerr.New(pawerr.CodeProviderRequestInvalid, "openai: missing api_key in config",
			pawerr.FieldProvider(name))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: openaisdk.NewClient(opts...),
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return name }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) HealthMetrics() provider.HealthMetrics { return p.health.Metrics() }

func knownModels() []provider.ModelInfo {
	caps := func(ctxTokens, out int, vision, thinking bool) provider.ModelCapabilities {
		return provider.ModelCapabilities{
			SupportsTools:     true,
			SupportsVision:    vision,
			SupportsStreaming: true,
			SupportsThinking:  thinking,
			MaxContextTokens:  ctxTokens,
			MaxOutputTokens:   out,
		}
	}
	return []provider.ModelInfo{
		{ID: "gpt-4.1", Name: "GPT-4.1", Provider: name, Capabilities: caps(128000, 32768, true, false)},
		{ID: "gpt-4.1-mini", Name: "GPT-4.1 Mini", Provider: name, Capabilities: caps(128000, 16384, true, false)},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", Provider: name, Capabilities: caps(128000, 16384, true, false)},
		{ID: "o4-mini", Name: "o4-mini", Provider: name, Capabilities: caps(200000, 100000, false, true)},
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

func buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Options.Temperature))
	}
	if len(req.Options.StopSequences) > 0 {
		params.Stop = openaisdk.ChatCompletionNewParamsStopUnion{OfStringArray: req.Options.StopSequences}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

// convertMessages prepends the system prompt and maps each message onto
// its OpenAI counterpart. Assistant tool requests keep their call IDs so the
// following tool messages can reference them.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case provider.MessageRoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openaisdk.AssistantMessage(msg.Content))
				continue
			}
			asst := openaisdk.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				asst.Content.OfString = param.NewOpt(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openaisdk.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: validArgs(tc.Arguments),
					},
				})
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case provider.MessageRoleTool:
			result = append(result, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))
		case provider.MessageRoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, pawerr.Errorf(pawerr.CodeProviderRequestInvalid, "openai: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}

func validArgs(args string) string {
	if args == "" || !json.Valid([]byte(args)) {
		return "{}"
	}
	return args
}

func convertTools(tools []provider.ToolDefinition) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.SchemaMap()),
			},
		})
	}
	return result
}

func classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		retryAfter := ""
		if apiErr.Response != nil {
			retryAfter = apiErr.Response.Header.Get("Retry-After")
		}
		return provider.ClassifyHTTP(name, apiErr.StatusCode, retryAfter, err)
	}
	return provider.Classify(name, err)
}

type toolAccum struct {
	id   string
	name string
	args string
}

func (p *Provider) streamChat(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	send := func(ev provider.ChatEvent) bool { return provider.Send(ctx, ch, ev) }
	pending := make(map[int64]*toolAccum)

	// flush emits accumulated tool calls in index order.
	flush := func() bool {
		idx := make([]int64, 0, len(pending))
		for i := range pending {
			idx = append(idx, i)
		}
		sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
		for _, i := range idx {
			acc := pending[i]
			delete(pending, i)
			if !send(provider.ChatEvent{Type: provider.EventTypeToolCall, ToolCall: &provider.ToolCall{
				ID:        acc.id,
				Name:      acc.name,
				Arguments: validArgs(acc.args),
			}}) {
				return false
			}
		}
		return true
	}

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			delta := choice.Delta
			if delta.Content != "" {
				if !send(provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: delta.Content}) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				acc, ok := pending[tc.Index]
				if !ok {
					acc = &toolAccum{}
					pending[tc.Index] = acc
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args += tc.Function.Arguments
			}

			switch choice.FinishReason {
			case "tool_calls":
				if !flush() {
					return
				}
			case "content_filter":
				send(provider.ErrorEvent(provider.ContentPolicyError(name, "content_filter")))
				return
			}
		}

		if u := chunk.Usage; u.PromptTokens > 0 || u.CompletionTokens > 0 {
			if !send(provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
				InputTokens:     int(u.PromptTokens),
				OutputTokens:    int(u.CompletionTokens),
				CacheReadTokens: int(u.PromptTokensDetails.CachedTokens),
			}}) {
				return
			}
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

	if !flush() {
		return
	}
	p.health.RecordSuccess()
	send(provider.ChatEvent{Type: provider.EventTypeDone})
}
