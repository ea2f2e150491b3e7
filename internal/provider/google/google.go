// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package google

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/elemarin/paw/internal/provider"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

const name = "google"

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, pawerr.New(pawerr.CodeProviderRequestInvalid, "google: missing api_key in config",
			pawerr.FieldProvider(name))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	return &Provider{
		client: client,
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return name }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

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
			MaxContextTokens:  1000000,
			MaxOutputTokens:   out,
		}
	}
	return []provider.ModelInfo{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: name, Capabilities: caps(65536, true)},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: name, Capabilities: caps(65536, true)},
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: name, Capabilities: caps(8192, false)},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return knownModels(), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	config := buildConfig(req)

	ch := make(chan provider.ChatEvent, provider.EventBuffer)
	go func() {
		defer close(ch)
		p.streamChat(ctx, req.Model, contents, config, ch)
	}()
	return ch, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: p.Available(ctx), Provider: name, Message: "ok"}, nil
}

func (p *Provider) Close() error { return nil }

func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if len(req.Options.StopSequences) > 0 {
		cfg.StopSequences = req.Options.StopSequences
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}
	return cfg
}

// convertMessages maps the conversation onto Gemini contents. Assistant
// turns use the "model" role and consecutive tool results share one user
// content. System messages travel in SystemInstruction.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	var responses []*genai.Part

	flush := func() {
		if len(responses) > 0 {
			result = append(result, &genai.Content{Role: "user", Parts: responses})
			responses = nil
		}
	}

	for _, msg := range msgs {
		if msg.Role != provider.MessageRoleTool {
			flush()
		}
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})

		case provider.MessageRoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						args = map[string]any{}
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(parts) == 0 {
				continue
			}
			result = append(result, &genai.Content{Role: "model", Parts: parts})

		case provider.MessageRoleTool:
			responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.ToolName,
				Response: map[string]any{"result": msg.Content},
			}})

		case provider.MessageRoleSystem:
			continue

		default:
			return nil, pawerr.Errorf(pawerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}
	flush()
	return result, nil
}

func convertTools(tools []provider.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.SchemaMap(),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// classify maps genai API errors onto provider error codes. The SDK has
// returned APIError both by value and by pointer across releases.
func classify(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := any(e).(type) {
		case genai.APIError:
			return provider.ClassifyHTTP(name, v.Code, "", err)
		case *genai.APIError:
			return provider.ClassifyHTTP(name, v.Code, "", err)
		}
	}
	return provider.Classify(name, err)
}

func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	send := func(ev provider.ChatEvent) bool { return provider.Send(ctx, ch, ev) }

	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			cerr := classify(err)
			if pawerr.IsRetryable(cerr) {
				p.health.RecordFailure()
			}
			send(provider.ErrorEvent(cerr))
			return
		}

		if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
			send(provider.ErrorEvent(provider.ContentPolicyError(name, string(fb.BlockReason))))
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.FinishReason == genai.FinishReasonSafety {
				send(provider.ErrorEvent(provider.ContentPolicyError(name, string(candidate.FinishReason))))
				return
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" && !part.Thought {
					if !send(provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: part.Text}) {
						return
					}
				}
				if part.FunctionCall == nil {
					continue
				}
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					slog.Error("failed to marshal tool call arguments",
						"function", part.FunctionCall.Name, "error", err)
					args = []byte("{}")
				}
				if part.FunctionCall.Args == nil {
					args = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					// Gemini leaves call IDs empty; results are matched by ID downstream.
					id = "call_" + uuid.NewString()
				}
				if !send(provider.ChatEvent{Type: provider.EventTypeToolCall, ToolCall: &provider.ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				}}) {
					return
				}
			}
		}

		if u := result.UsageMetadata; u != nil {
			if !send(provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
				InputTokens:     int(u.PromptTokenCount),
				OutputTokens:    int(u.CandidatesTokenCount),
				CacheReadTokens: int(u.CachedContentTokenCount),
			}}) {
				return
			}
		}
	}

	p.health.RecordSuccess()
	send(provider.ChatEvent{Type: provider.EventTypeDone})
}
