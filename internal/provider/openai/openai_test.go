// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package openai_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/provider"
	"github.com/elemarin/paw/internal/provider/openai"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

var _ provider.Provider = (*openai.Provider)(nil)

func mustNewProvider(t *testing.T, baseURL string) *openai.Provider {
	t.Helper()
	p, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: baseURL})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_MissingAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, pawerr.IsInvalidInput(err))
}

func TestOpenAIProvider_Basics(t *testing.T) {
	p := mustNewProvider(t, "")
	assert.Equal(t, "openai", p.Name())
	assert.True(t, p.Available(t.Context()))
	assert.NoError(t, p.Close())

	models, err := p.ListModels(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.Equal(t, "openai", m.Provider)
		assert.NotEmpty(t, m.Name, m.ID)
	}

	status, err := p.Status(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Available)
}

func TestConvertMessages(t *testing.T) {
	params, err := openai.ConvertMessages([]provider.Message{
		{Role: provider.MessageRoleUser, Content: "list files"},
		{Role: provider.MessageRoleAssistant, ToolCalls: []provider.ToolCall{
			{ID: "call_1", Name: "files", Arguments: `{"action":"list","path":"."}`},
		}},
		{Role: provider.MessageRoleTool, ToolCallID: "call_1", Content: "a.txt"},
		{Role: provider.MessageRoleAssistant, Content: "There is one file."},
	}, "be brief")
	require.NoError(t, err)
	require.Len(t, params, 5)

	require.NotNil(t, params[0].OfSystem)
	assert.Equal(t, "list files", params[1].OfUser.Content.OfString.Value)

	require.NotNil(t, params[2].OfAssistant)
	require.Len(t, params[2].OfAssistant.ToolCalls, 1)
	tc := params[2].OfAssistant.ToolCalls[0]
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "files", tc.Function.Name)

	require.NotNil(t, params[3].OfTool)
	assert.Equal(t, "call_1", params[3].OfTool.ToolCallID)
	assert.Equal(t, "a.txt", params[3].OfTool.Content.OfString.Value)
	assert.Equal(t, "There is one file.", params[4].OfAssistant.Content.OfString.Value)
}

func TestConvertMessages_UnknownRole(t *testing.T) {
	_, err := openai.ConvertMessages([]provider.Message{{Role: "robot"}}, "")
	assert.True(t, pawerr.HasCode(err, pawerr.CodeProviderRequestInvalid))
}

func TestBuildParams_Options(t *testing.T) {
	temp := float32(0)
	params, err := openai.BuildParams(provider.ChatRequest{
		Model:    "gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "hi"}},
		Tools: []provider.ToolDefinition{{
			Name:        "files",
			Description: "workspace files",
			Schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`),
		}},
		Options: provider.ChatOptions{Temperature: &temp, MaxTokens: 256},
	})
	require.NoError(t, err)
	assert.True(t, params.Temperature.Valid(), "explicit zero temperature is sent")
	assert.Equal(t, int64(256), params.MaxCompletionTokens.Value)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "files", params.Tools[0].Function.Name)
	assert.Equal(t, "object", params.Tools[0].Function.Parameters["type"])
}

func chunk(body string) string { return "data: " + body + "\n\n" }

func TestChat_StreamsToolCallsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[{"index":0,"delta":{"role":"assistant","content":"Sure"},"finish_reason":null}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"shell","arguments":"{}"}}]},"finish_reason":null}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"files","arguments":"{\"path\":"}}]},"finish_reason":null}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\".\"}"}}]},"finish_reason":"tool_calls"}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":4,"total_tokens":13}}`,
		} {
			_, _ = fmt.Fprint(w, chunk(c))
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	ch, err := mustNewProvider(t, srv.URL).Chat(t.Context(), provider.ChatRequest{
		Model:    "gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "go"}},
	})
	require.NoError(t, err)

	var text strings.Builder
	var calls []provider.ToolCall
	var usage provider.Usage
	var last provider.ChatEvent
	for ev := range ch {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			text.WriteString(ev.Text)
		case provider.EventTypeToolCall:
			calls = append(calls, *ev.ToolCall)
		case provider.EventTypeUsage:
			usage.Merge(*ev.Usage)
		}
		last = ev
	}

	assert.Equal(t, "Sure", text.String())
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.JSONEq(t, `{"path":"."}`, calls[0].Arguments)
	assert.Equal(t, "shell", calls[1].Name)
	assert.Equal(t, 13, usage.Total())
	assert.Equal(t, provider.EventTypeDone, last.Type)
}

func TestChat_ContentFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, chunk(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[{"index":0,"delta":{},"finish_reason":"content_filter"}]}`))
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	ch, err := mustNewProvider(t, srv.URL).Chat(t.Context(), provider.ChatRequest{
		Model:    "gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "go"}},
	})
	require.NoError(t, err)

	var errEv *provider.ChatEvent
	for ev := range ch {
		if ev.Type == provider.EventTypeError {
			errEv = &ev
		}
	}
	require.NotNil(t, errEv)
	assert.True(t, pawerr.HasCode(errEv.Err, pawerr.CodeProviderContentPolicy))
}

func TestChat_RateLimitedCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	p := mustNewProvider(t, srv.URL)
	ch, err := p.Chat(t.Context(), provider.ChatRequest{
		Model:    "gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "go"}},
	})
	require.NoError(t, err)

	var got error
	for ev := range ch {
		if ev.Type == provider.EventTypeError {
			got = ev.Err
		}
	}
	require.Error(t, got)
	assert.True(t, pawerr.IsRateLimited(got))
	d, ok := provider.RetryAfter(got)
	require.True(t, ok)
	assert.Equal(t, "3s", d.String())
	assert.Equal(t, int64(1), p.HealthMetrics().FailureCount)
}
