// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/agent"
	"github.com/elemarin/paw/internal/server"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

type streamedEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// parseSSE splits an event-stream body into events.
func parseSSE(t *testing.T, body string) []streamedEvent {
	t.Helper()
	var events []streamedEvent
	var cur streamedEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "" && cur.Event != "":
			events = append(events, cur)
			cur = streamedEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func eventNames(events []streamedEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Event
	}
	return names
}

func TestChatStream_SSE(t *testing.T) {
	e := newEnv(t)
	e.agent.calls = []agent.ToolCallRecord{
		{ID: "call_1", Name: "files", Output: "a"},
		{ID: "call_2", Name: "shell", Output: "b"},
	}

	w := e.do(t, http.MethodPost, "/api/v1/chat/stream",
		map[string]any{"conversation_id": "c1", "message": "go"},
		"Accept", "text/event-stream")
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	require.Equal(t, []string{
		server.EventConversation,
		server.EventToolCall,
		server.EventToolCall,
		server.EventResult,
	}, eventNames(events))

	var first agent.ToolCallRecord
	require.NoError(t, json.Unmarshal(events[1].Data, &first))
	assert.Equal(t, "call_1", first.ID)

	var res server.ChatResult
	require.NoError(t, json.Unmarshal(events[3].Data, &res))
	assert.Equal(t, "c1", res.ConversationID)
	assert.Len(t, res.ToolCalls, 2)
}

func TestChatStream_JSONFallback(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/chat/stream", map[string]any{"message": "go"})
	requireStatus(t, w, http.StatusOK)

	body := decode[struct {
		Events []streamedEvent `json:"events"`
	}](t, w)
	require.Equal(t, []string{server.EventConversation, server.EventResult}, eventNames(body.Events))

	var conv map[string]string
	require.NoError(t, json.Unmarshal(body.Events[0].Data, &conv))
	assert.NotEmpty(t, conv["conversation_id"])
	assert.Equal(t, conv["conversation_id"], e.agent.lastRequest().ConversationID)
}

func TestChatStream_ErrorEvent(t *testing.T) {
	e := newEnv(t)
	e.agent.err = pawerr.New(pawerr.CodeProviderUpstreamFailure, "all providers failed")

	w := e.do(t, http.MethodPost, "/api/v1/chat/stream", map[string]any{"message": "go"},
		"Accept", "text/event-stream")
	requireStatus(t, w, http.StatusOK)

	events := parseSSE(t, w.Body.String())
	require.Equal(t, []string{server.EventConversation, server.EventError}, eventNames(events))
	assert.Contains(t, string(events[1].Data), string(pawerr.CodeProviderUpstreamFailure))
}

func TestChatStream_BadRequests(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/chat/stream", map[string]any{"message": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
