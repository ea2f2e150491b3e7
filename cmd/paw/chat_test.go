// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/server"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestReadSSE(t *testing.T) {
	stream := ": keep-alive\n\n" +
		"event: conversation\ndata: {\"conversation_id\":\"c1\"}\n\n" +
		"event: tool_call\ndata: line one\ndata: line two\n\n" +
		"data: no event name\n\n" +
		"event: result\ndata: {}"

	type ev struct{ event, data string }
	var got []ev
	err := readSSE(strings.NewReader(stream), func(event, data string) error {
		got = append(got, ev{event, data})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []ev{
		{"conversation", `{"conversation_id":"c1"}`},
		{"tool_call", "line one\nline two"},
		{"message", "no event name"},
		{"result", "{}"},
	}, got)
}

// chatHandler streams a canned turn and records each request body.
type chatHandler struct {
	mu   sync.Mutex
	reqs []server.ChatRequest
	fail bool
}

func (h *chatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/chat/stream" {
		http.NotFound(w, r)
		return
	}
	var req server.ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	h.mu.Lock()
	h.reqs = append(h.reqs, req)
	h.mu.Unlock()

	id := req.ConversationID
	if id == "" {
		id = "conv-1"
	}
	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = fmt.Fprintf(w, "event: conversation\ndata: {\"conversation_id\":%q}\n\n", id)
	if h.fail {
		_, _ = fmt.Fprint(w, "event: error\ndata: {\"code\":\"provider.budget.exceeded\",\"message\":\"token budget exhausted\"}\n\n")
		return
	}
	_, _ = fmt.Fprint(w, "event: tool_call\ndata: {\"id\":\"t1\",\"name\":\"shell\",\"arguments\":{\"command\":\"ls\"},\"output\":\"a.txt\",\"duration\":1000000}\n\n")
	_, _ = fmt.Fprintf(w, "event: result\ndata: {\"conversation_id\":%q,\"status\":\"final\",\"text\":\"Found a.txt\",\"tool_calls\":[],\"usage\":{\"total_tokens\":42},\"iterations\":2}\n\n", id)
}

func TestChat_OneShot(t *testing.T) {
	h := &chatHandler{}
	addr := testSetupGateway(t, h)

	out, err := runCmd(t, "", "chat", "--address", addr, "--approve", "--max-iterations", "3", "-m", "openai/gpt-4o", "list", "files")
	require.NoError(t, err)

	assert.Contains(t, out, "[conversation conv-1]")
	assert.Contains(t, out, "⚙ shell")
	assert.Contains(t, out, `{"command":"ls"}`)
	assert.Contains(t, out, "paw> Found a.txt")
	assert.Contains(t, out, "[2 iterations, 42 tokens]")

	require.Len(t, h.reqs, 1)
	assert.Equal(t, "list files", h.reqs[0].Message)
	assert.True(t, h.reqs[0].Approve)
	assert.Equal(t, 3, h.reqs[0].MaxIterations)
	assert.Equal(t, "openai/gpt-4o", h.reqs[0].Model)
}

func TestChat_ErrorEvent(t *testing.T) {
	addr := testSetupGateway(t, &chatHandler{fail: true})

	_, err := runCmd(t, "", "chat", "--address", addr, "hi")
	require.Error(t, err)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeProviderBudgetExceeded))
	assert.Contains(t, err.Error(), "token budget exhausted")
}

func TestChat_REPLContinuesConversation(t *testing.T) {
	h := &chatHandler{}
	addr := testSetupGateway(t, h)

	out, err := runCmd(t, "first\n\nsecond\n/exit\nignored\n", "chat", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "Interactive chat")

	require.Len(t, h.reqs, 2)
	assert.Equal(t, "first", h.reqs[0].Message)
	assert.Empty(t, h.reqs[0].ConversationID)
	assert.Equal(t, "second", h.reqs[1].Message)
	assert.Equal(t, "conv-1", h.reqs[1].ConversationID)
}

func TestChat_REPLSurvivesFailedTurn(t *testing.T) {
	addr := testSetupGateway(t, &chatHandler{fail: true})

	out, err := runCmd(t, "one\ntwo\n", "chat", "--address", addr)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "error: token budget exhausted"))
}
