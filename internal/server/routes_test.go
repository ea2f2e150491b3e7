// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/server"
	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestChat(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/chat", map[string]any{
		"conversation_id": "c1",
		"message":         "hello",
		"approve":         true,
		"max_iterations":  3,
		"model":           "openai/gpt-4o",
	})
	requireStatus(t, w, http.StatusOK)

	res := decode[server.ChatResult](t, w)
	assert.Equal(t, "c1", res.ConversationID)
	assert.Equal(t, "final", string(res.Status))
	assert.Equal(t, "echo: hello", res.Text)
	assert.NotNil(t, res.ToolCalls)
	assert.Equal(t, 14, res.Usage.TotalTokens)

	req := e.agent.lastRequest()
	assert.True(t, req.Approve)
	assert.Equal(t, 3, req.Limits.MaxIterations)
	assert.Equal(t, "openai/gpt-4o", req.Model)
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestChat_ErrorStatusFromCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"budget", pawerr.New(pawerr.CodeProviderBudgetExceeded, "over budget"), http.StatusTooManyRequests},
		{"upstream", pawerr.New(pawerr.CodeProviderUpstreamFailure, "all providers failed"), http.StatusBadGateway},
		{"not found", pawerr.New(pawerr.CodeStoreConversationGetNotFound, "gone"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.agent.err = tt.err
			w := e.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": "hi"})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), string(pawerr.CodeOf(tt.err)))
		})
	}
}

func TestConversations(t *testing.T) {
	e := newEnv(t)
	for _, id := range []string{"c1", "c2"} {
		requireStatus(t, e.do(t, http.MethodPost, "/api/v1/chat", map[string]any{
			"conversation_id": id, "message": "hi " + id,
		}), http.StatusOK)
	}

	w := e.do(t, http.MethodGet, "/api/v1/conversations?limit=10", nil)
	requireStatus(t, w, http.StatusOK)
	list := decode[struct {
		Conversations []server.ConversationSummary `json:"conversations"`
	}](t, w)
	assert.Len(t, list.Conversations, 2)

	w = e.do(t, http.MethodGet, "/api/v1/conversations/c1", nil)
	requireStatus(t, w, http.StatusOK)
	detail := decode[server.ConversationDetail](t, w)
	assert.Equal(t, "c1", detail.ID)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "hi c1", detail.Messages[0].Content)
	assert.Equal(t, "echo: hi c1", detail.Messages[1].Content)

	requireStatus(t, e.do(t, http.MethodDelete, "/api/v1/conversations/c1", nil), http.StatusNoContent)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/conversations/c1", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/api/v1/conversations/nope", nil).Code)
}

func TestTools(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/api/v1/tools", nil)
	requireStatus(t, w, http.StatusOK)

	body := decode[struct {
		Tools []server.ToolView `json:"tools"`
	}](t, w)
	require.Len(t, body.Tools, 1)
	assert.Equal(t, "echo", body.Tools[0].Name)
	assert.Equal(t, "builtin", body.Tools[0].Owner)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(body.Tools[0].Schema))
}

func TestCapabilities_ListAndReload(t *testing.T) {
	e := newEnv(t)
	e.caps.statuses = []capability.Status{{Name: "weather", Version: "0.1.0", Runtime: "yaegi", Tools: []string{"forecast"}}}
	e.caps.report = capability.Report{
		Loaded: []string{"weather"},
		Failed: map[string]error{"broken": pawerr.New(pawerr.CodeCapabilityManifestInvalid, "bad manifest")},
	}

	w := e.do(t, http.MethodGet, "/api/v1/capabilities", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"weather"`)

	w = e.do(t, http.MethodPost, "/api/v1/capabilities/reload", nil)
	requireStatus(t, w, http.StatusOK)
	report := decode[server.ReloadReport](t, w)
	assert.Equal(t, []string{"weather"}, report.Loaded)
	assert.Contains(t, report.Failed["broken"], "bad manifest")
	assert.Equal(t, 1, e.caps.reloads)
}

func TestProposals_ApprovalFlow(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/proposals", map[string]any{
		"name":   "weather",
		"source": "package weather",
	})
	requireStatus(t, w, http.StatusCreated)
	p := decode[server.ProposalView](t, w)
	assert.Equal(t, store.ProposalDraft, p.Status)
	assert.Equal(t, "package weather", p.Source)
	path := "/api/v1/proposals/" + p.ID

	// Approval needs a passing test first.
	w = e.do(t, http.MethodPost, path+"/approve", map[string]any{"approver": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), string(pawerr.CodeProposalTransitionInvalid))

	w = e.do(t, http.MethodPost, path+"/test", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, store.ProposalTestedPass, decode[server.ProposalView](t, w).Status)

	w = e.do(t, http.MethodPost, path+"/approve", map[string]any{"approver": "alice"})
	requireStatus(t, w, http.StatusOK)
	p = decode[server.ProposalView](t, w)
	assert.Equal(t, store.ProposalApproved, p.Status)
	assert.Equal(t, "alice", p.ApprovedBy)

	w = e.do(t, http.MethodGet, "/api/v1/proposals?status=approved", nil)
	requireStatus(t, w, http.StatusOK)
	list := decode[struct {
		Proposals []server.ProposalView `json:"proposals"`
	}](t, w)
	require.Len(t, list.Proposals, 1)
	assert.Empty(t, list.Proposals[0].Source)

	w = e.do(t, http.MethodGet, path, nil)
	requireStatus(t, w, http.StatusOK)
	p = decode[server.ProposalView](t, w)
	require.Len(t, p.History, 3)
	assert.Equal(t, "api", p.History[0].Actor)
}

func TestProposals_ApproveRequiresApprover(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/proposals", map[string]any{"name": "x", "source": "s"})
	requireStatus(t, w, http.StatusCreated)
	id := decode[server.ProposalView](t, w).ID

	w = e.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/approve", map[string]any{"approver": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestProposals_Reject(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/proposals", map[string]any{"name": "x", "source": "s"})
	requireStatus(t, w, http.StatusCreated)
	id := decode[server.ProposalView](t, w).ID

	w = e.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/reject", map[string]any{"reason": "not needed"})
	requireStatus(t, w, http.StatusOK)
	p := decode[server.ProposalView](t, w)
	assert.Equal(t, store.ProposalRejected, p.Status)
	assert.Equal(t, "not needed", p.RejectReason)

	// Terminal.
	w = e.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/test", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProposals_InvalidSubmission(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/proposals", map[string]any{"name": "Bad Name!", "source": "s"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/proposals/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemory(t *testing.T) {
	e := newEnv(t)

	requireStatus(t, e.do(t, http.MethodPut, "/api/v1/memory/editor", map[string]any{"value": "helix"}), http.StatusNoContent)
	requireStatus(t, e.do(t, http.MethodPost, "/api/v1/memory/log", map[string]any{"text": "deployed v2"}), http.StatusNoContent)

	w := e.do(t, http.MethodGet, "/api/v1/memory", nil)
	requireStatus(t, w, http.StatusOK)
	list := decode[struct {
		Scope   string                   `json:"scope"`
		Entries []server.MemoryEntryView `json:"entries"`
	}](t, w)
	assert.NotEmpty(t, list.Scope)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "helix", list.Entries[0].Value)

	w = e.do(t, http.MethodGet, "/api/v1/memory/context", nil)
	requireStatus(t, w, http.StatusOK)
	block := decode[map[string]string](t, w)["block"]
	assert.Contains(t, block, "editor")
	assert.Contains(t, block, "deployed v2")

	requireStatus(t, e.do(t, http.MethodDelete, "/api/v1/memory/editor", nil), http.StatusNoContent)
	w = e.do(t, http.MethodGet, "/api/v1/memory", nil)
	assert.Empty(t, decode[struct {
		Entries []server.MemoryEntryView `json:"entries"`
	}](t, w).Entries)
}

func TestMemory_ScopesAreIsolated(t *testing.T) {
	e := newEnv(t)
	requireStatus(t, e.do(t, http.MethodPut, "/api/v1/memory/k", map[string]any{"value": "a", "scope": "work"}), http.StatusNoContent)

	w := e.do(t, http.MethodGet, "/api/v1/memory?scope=home", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Empty(t, decode[struct {
		Entries []server.MemoryEntryView `json:"entries"`
	}](t, w).Entries)

	w = e.do(t, http.MethodGet, "/api/v1/memory?scope=work", nil)
	assert.Len(t, decode[struct {
		Entries []server.MemoryEntryView `json:"entries"`
	}](t, w).Entries, 1)
}

func TestProviderHealth(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/api/v1/providers/health", nil)
	requireStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"anthropic"`)

	bare := newEnv(t, func(_ *server.Config, s *server.Services) { s.Providers = nil })
	assert.Equal(t, http.StatusServiceUnavailable, bare.do(t, http.MethodGet, "/api/v1/providers/health", nil).Code)
}
