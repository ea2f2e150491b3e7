// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/agent"
	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/memory"
	"github.com/elemarin/paw/internal/proposal"
	"github.com/elemarin/paw/internal/provider"
	"github.com/elemarin/paw/internal/server"
	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/store/sqlite"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
	"github.com/elemarin/paw/pkg/health"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeAgent records turns and answers with a canned result. Each turn is
// persisted so the conversation routes have something to read.
type fakeAgent struct {
	convs store.ConversationStore
	lanes *agent.LanePool

	mu    sync.Mutex
	reqs  []agent.RunRequest
	err   error
	calls []agent.ToolCallRecord
}

func (a *fakeAgent) Run(ctx context.Context, req agent.RunRequest) (*agent.Result, error) {
	a.mu.Lock()
	a.reqs = append(a.reqs, req)
	err, calls := a.err, a.calls
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	id := req.ConversationID
	if id == "" {
		id = "conv-new"
	}
	if _, err := a.convs.GetConversation(ctx, id); err != nil {
		if err := a.convs.CreateConversation(ctx, &store.Conversation{ID: id, Title: req.Message}); err != nil {
			return nil, err
		}
	}
	for i, content := range []string{req.Message, "echo: " + req.Message} {
		role := store.MessageRoleUser
		if i == 1 {
			role = store.MessageRoleAssistant
		}
		if err := a.convs.AppendMessage(ctx, id, &store.Message{
			ID: id + "-" + content, Role: role, Content: content,
		}); err != nil {
			return nil, err
		}
	}

	for _, c := range calls {
		if req.OnToolCall != nil {
			req.OnToolCall(c)
		}
	}
	return &agent.Result{
		ConversationID: id,
		Status:         agent.StatusFinal,
		Text:           "echo: " + req.Message,
		ToolCalls:      calls,
		Usage:          provider.Usage{InputTokens: 10, OutputTokens: 4},
		Iterations:     1,
	}, nil
}

func (a *fakeAgent) Lanes() *agent.LanePool { return a.lanes }

func (a *fakeAgent) lastRequest() agent.RunRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reqs[len(a.reqs)-1]
}

type fakeCapabilities struct {
	statuses []capability.Status
	report   capability.Report
	reloads  int
}

func (c *fakeCapabilities) List() []capability.Status { return c.statuses }

func (c *fakeCapabilities) LoadAll(context.Context) (capability.Report, error) {
	c.reloads++
	return c.report, nil
}

type passRunner struct{}

func (passRunner) Test(context.Context, *store.Proposal) (proposal.Outcome, error) {
	return proposal.Outcome{Passed: true, Output: "loaded"}, nil
}

func (passRunner) HasInterpreter(name string) bool { return name == "sh" }

type fakeHealth []health.ProviderHealth

func (h fakeHealth) Health() []health.ProviderHealth { return h }

type memSecrets struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memSecrets) Store(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[service+"/"+key] = value
	return nil
}

func (m *memSecrets) Retrieve(service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", pawerr.New(pawerr.CodeSecretNotFound, "missing")
	}
	return v, nil
}

func (m *memSecrets) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, service+"/"+key)
	return nil
}

func (m *memSecrets) List(string) ([]string, error) { return nil, nil }

type env struct {
	srv      *server.Server
	agent    *fakeAgent
	caps     *fakeCapabilities
	registry *tool.Registry
	db       *sqlite.DB
	secrets  *memSecrets
}

type envOpt func(*server.Config, *server.Services)

func withAPIKey(key string) envOpt {
	return func(c *server.Config, _ *server.Services) { c.APIKey = key }
}

func newEnv(t *testing.T, opts ...envOpt) *env {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "paw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lanes := agent.NewLanePool()
	t.Cleanup(lanes.Close)

	props, err := proposal.NewService(proposal.Config{
		Store:      db.Proposals(),
		Tester:     passRunner{},
		ScriptsDir: filepath.Join(t.TempDir(), "scripts"),
		Logger:     discard,
	})
	require.NoError(t, err)

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(tool.Func{
		Def: tool.Definition{
			Name:        "echo",
			Description: "Echo.",
			Schema:      json.RawMessage(`{"type":"object","properties":{}}`),
			Owner:       tool.OwnerBuiltin,
		},
		Fn: func(context.Context, tool.Call) (string, error) { return "ok", nil },
	}))

	e := &env{
		agent:    &fakeAgent{convs: db.Conversations(), lanes: lanes},
		caps:     &fakeCapabilities{},
		registry: reg,
		db:       db,
		secrets:  &memSecrets{},
	}
	cfg := server.Config{ListenAddr: "127.0.0.1:0", Logger: discard}
	svc := &server.Services{
		Agent:         e.agent,
		Conversations: db.Conversations(),
		Tools:         reg,
		Capabilities:  e.caps,
		Proposals:     props,
		Memory:        memory.New(db.Memory(), memory.Config{}),
		Providers:     fakeHealth{{Provider: "anthropic", Metrics: health.Metrics{Available: true}}},
		Secrets:       e.secrets,
		ValidateKey: func(_ context.Context, _ provider.ProviderName, key string) error {
			if key == "bad" {
				return pawerr.New(pawerr.CodeProviderAuthUnauthorized, "rejected")
			}
			return nil
		},
	}
	for _, o := range opts {
		o(&cfg, svc)
	}

	srv, err := server.New(cfg, svc)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	e.srv = srv
	return e
}

// do sends a JSON request and returns the recorder.
func (e *env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}
