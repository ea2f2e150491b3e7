// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/tool"
)

type echoArgs struct {
	Text  string `json:"text" jsonschema:"description=Text to echo back"`
	Times int    `json:"times,omitempty" jsonschema:"minimum=1,maximum=5"`
}

// newEchoTool returns a tool that counts its executions.
func newEchoTool(name, owner string, runs *atomic.Int64) tool.Tool {
	return tool.Func{
		Def: tool.Definition{
			Name:        name,
			Description: "echoes text",
			Schema:      tool.SchemaFor[echoArgs](),
			Owner:       owner,
		},
		Fn: func(_ context.Context, call tool.Call) (string, error) {
			if runs != nil {
				runs.Add(1)
			}
			args, err := tool.DecodeArgs[echoArgs](call)
			if err != nil {
				return "", err
			}
			return args.Text, nil
		},
	}
}

func newFuncTool(name string, fn func(ctx context.Context, call tool.Call) (string, error)) tool.Tool {
	return tool.Func{Def: tool.Definition{Name: name, Description: name}, Fn: fn}
}

// memCalls is an in-memory store.ToolCallStore.
type memCalls struct {
	mu      sync.Mutex
	rows    map[string]*store.ToolCall
	order   []string
	failing bool
}

func newMemCalls() *memCalls {
	return &memCalls{rows: make(map[string]*store.ToolCall)}
}

var errStoreDown = errors.New("store down")

func (m *memCalls) CreateToolCall(_ context.Context, tc *store.ToolCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}
	cp := *tc
	m.rows[tc.ID] = &cp
	m.order = append(m.order, tc.ID)
	return nil
}

func (m *memCalls) CompleteToolCall(_ context.Context, tc *store.ToolCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}
	cp := *tc
	m.rows[tc.ID] = &cp
	return nil
}

func (m *memCalls) GetToolCall(_ context.Context, id string) (*store.ToolCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *tc
	return &cp, nil
}

func (m *memCalls) ListToolCalls(_ context.Context, conversationID string) ([]*store.ToolCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ToolCall
	for _, id := range m.order {
		if tc := m.rows[id]; tc.ConversationID == conversationID {
			cp := *tc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCalls) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func rawArgs(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
