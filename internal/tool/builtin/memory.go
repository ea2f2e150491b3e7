// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/elemarin/paw/internal/memory"
	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Memories is the part of memory.Service the memory tool drives.
type Memories interface {
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, error)
	Forget(ctx context.Context, scope, key string) error
	List(ctx context.Context, scope string) ([]*store.MemoryEntry, error)
	Log(ctx context.Context, scope, text string) error
}

var _ Memories = (*memory.Service)(nil)

type memoryArgs struct {
	Action string `json:"action" jsonschema:"description=The memory action.,enum=remember,enum=recall,enum=forget,enum=list,enum=log"`
	Key    string `json:"key,omitempty" jsonschema:"description=Memory key (for remember/recall/forget)."`
	Value  string `json:"value,omitempty" jsonschema:"description=Value to store (for remember) or text to log (for log)."`
	Scope  string `json:"scope,omitempty" jsonschema:"description=Optional memory scope."`
}

// Memory lets the agent keep facts between conversations.
type Memory struct {
	mem Memories
}

func NewMemory(mem Memories) *Memory {
	return &Memory{mem: mem}
}

func (m *Memory) Definition() tool.Definition {
	return tool.Definition{
		Name: "memory",
		Description: "Persistent memory. Actions: 'remember' (store key/value), 'recall' (get by key), " +
			"'forget' (delete key), 'list' (show all memories), 'log' (append a note to today's log).",
		Schema: tool.SchemaFor[memoryArgs](),
		Owner:  tool.OwnerBuiltin,
		Class:  tool.ClassOther,
	}
}

func (m *Memory) Execute(ctx context.Context, call tool.Call) (string, error) {
	args, err := tool.DecodeArgs[memoryArgs](call)
	if err != nil {
		return "", err
	}
	switch args.Action {
	case "remember":
		if err := m.mem.Remember(ctx, args.Scope, args.Key, args.Value); err != nil {
			return "", err
		}
		return fmt.Sprintf("Remembered: %s = %s", args.Key, args.Value), nil

	case "recall":
		v, err := m.mem.Recall(ctx, args.Scope, args.Key)
		if pawerr.IsNotFound(err) {
			return fmt.Sprintf("No memory found for key '%s'.", args.Key), nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", args.Key, v), nil

	case "forget":
		if err := m.mem.Forget(ctx, args.Scope, args.Key); err != nil {
			return "", err
		}
		return "Forgot: " + args.Key, nil

	case "list":
		entries, err := m.mem.List(ctx, args.Scope)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "Memory is empty.", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Stored memories (%d):", len(entries))
		for _, e := range entries {
			fmt.Fprintf(&sb, "\n  %s: %s", e.Key, e.Value)
		}
		return sb.String(), nil

	case "log":
		if err := m.mem.Log(ctx, args.Scope, args.Value); err != nil {
			return "", err
		}
		return "Logged.", nil

	default:
		return "", pawerr.Errorf(pawerr.CodeToolInputInvalid, "unknown action %q", args.Action)
	}
}
