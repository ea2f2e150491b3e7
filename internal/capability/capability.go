// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package capability discovers, loads, and hot-activates tool bundles from
// the capabilities directory. Each bundle runs under one of four runtimes:
// compiled-in builtin factories, yaegi-interpreted Go source, WASI modules
// executed with wazero, or go-plugin subprocesses.
package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elemarin/paw/internal/tool"
	"github.com/elemarin/paw/pkg/sdk"
)

// Capability is a loaded bundle. OnLoad returns the tools to register;
// OnUnload releases whatever OnLoad acquired.
type Capability interface {
	Name() string
	OnLoad(ctx context.Context) ([]tool.Tool, error)
	OnUnload(ctx context.Context) error
}

// BuiltinFactory builds a compiled-in capability from its manifest.
type BuiltinFactory func(m *Manifest) Capability

// DefaultBuiltins returns the compiled-in capabilities shipped with paw.
func DefaultBuiltins() map[string]BuiltinFactory {
	return map[string]BuiltinFactory{
		"hello_world": func(*Manifest) Capability { return helloWorld{} },
	}
}

// Status is a point-in-time view of one bundle.
type Status struct {
	Name        string   `json:"name"`
	Dir         string   `json:"dir"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Runtime     Runtime  `json:"runtime"`
	State       State    `json:"state"`
	Tools       []string `json:"tools,omitempty"`
	HotReload   bool     `json:"hot_reload"`
	Error       string   `json:"error,omitempty"`
}

type helloWorld struct{}

type helloArgs struct {
	Name string `json:"name,omitempty" jsonschema:"description=Who to greet. Default: World"`
}

func (helloWorld) Name() string { return "hello_world" }

func (helloWorld) OnLoad(context.Context) ([]tool.Tool, error) {
	return []tool.Tool{tool.Func{
		Def: tool.Definition{
			Name:        "hello",
			Description: "Say hello! A simple example tool to demonstrate the capability system.",
			Schema:      tool.SchemaFor[helloArgs](),
			Class:       tool.ClassOther,
		},
		Fn: func(_ context.Context, call tool.Call) (string, error) {
			args, err := tool.DecodeArgs[helloArgs](call)
			if err != nil {
				return "", err
			}
			if args.Name == "" {
				args.Name = "World"
			}
			return fmt.Sprintf("Hello, %s! PAW is running and capabilities are working!", args.Name), nil
		},
	}}, nil
}

func (helloWorld) OnUnload(context.Context) error { return nil }

// ownedTool pins the registry owner of a capability tool so that unloading
// the bundle removes exactly its tools.
type ownedTool struct {
	tool.Tool
	owner string
}

func (t ownedTool) Definition() tool.Definition {
	def := t.Tool.Definition()
	def.Owner = t.owner
	if def.Class == "" {
		def.Class = tool.ClassOther
	}
	return def
}

// specDefinition converts an author-facing Spec to a tool definition.
func specDefinition(s sdk.Spec) tool.Definition {
	schema := json.RawMessage(s.Schema)
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return tool.Definition{
		Name:        s.Name,
		Description: s.Description,
		Schema:      schema,
		Class:       tool.ClassOther,
	}
}
