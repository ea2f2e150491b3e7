// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
	"github.com/elemarin/paw/pkg/sdk"
)

// WasmInput is what a WASI capability reads from stdin on every call.
type WasmInput struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// wasmCapability runs a WASI command module once per call. Tools are
// declared in the manifest since a command module has no export to list them.
type wasmCapability struct {
	manifest    *Manifest
	execTimeout time.Duration

	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

func newWasmCapability(m *Manifest, execTimeout time.Duration) *wasmCapability {
	return &wasmCapability{manifest: m, execTimeout: execTimeout}
}

func (c *wasmCapability) Name() string { return c.manifest.Name }

func (c *wasmCapability) OnLoad(ctx context.Context) ([]tool.Tool, error) {
	if len(c.manifest.Tools) == 0 {
		return nil, pawerr.New(pawerr.CodeCapabilityLoadFailure, "wasm capabilities must declare tools in the manifest",
			pawerr.FieldCapability(c.manifest.Name))
	}
	bin, err := os.ReadFile(c.manifest.EntryPath())
	if err != nil {
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "reading entry point",
			pawerr.FieldPath(c.manifest.EntryPath()))
	}

	// WithCloseOnContextDone lets a cancelled or timed-out context interrupt
	// in-flight Wasm execution.
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "instantiating WASI")
	}
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, pawerr.Wrapf(err, pawerr.CodeCapabilityLoadFailure, "compiling wasm module %s", c.manifest.Name)
	}

	c.mu.Lock()
	c.runtime = rt
	c.compiled = compiled
	c.mu.Unlock()

	tools := make([]tool.Tool, 0, len(c.manifest.Tools))
	for _, spec := range c.manifest.Tools {
		s, err := spec.sdkSpec()
		if err != nil {
			return nil, err
		}
		name := s.Name
		tools = append(tools, tool.Func{
			Def: specDefinition(s),
			Fn: func(ctx context.Context, call tool.Call) (string, error) {
				return c.call(ctx, name, call.Args)
			},
		})
	}
	return tools, nil
}

func (c *wasmCapability) OnUnload(ctx context.Context) error {
	c.mu.Lock()
	rt := c.runtime
	c.runtime = nil
	c.compiled = nil
	c.mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Close(ctx)
}

func (c *wasmCapability) call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	c.mu.Lock()
	rt, compiled := c.runtime, c.compiled
	c.mu.Unlock()
	if rt == nil {
		return "", pawerr.Errorf(pawerr.CodeCapabilityRuntimeFailure, "capability %s is not loaded", c.manifest.Name)
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	input, err := json.Marshal(WasmInput{Tool: name, Args: args})
	if err != nil {
		return "", pawerr.Wrap(err, pawerr.CodeToolSchemaInvalid, "encoding wasm input")
	}

	if c.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.execTimeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	// An empty name makes every instance anonymous so calls never collide.
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(c.manifest.Name, name).
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if mod != nil {
		defer func() { _ = mod.Close(context.Background()) }()
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			if ctx.Err() != nil {
				return "", pawerr.Wrapf(ctx.Err(), pawerr.CodeToolExecuteTimeout, "%s timed out", name)
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return strings.TrimSpace(stdout.String()), pawerr.Errorf(pawerr.CodeCapabilityRuntimeFailure,
				"calling %s in module %s: %s", name, c.manifest.Name, msg)
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ToolSpec declares a tool in a manifest, for runtimes that cannot list
// their own tools.
type ToolSpec struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Schema      map[string]any `yaml:"schema,omitempty" json:"schema,omitempty"`
}

func (s ToolSpec) sdkSpec() (sdk.Spec, error) {
	out := sdk.Spec{Name: s.Name, Description: s.Description}
	if len(s.Schema) > 0 {
		raw, err := json.Marshal(s.Schema)
		if err != nil {
			return out, pawerr.Wrapf(err, pawerr.CodeCapabilityManifestInvalid, "tool %s: encoding schema", s.Name)
		}
		out.Schema = string(raw)
	}
	return out, nil
}
