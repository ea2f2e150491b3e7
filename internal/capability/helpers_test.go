// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/tool"
)

const shoutSource = `package main

import (
	"fmt"
	"strings"

	"github.com/elemarin/paw/pkg/sdk"
)

func Tools() []sdk.Spec {
	return []sdk.Spec{{
		Name:        "shout",
		Description: "Upper-case the input.",
		Schema:      "{\"type\":\"object\",\"properties\":{\"text\":{\"type\":\"string\"}},\"required\":[\"text\"]}",
	}}
}

func Run(tool string, args map[string]any) (string, error) {
	if tool != "shout" {
		return "", fmt.Errorf("unknown tool %s", tool)
	}
	return strings.ToUpper(fmt.Sprint(args["text"])), nil
}
`

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeBundle creates dir/name with the given manifest and extra files.
func writeBundle(t *testing.T, dir, name, manifest string, files map[string][]byte) {
	t.Helper()
	bundle := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(bundle, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "capability.yaml"), []byte(manifest), 0o600))
	for file, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(bundle, file), data, 0o600))
	}
}

func newLoader(t *testing.T, dir string, builtins map[string]capability.BuiltinFactory) (*capability.Loader, *tool.Registry) {
	t.Helper()
	reg := tool.NewRegistry()
	loader, err := capability.NewLoader(capability.LoaderConfig{
		Dir:      dir,
		Registry: reg,
		Builtins: builtins,
		Logger:   discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = loader.Close(context.Background()) })
	return loader, reg
}

func execute(t *testing.T, reg *tool.Registry, name string, args any) (string, error) {
	t.Helper()
	tl, ok := reg.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return tl.Execute(context.Background(), tool.Call{ID: "c1", Name: name, Args: raw})
}

// funcCapability is a builtin capability assembled from closures.
type funcCapability struct {
	name   string
	load   func(ctx context.Context) ([]tool.Tool, error)
	unload func(ctx context.Context) error
}

func (c funcCapability) Name() string { return c.name }

func (c funcCapability) OnLoad(ctx context.Context) ([]tool.Tool, error) { return c.load(ctx) }

func (c funcCapability) OnUnload(ctx context.Context) error {
	if c.unload == nil {
		return nil
	}
	return c.unload(ctx)
}

func staticTool(name, out string) tool.Tool {
	return tool.Func{
		Def: tool.Definition{Name: name, Description: "test tool"},
		Fn:  func(context.Context, tool.Call) (string, error) { return out, nil },
	}
}
