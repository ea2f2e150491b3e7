// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package builtin_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/sandbox"
	"github.com/elemarin/paw/internal/tool"
)

// newWorkspace returns a sandbox policy rooted at a fresh workspace and a
// sibling directory outside every root.
func newWorkspace(t *testing.T) (policy *sandbox.Policy, outside string) {
	t.Helper()
	base := t.TempDir()
	ws := filepath.Join(base, "workspace")
	outside = filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("top secret"), 0o600))

	policy, err := sandbox.NewPolicy(ws, nil)
	require.NoError(t, err)
	return policy, outside
}

func call(name string, args any) tool.Call {
	b, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return tool.Call{ID: "call-1", Name: name, Args: b}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
