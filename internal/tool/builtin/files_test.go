// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package builtin_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/tool"
	"github.com/elemarin/paw/internal/tool/builtin"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

type fileArgs struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

func TestFiles_Definition(t *testing.T) {
	policy, _ := newWorkspace(t)
	def := builtin.NewFiles(policy, nil).Definition()

	assert.Equal(t, "files", def.Name)
	assert.Equal(t, tool.ClassFile, def.Class)
	assert.Equal(t, tool.OwnerBuiltin, def.Owner)
	assert.Contains(t, string(def.Schema), `"action"`)

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(builtin.NewFiles(policy, nil)), "schema must compile")
}

func TestFiles_ListWorkspace(t *testing.T) {
	policy, _ := newWorkspace(t)
	ws := policy.Workspace()
	writeFile(t, filepath.Join(ws, "a.txt"), "hello")
	require.NoError(t, os.Mkdir(filepath.Join(ws, "sub"), 0o755))

	out, err := builtin.NewFiles(policy, nil).Execute(t.Context(), call("files", fileArgs{Action: "list", Path: "."}))
	require.NoError(t, err)
	assert.Equal(t, "Contents of . (2 items):\n  [file] a.txt (5 bytes)\n  [dir] sub", out)
}

func TestFiles_ListCapsEntries(t *testing.T) {
	policy, _ := newWorkspace(t)
	for i := range 210 {
		writeFile(t, filepath.Join(policy.Workspace(), fmt.Sprintf("f%03d", i)), "")
	}

	out, err := builtin.NewFiles(policy, nil).Execute(t.Context(), call("files", fileArgs{Action: "list", Path: "."}))
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	assert.Equal(t, "Contents of . (210 items):", lines[0])
	assert.Len(t, lines, 201)
}

func TestFiles_WriteReadAppendDelete(t *testing.T) {
	policy, _ := newWorkspace(t)
	files := builtin.NewFiles(policy, nil)
	ctx := t.Context()

	out, err := files.Execute(ctx, call("files", fileArgs{Action: "write", Path: "notes/todo.md", Content: "héllo"}))
	require.NoError(t, err)
	assert.Equal(t, "Written 5 chars to notes/todo.md", out)

	out, err = files.Execute(ctx, call("files", fileArgs{Action: "append", Path: "notes/todo.md", Content: " world"}))
	require.NoError(t, err)
	assert.Equal(t, "Appended 6 chars to notes/todo.md", out)

	out, err = files.Execute(ctx, call("files", fileArgs{Action: "read", Path: "notes/todo.md"}))
	require.NoError(t, err)
	assert.Equal(t, "héllo world", out)

	out, err = files.Execute(ctx, call("files", fileArgs{Action: "exists", Path: "notes"}))
	require.NoError(t, err)
	assert.Equal(t, "Yes: notes exists (directory)", out)

	_, err = files.Execute(ctx, call("files", fileArgs{Action: "delete", Path: "notes"}))
	assert.True(t, pawerr.HasCode(err, pawerr.CodeToolInputInvalid), "directories are not deleted")

	out, err = files.Execute(ctx, call("files", fileArgs{Action: "delete", Path: "notes/todo.md"}))
	require.NoError(t, err)
	assert.Equal(t, "Deleted: notes/todo.md", out)

	out, err = files.Execute(ctx, call("files", fileArgs{Action: "exists", Path: "notes/todo.md"}))
	require.NoError(t, err)
	assert.Equal(t, "No: notes/todo.md does not exist", out)
}

func TestFiles_ReadTruncates(t *testing.T) {
	policy, _ := newWorkspace(t)
	writeFile(t, filepath.Join(policy.Workspace(), "big.txt"), strings.Repeat("x", 50010))

	out, err := builtin.NewFiles(policy, nil).Execute(t.Context(), call("files", fileArgs{Action: "read", Path: "big.txt"}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("x", 50000)+"\n"))
	assert.True(t, strings.HasSuffix(out, "(truncated, 50010 chars total)"))
}

func TestFiles_ReadMissing(t *testing.T) {
	policy, _ := newWorkspace(t)
	_, err := builtin.NewFiles(policy, nil).Execute(t.Context(), call("files", fileArgs{Action: "read", Path: "nope.txt"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found: nope.txt")
}

func TestFiles_Search(t *testing.T) {
	policy, _ := newWorkspace(t)
	ws := policy.Workspace()
	writeFile(t, filepath.Join(ws, "main.go"), "")
	writeFile(t, filepath.Join(ws, "pkg", "util.go"), "")
	writeFile(t, filepath.Join(ws, "README.md"), "")
	files := builtin.NewFiles(policy, nil)

	out, err := files.Execute(t.Context(), call("files", fileArgs{Action: "search", Path: ".", Pattern: "*.go"}))
	require.NoError(t, err)
	assert.Equal(t, "Found 2 matches:\n  main.go\n  pkg/util.go", out)

	out, err = files.Execute(t.Context(), call("files", fileArgs{Action: "search", Path: ".", Pattern: "*.rs"}))
	require.NoError(t, err)
	assert.Equal(t, "No files matching '*.rs' in .", out)
}

func TestFiles_EscapesAreDeniedWithoutSideEffects(t *testing.T) {
	policy, outside := newWorkspace(t)
	ws := policy.Workspace()
	require.NoError(t, os.Symlink(outside, filepath.Join(ws, "link")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(ws, "secret-link")))
	files := builtin.NewFiles(policy, nil)

	tests := []struct {
		name string
		args fileArgs
	}{
		{"traversal write", fileArgs{Action: "write", Path: "../outside/pwned.txt", Content: "x"}},
		{"traversal read", fileArgs{Action: "read", Path: "../outside/secret.txt"}},
		{"absolute read", fileArgs{Action: "read", Path: filepath.Join(outside, "secret.txt")}},
		{"symlinked dir write", fileArgs{Action: "write", Path: "link/pwned.txt", Content: "x"}},
		{"symlinked file append", fileArgs{Action: "append", Path: "secret-link", Content: "x"}},
		{"symlinked file delete", fileArgs{Action: "delete", Path: "secret-link"}},
		{"symlinked dir list", fileArgs{Action: "list", Path: "link"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := files.Execute(t.Context(), call("files", tt.args))
			require.Error(t, err)
			assert.Empty(t, out)
			assert.True(t, pawerr.HasCode(err, pawerr.CodeSandboxPathDenied), "got %v", err)
		})
	}

	entries, err := os.ReadDir(outside)
	require.NoError(t, err)
	require.Len(t, entries, 1, "nothing was created outside the workspace")
	data, err := os.ReadFile(filepath.Join(outside, "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(data))
}

func TestFiles_LogsToConfiguredLogger(t *testing.T) {
	policy, _ := newWorkspace(t)
	var buf bytes.Buffer
	files := builtin.NewFiles(policy, slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := files.Execute(t.Context(), call("files", fileArgs{Action: "write", Path: "notes.txt", Content: "hi"}))
	require.NoError(t, err)
	_, err = files.Execute(t.Context(), call("files", fileArgs{Action: "delete", Path: "notes.txt"}))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "files write")
	assert.Contains(t, buf.String(), "files delete")
}
