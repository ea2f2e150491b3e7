// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

//go:build unix

package builtin_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/sandbox"
	"github.com/elemarin/paw/internal/tool"
	"github.com/elemarin/paw/internal/tool/builtin"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

type shellCall struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
}

func newShell(t *testing.T) (*builtin.Shell, *sandbox.Policy) {
	t.Helper()
	policy, _ := newWorkspace(t)
	exec, err := sandbox.NewExecutor(policy,
		sandbox.NewCommandPolicy([]string{"reboot", "mkfs"}, []string{"rm -rf", "sudo"}),
		sandbox.Options{Timeout: 5 * time.Second, MaxOutput: 1000},
	)
	require.NoError(t, err)
	return builtin.NewShell(exec), policy
}

func TestShell_RunsInWorkspace(t *testing.T) {
	shell, policy := newShell(t)
	assert.Equal(t, tool.ClassCommand, shell.Definition().Class)

	out, err := shell.Execute(t.Context(), call("shell", shellCall{Command: "echo hi; pwd"}))
	require.NoError(t, err)
	assert.Equal(t, "stdout:\nhi\n"+policy.Workspace()+"\nexit_code: 0", out)
}

func TestShell_NonZeroExitIsNotAnError(t *testing.T) {
	shell, _ := newShell(t)
	out, err := shell.Execute(t.Context(), call("shell", shellCall{Command: "echo oops >&2; exit 3"}))
	require.NoError(t, err)
	assert.Equal(t, "stderr:\noops\nexit_code: 3", out)
}

func TestShell_PolicyRejections(t *testing.T) {
	shell, policy := newShell(t)
	marker := filepath.Join(policy.Workspace(), "ran")

	tests := []struct {
		name string
		args shellCall
		code pawerr.Code
	}{
		{"blocked", shellCall{Command: "touch " + marker + "; reboot"}, pawerr.CodeSandboxCommandDenied},
		{"needs approval", shellCall{Command: "sudo touch " + marker}, pawerr.CodeSandboxCommandApprovalRequired},
		{"working dir escapes", shellCall{Command: "touch " + marker, WorkingDir: "/"}, pawerr.CodeSandboxPathDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := shell.Execute(t.Context(), call("shell", tt.args))
			assert.Empty(t, out)
			assert.True(t, pawerr.HasCode(err, tt.code), "got %v", err)
			assert.NoFileExists(t, marker)
		})
	}
}

func TestShell_ApprovedCommandRuns(t *testing.T) {
	shell, policy := newShell(t)
	dir := filepath.Join(policy.Workspace(), "scratch")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	c := call("shell", shellCall{Command: "rm -rf scratch"})
	c.Approved = true
	_, err := shell.Execute(t.Context(), c)
	require.NoError(t, err)
	assert.NoDirExists(t, dir)
}

func TestShell_TimeoutReturnsPartialOutput(t *testing.T) {
	shell, _ := newShell(t)
	out, err := shell.Execute(t.Context(), call("shell", shellCall{Command: "echo started; sleep 30", Timeout: 1}))
	require.Error(t, err)
	assert.True(t, pawerr.IsTimeout(err))
	assert.Contains(t, out, "stdout:\nstarted")
	assert.Contains(t, out, "exit_code: -1")
}
