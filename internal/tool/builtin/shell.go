// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package builtin

import (
	"context"
	"time"

	"github.com/elemarin/paw/internal/sandbox"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

type shellArgs struct {
	Command    string `json:"command" jsonschema:"description=The shell command to execute."`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"description=Working directory. Defaults to the workspace."`
	Timeout    int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds.,minimum=1"`
}

// Shell runs commands through the sandbox executor.
type Shell struct {
	exec *sandbox.Executor
}

func NewShell(exec *sandbox.Executor) *Shell {
	return &Shell{exec: exec}
}

func (s *Shell) Definition() tool.Definition {
	return tool.Definition{
		Name: "shell",
		Description: "Execute a shell command in the workspace. Returns stdout, stderr, and the exit code. " +
			"Destructive commands require explicit approval.",
		Schema: tool.SchemaFor[shellArgs](),
		Owner:  tool.OwnerBuiltin,
		Class:  tool.ClassCommand,
	}
}

func (s *Shell) Execute(ctx context.Context, call tool.Call) (string, error) {
	args, err := tool.DecodeArgs[shellArgs](call)
	if err != nil {
		return "", err
	}
	res, err := s.exec.Run(ctx, sandbox.Command{
		Shell:      args.Command,
		WorkingDir: args.WorkingDir,
		Timeout:    time.Duration(args.Timeout) * time.Second,
		Approved:   call.Approved,
	})
	if res == nil {
		return "", pawerr.With(err, pawerr.FieldTool("shell"))
	}
	if err != nil {
		return res.String(), pawerr.With(err, pawerr.FieldTool("shell"))
	}
	return res.String(), nil
}
