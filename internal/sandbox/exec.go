// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Options configures an Executor.
type Options struct {
	// Timeout is the hard wall-clock limit applied when a Command sets none.
	Timeout time.Duration
	// MaxOutput caps the captured bytes per stream.
	MaxOutput int
	// Isolation is IsolationNone or IsolationBwrap.
	Isolation string
	Logger    *slog.Logger
}

// Command is a single process execution request.
type Command struct {
	// Shell is run through the platform shell. Ignored when Argv is set.
	Shell string
	// Argv runs a program directly. Argv[0] is screened by the CommandPolicy
	// together with the remaining arguments.
	Argv       []string
	WorkingDir string
	Timeout    time.Duration
	Approved   bool
	Env        map[string]string
	Stdin      io.Reader
}

func (c Command) display() string {
	if len(c.Argv) > 0 {
		return strings.Join(c.Argv, " ")
	}
	return c.Shell
}

// ExecResult is the captured outcome of a command.
type ExecResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// String renders the result in the observation format fed back to the model.
func (r *ExecResult) String() string {
	var parts []string
	if s := strings.TrimSpace(r.Stdout); s != "" {
		parts = append(parts, "stdout:\n"+s)
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		parts = append(parts, "stderr:\n"+s)
	}
	parts = append(parts, fmt.Sprintf("exit_code: %d", r.ExitCode))
	return strings.Join(parts, "\n")
}

// Executor runs commands that pass the command and path policies.
type Executor struct {
	paths    *Policy
	commands *CommandPolicy
	opts     Options
}

func NewExecutor(paths *Policy, commands *CommandPolicy, opts Options) (*Executor, error) {
	if paths == nil || commands == nil {
		return nil, pawerr.New(pawerr.CodeSandboxConfigInvalid, "sandbox: executor requires path and command policies")
	}
	switch opts.Isolation {
	case "", IsolationNone, IsolationBwrap:
	default:
		return nil, pawerr.Errorf(pawerr.CodeSandboxIsolationUnsupported, "unknown isolation mode %q", opts.Isolation)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = 10000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{paths: paths, commands: commands, opts: opts}, nil
}

// Paths returns the path policy the executor resolves working directories with.
func (e *Executor) Paths() *Policy { return e.paths }

// Run screens, spawns, and waits for cmd.
//
// Policy rejections return before any process exists. Once started, the
// process is only killed by the hard timeout: caller cancellation is observed
// before the spawn, not mid-run. A timeout returns both the partial result
// and a sandbox.command.timeout error.
func (e *Executor) Run(ctx context.Context, cmd Command) (*ExecResult, error) {
	if err := e.commands.Check(cmd.display(), cmd.Approved); err != nil {
		e.opts.Logger.Warn("sandbox command rejected",
			"command", cmd.display(),
			"code", pawerr.CodeOf(err),
			"security", true,
		)
		return nil, err
	}

	dir, err := e.paths.Resolve(cmd.WorkingDir)
	if err != nil {
		e.opts.Logger.Warn("sandbox working directory rejected", "dir", cmd.WorkingDir, "security", true)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeSandboxCommandFailure, "sandbox: cancelled before start")
	}

	argv := cmd.Argv
	if len(argv) == 0 {
		argv = append(defaultShell(), cmd.Shell)
	}
	argv, err = wrapArgs(e.opts.Isolation, e.paths.Roots(), dir, argv)
	if err != nil {
		return nil, err
	}

	timeout := cmd.Timeout
	if timeout <= 0 || timeout > e.opts.Timeout {
		timeout = e.opts.Timeout
	}

	stdout := newBoundedBuffer(e.opts.MaxOutput)
	stderr := newBoundedBuffer(e.opts.MaxOutput)

	proc := exec.Command(argv[0], argv[1:]...)
	proc.Dir = dir
	proc.Env = append(filterEnv(cmd.Env), "PWD="+dir)
	proc.Stdin = cmd.Stdin
	proc.Stdout = stdout
	proc.Stderr = stderr
	proc.WaitDelay = time.Second
	setProcessGroup(proc)

	start := time.Now()
	if err := proc.Start(); err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeSandboxCommandFailure, "sandbox: starting %q", argv[0])
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		killProcessGroup(proc)
		waitErr = <-done
	}

	result := &ExecResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated() || stderr.truncated(),
		Duration:  time.Since(start),
	}

	if timedOut {
		result.TimedOut = true
		result.ExitCode = -1
		e.opts.Logger.Warn("sandbox command timed out", "command", cmd.display(), "timeout", timeout)
		return result, pawerr.Errorf(pawerr.CodeSandboxCommandTimeout, "command timed out after %s", timeout)
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(waitErr, exec.ErrWaitDelay):
		// The command exited but a descendant kept its output open.
		killProcessGroup(proc)
	default:
		return result, pawerr.Wrapf(waitErr, pawerr.CodeSandboxCommandFailure, "sandbox: running %q", argv[0])
	}

	e.opts.Logger.Debug("sandbox command finished",
		"command", cmd.display(),
		"exit_code", result.ExitCode,
		"duration", result.Duration,
		"truncated", result.Truncated,
	)
	return result, nil
}
