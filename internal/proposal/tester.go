// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/sandbox"
	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Outcome is the result of the isolated test stage.
type Outcome struct {
	Passed bool
	// Output is recorded verbatim on the proposal.
	Output string
}

type TesterConfig struct {
	// ScratchDir parents the per-test temporary directories. Empty uses
	// the system temp dir.
	ScratchDir string
	Timeout    time.Duration
	// Interpreters maps script runtime names to executables.
	Interpreters map[string]string
	Commands     *sandbox.CommandPolicy
	Sandbox      sandbox.Options
	Logger       *slog.Logger
}

// Tester runs proposals away from the live tool registry. Plugins are
// loaded by a throwaway loader into a private registry; scripts run in the
// sandbox executor confined to their own temporary directory.
type Tester struct {
	cfg TesterConfig
}

func NewTester(cfg TesterConfig) *Tester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Commands == nil {
		cfg.Commands = sandbox.NewCommandPolicy(nil, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tester{cfg: cfg}
}

func (t *Tester) HasInterpreter(name string) bool {
	_, ok := t.cfg.Interpreters[name]
	return ok
}

func (t *Tester) Test(ctx context.Context, p *store.Proposal) (Outcome, error) {
	scratch, err := os.MkdirTemp(t.cfg.ScratchDir, "paw-proposal-")
	if err != nil {
		return Outcome{}, pawerr.Wrap(err, pawerr.CodeProposalTestFailure, "creating test directory",
			pawerr.FieldProposalID(p.ID))
	}
	defer os.RemoveAll(scratch)

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	if p.Kind == store.ProposalKindScript {
		return t.testScript(ctx, scratch, p)
	}
	return t.testPlugin(ctx, scratch, p)
}

func (t *Tester) testPlugin(ctx context.Context, scratch string, p *store.Proposal) (Outcome, error) {
	if _, err := WriteBundle(scratch, p); err != nil {
		if pawerr.IsInvalidInput(err) {
			return Outcome{Output: "bundle rejected: " + err.Error()}, nil
		}
		return Outcome{}, pawerr.Wrap(err, pawerr.CodeProposalTestFailure, "writing test bundle",
			pawerr.FieldProposalID(p.ID))
	}

	reg := tool.NewRegistry()
	loader, err := capability.NewLoader(capability.LoaderConfig{
		Dir:         scratch,
		Registry:    reg,
		Builtins:    map[string]capability.BuiltinFactory{},
		ExecTimeout: t.cfg.Timeout,
		Logger:      t.cfg.Logger,
	})
	if err != nil {
		return Outcome{}, err
	}
	defer func() { _ = loader.Close(context.WithoutCancel(ctx)) }()

	if err := loader.Activate(ctx, p.Name); err != nil {
		return Outcome{Output: "load failed: " + err.Error()}, nil
	}
	st, _ := loader.Get(p.Name)
	if len(st.Tools) == 0 {
		return Outcome{Output: "loaded, but the capability exposes no tools"}, nil
	}
	return Outcome{
		Passed: true,
		Output: fmt.Sprintf("loaded %s (%s) with tools: %s", p.Name, p.Runtime, strings.Join(st.Tools, ", ")),
	}, nil
}

func (t *Tester) testScript(ctx context.Context, scratch string, p *store.Proposal) (Outcome, error) {
	interpreter, ok := t.cfg.Interpreters[p.Runtime]
	if !ok {
		return Outcome{Output: fmt.Sprintf("no interpreter configured for %q", p.Runtime)}, nil
	}
	path, err := WriteScript(scratch, p)
	if err != nil {
		return Outcome{}, pawerr.Wrap(err, pawerr.CodeProposalTestFailure, "writing test script",
			pawerr.FieldProposalID(p.ID))
	}

	policy, err := sandbox.NewPolicy(scratch, nil)
	if err != nil {
		return Outcome{}, err
	}
	opts := t.cfg.Sandbox
	opts.Timeout = t.cfg.Timeout
	exec, err := sandbox.NewExecutor(policy, t.cfg.Commands, opts)
	if err != nil {
		return Outcome{}, err
	}

	res, err := exec.Run(ctx, sandbox.Command{
		Argv:       []string{interpreter, path},
		WorkingDir: scratch,
		Timeout:    t.cfg.Timeout,
	})
	switch {
	case res == nil && err != nil:
		return Outcome{Output: "not run: " + err.Error()}, nil
	case err != nil:
		return Outcome{Output: res.String() + "\n" + err.Error()}, nil
	}
	return Outcome{Passed: res.ExitCode == 0, Output: res.String()}, nil
}
