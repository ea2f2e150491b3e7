// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package proposal runs self-authored code through draft, isolated test,
// human approval, and activation. Every state change is a compare-and-swap
// in storage, so concurrent actors cannot skip a state.
package proposal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// ActorAgent is recorded for transitions the agent performs.
const ActorAgent = "agent"

// transitions is the complete state machine. rejected and active are
// terminal; tested-fail can only be rejected.
var transitions = map[store.ProposalStatus][]store.ProposalStatus{
	store.ProposalDraft:      {store.ProposalTestedPass, store.ProposalTestedFail, store.ProposalRejected},
	store.ProposalTestedPass: {store.ProposalApproved, store.ProposalRejected},
	store.ProposalTestedFail: {store.ProposalRejected},
	store.ProposalApproved:   {store.ProposalActive, store.ProposalRejected},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to store.ProposalStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Draft is a new proposal as submitted by the agent.
type Draft struct {
	Name        string
	Description string
	Kind        store.ProposalKind
	// Runtime is yaegi, wasm or executable for plugins, and an interpreter
	// name for scripts.
	Runtime string
	Source  string
	// Author defaults to ActorAgent.
	Author string
}

// Activator installs approved plugins.
type Activator interface {
	Dir() string
	Activate(ctx context.Context, name string) error
}

// Runner executes the isolated test stage.
type Runner interface {
	Test(ctx context.Context, p *store.Proposal) (Outcome, error)
	HasInterpreter(name string) bool
}

type Config struct {
	Store     store.ProposalStore
	Tester    Runner
	Activator Activator
	// ScriptsDir receives activated scripts.
	ScriptsDir string
	Now        func() time.Time
	Logger     *slog.Logger
}

type Service struct {
	store      store.ProposalStore
	tester     Runner
	activator  Activator
	scriptsDir string
	now        func() time.Time
	logger     *slog.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, pawerr.New(pawerr.CodeProposalInputInvalid, "proposal service requires a store")
	}
	if cfg.Tester == nil {
		return nil, pawerr.New(pawerr.CodeProposalInputInvalid, "proposal service requires a tester")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:      cfg.Store,
		tester:     cfg.Tester,
		activator:  cfg.Activator,
		scriptsDir: cfg.ScriptsDir,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}, nil
}

// Submit validates d and stores it as a draft.
func (s *Service) Submit(ctx context.Context, d Draft) (*store.Proposal, error) {
	d.Name = strings.TrimSpace(d.Name)
	if !capability.ValidName(d.Name) {
		return nil, pawerr.Errorf(pawerr.CodeProposalInputInvalid,
			"name %q must start with a letter and contain only letters, digits, '_' or '-'", d.Name)
	}
	if strings.TrimSpace(d.Source) == "" {
		return nil, pawerr.New(pawerr.CodeProposalInputInvalid, "source must not be empty")
	}
	if d.Kind == "" {
		d.Kind = store.ProposalKindPlugin
	}
	switch d.Kind {
	case store.ProposalKindPlugin:
		if d.Runtime == "" {
			d.Runtime = string(capability.RuntimeYaegi)
		}
		switch capability.Runtime(d.Runtime) {
		case capability.RuntimeYaegi, capability.RuntimeWasm, capability.RuntimeExecutable:
		default:
			return nil, pawerr.Errorf(pawerr.CodeProposalInputInvalid,
				"plugin runtime %q must be yaegi, wasm or executable", d.Runtime)
		}
	case store.ProposalKindScript:
		if d.Runtime == "" {
			d.Runtime = "sh"
		}
		if !s.tester.HasInterpreter(d.Runtime) {
			return nil, pawerr.Errorf(pawerr.CodeProposalInputInvalid, "no interpreter configured for %q", d.Runtime)
		}
	default:
		return nil, pawerr.Errorf(pawerr.CodeProposalInputInvalid, "kind %q must be plugin or script", d.Kind)
	}
	if d.Author == "" {
		d.Author = ActorAgent
	}

	now := s.now()
	p := &store.Proposal{
		ID:          uuid.NewString(),
		Name:        d.Name,
		Description: d.Description,
		Kind:        d.Kind,
		Runtime:     d.Runtime,
		Source:      d.Source,
		Status:      store.ProposalDraft,
		History: []store.ProposalEvent{{
			To:    store.ProposalDraft,
			Actor: d.Author,
			At:    now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateProposal(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("proposal submitted", "id", p.ID, "name", p.Name, "kind", p.Kind, "runtime", p.Runtime)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.Proposal, error) {
	return s.store.GetProposal(ctx, id)
}

// List returns proposals with the given status, or all of them for "".
func (s *Service) List(ctx context.Context, status store.ProposalStatus) ([]*store.Proposal, error) {
	return s.store.ListProposals(ctx, status)
}

// Test runs the isolated test stage on a draft. The outcome is recorded as
// tested-pass or tested-fail together with the captured output; a failing
// test is not an error of the call.
func (s *Service) Test(ctx context.Context, id, actor string) (*store.Proposal, error) {
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != store.ProposalDraft {
		return nil, transitionErr(p, store.ProposalTestedPass)
	}

	outcome, err := s.tester.Test(ctx, p)
	if err != nil {
		return nil, err
	}

	to := store.ProposalTestedFail
	if outcome.Passed {
		to = store.ProposalTestedPass
	}
	updated, err := s.transition(ctx, p, to, actorOr(actor), "", func(p *store.Proposal) {
		p.TestOutput = outcome.Output
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("proposal tested", "id", id, "status", updated.Status)
	return updated, nil
}

// Approve records a human approval of a passing proposal. It is only
// reachable from the CLI and HTTP API.
func (s *Service) Approve(ctx context.Context, id, approver string) (*store.Proposal, error) {
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return nil, pawerr.New(pawerr.CodeProposalInputInvalid, "approval requires a named approver",
			pawerr.FieldProposalID(id))
	}
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, p, store.ProposalApproved, approver, "", func(p *store.Proposal) {
		p.ApprovedBy = approver
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("proposal approved", "id", id, "approver", approver)
	return updated, nil
}

// Reject moves any non-terminal proposal to rejected.
func (s *Service) Reject(ctx context.Context, id, reason, actor string) (*store.Proposal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pawerr.New(pawerr.CodeProposalInputInvalid, "rejection requires a reason",
			pawerr.FieldProposalID(id))
	}
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, p, store.ProposalRejected, actorOr(actor), reason, func(p *store.Proposal) {
		p.RejectReason = reason
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("proposal rejected", "id", id, "reason", reason)
	return updated, nil
}

// Activate installs an approved proposal. Plugins are written into the
// capabilities directory and hot-activated; scripts are written into the
// scripts directory. On failure the proposal stays approved.
func (s *Service) Activate(ctx context.Context, id, actor string) (*store.Proposal, error) {
	p, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(p.Status, store.ProposalActive) {
		return nil, transitionErr(p, store.ProposalActive)
	}

	if err := s.install(ctx, p); err != nil {
		s.logger.Error("proposal activation failed", "id", id, "error", err)
		return nil, err
	}

	updated, err := s.transition(ctx, p, store.ProposalActive, actorOr(actor), "", nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("proposal activated", "id", id, "name", p.Name)
	return updated, nil
}

func (s *Service) install(ctx context.Context, p *store.Proposal) error {
	switch p.Kind {
	case store.ProposalKindScript:
		if s.scriptsDir == "" {
			return pawerr.New(pawerr.CodeProposalActivateFailure, "no scripts directory configured",
				pawerr.FieldProposalID(p.ID))
		}
		if _, err := WriteScript(s.scriptsDir, p); err != nil {
			return activateErr(p, err)
		}
		return nil
	default:
		if s.activator == nil {
			return pawerr.New(pawerr.CodeProposalActivateFailure, "no capability loader configured",
				pawerr.FieldProposalID(p.ID))
		}
		if err := InstallBundle(s.activator.Dir(), p); err != nil {
			return activateErr(p, err)
		}
		if err := s.activator.Activate(ctx, p.Name); err != nil {
			return activateErr(p, err)
		}
		return nil
	}
}

// transition applies mutate and the status change to a copy of p and
// stores it only if p is still in the status it was read in.
func (s *Service) transition(ctx context.Context, p *store.Proposal, to store.ProposalStatus, actor, note string,
	mutate func(*store.Proposal),
) (*store.Proposal, error) {
	if !CanTransition(p.Status, to) {
		return nil, transitionErr(p, to)
	}
	next := *p
	next.History = append(slices.Clone(p.History), store.ProposalEvent{
		From:  p.Status,
		To:    to,
		Actor: actor,
		Note:  note,
		At:    s.now(),
	})
	if mutate != nil {
		mutate(&next)
	}
	next.Status = to
	if err := s.store.UpdateProposal(ctx, &next, p.Status); err != nil {
		return nil, pawerr.With(err, pawerr.FieldProposalID(p.ID))
	}
	return &next, nil
}

func transitionErr(p *store.Proposal, to store.ProposalStatus) error {
	return pawerr.New(pawerr.CodeProposalTransitionInvalid,
		"proposal "+p.ID+" cannot move from "+string(p.Status)+" to "+string(to),
		pawerr.FieldProposalID(p.ID))
}

func activateErr(p *store.Proposal, err error) error {
	return pawerr.New(pawerr.CodeProposalActivateFailure, "activating "+p.Name+": "+err.Error(),
		pawerr.FieldProposalID(p.ID), pawerr.Field("cause_code", string(pawerr.CodeOf(err))))
}

func actorOr(actor string) string {
	if actor == "" {
		return "human"
	}
	return actor
}

// scriptPath is where an activated script lands.
func scriptPath(dir string, p *store.Proposal) string {
	return filepath.Join(dir, p.Name+scriptExt(p.Runtime))
}

// WriteScript writes p's source as an executable file in dir and returns its path.
func WriteScript(dir string, p *store.Proposal) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := scriptPath(dir, p)
	if err := os.WriteFile(path, []byte(p.Source), 0o700); err != nil {
		return "", err
	}
	return path, nil
}

func scriptExt(interpreter string) string {
	switch interpreter {
	case "sh", "bash":
		return ".sh"
	case "python", "python3":
		return ".py"
	case "node":
		return ".js"
	default:
		return ""
	}
}
