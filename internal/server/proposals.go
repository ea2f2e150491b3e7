// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"
	"time"

	"github.com/elemarin/paw/internal/proposal"
	"github.com/elemarin/paw/internal/store"
)

// ProposalView is the REST representation of a proposal.
type ProposalView struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	Kind         store.ProposalKind    `json:"kind" enum:"plugin,script"`
	Runtime      string                `json:"runtime"`
	Source       string                `json:"source,omitempty"`
	Status       store.ProposalStatus  `json:"status" enum:"draft,tested-pass,tested-fail,approved,active,rejected"`
	TestOutput   string                `json:"test_output,omitempty"`
	RejectReason string                `json:"reject_reason,omitempty"`
	ApprovedBy   string                `json:"approved_by,omitempty"`
	History      []store.ProposalEvent `json:"history"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func proposalView(p *store.Proposal, withSource bool) ProposalView {
	v := ProposalView{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Kind:         p.Kind,
		Runtime:      p.Runtime,
		Status:       p.Status,
		TestOutput:   p.TestOutput,
		RejectReason: p.RejectReason,
		ApprovedBy:   p.ApprovedBy,
		History:      p.History,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if withSource {
		v.Source = p.Source
	}
	if v.History == nil {
		v.History = []store.ProposalEvent{}
	}
	return v
}

type listProposalsInput struct {
	Status string `query:"status" doc:"Filter by status: draft, tested-pass, tested-fail, approved, active or rejected"`
}

type listProposalsOutput struct {
	Body struct {
		Proposals []ProposalView `json:"proposals"`
	}
}

type createProposalInput struct {
	Body struct {
		Name        string `json:"name" minLength:"1"`
		Description string `json:"description,omitempty"`
		Kind        string `json:"kind,omitempty" doc:"plugin (default) or script"`
		Runtime     string `json:"runtime,omitempty" doc:"yaegi, wasm or executable for plugins; an interpreter name for scripts"`
		Source      string `json:"source" minLength:"1"`
		Author      string `json:"author,omitempty"`
	}
}

type proposalIDInput struct {
	ID string `path:"id"`
}

type actorInput struct {
	ID   string `path:"id"`
	Body *struct {
		Actor string `json:"actor,omitempty" doc:"Who performs the step"`
	} `required:"false"`
}

func (in *actorInput) actor() string {
	if in.Body == nil {
		return ""
	}
	return in.Body.Actor
}

type approveInput struct {
	ID   string `path:"id"`
	Body struct {
		Approver string `json:"approver" minLength:"1" doc:"Human approving the proposal"`
	}
}

type rejectInput struct {
	ID   string `path:"id"`
	Body struct {
		Reason string `json:"reason" minLength:"1"`
		Actor  string `json:"actor,omitempty"`
	}
}

type proposalOutput struct {
	Body ProposalView
}

func (s *Server) handleListProposals(ctx context.Context, input *listProposalsInput) (*listProposalsOutput, error) {
	ps, err := s.services.Proposals.List(ctx, store.ProposalStatus(input.Status))
	if err != nil {
		return nil, s.apiError("list-proposals", err)
	}
	out := &listProposalsOutput{}
	out.Body.Proposals = make([]ProposalView, 0, len(ps))
	for _, p := range ps {
		out.Body.Proposals = append(out.Body.Proposals, proposalView(p, false))
	}
	return out, nil
}

func (s *Server) handleCreateProposal(ctx context.Context, input *createProposalInput) (*proposalOutput, error) {
	author := input.Body.Author
	if author == "" {
		author = "api"
	}
	p, err := s.services.Proposals.Submit(ctx, proposal.Draft{
		Name:        input.Body.Name,
		Description: input.Body.Description,
		Kind:        store.ProposalKind(input.Body.Kind),
		Runtime:     input.Body.Runtime,
		Source:      input.Body.Source,
		Author:      author,
	})
	if err != nil {
		return nil, s.apiError("create-proposal", err)
	}
	return &proposalOutput{Body: proposalView(p, true)}, nil
}

func (s *Server) handleGetProposal(ctx context.Context, input *proposalIDInput) (*proposalOutput, error) {
	p, err := s.services.Proposals.Get(ctx, input.ID)
	if err != nil {
		return nil, s.apiError("get-proposal", err)
	}
	return &proposalOutput{Body: proposalView(p, true)}, nil
}

func (s *Server) handleTestProposal(ctx context.Context, input *actorInput) (*proposalOutput, error) {
	p, err := s.services.Proposals.Test(ctx, input.ID, input.actor())
	if err != nil {
		return nil, s.apiError("test-proposal", err)
	}
	return &proposalOutput{Body: proposalView(p, false)}, nil
}

func (s *Server) handleApproveProposal(ctx context.Context, input *approveInput) (*proposalOutput, error) {
	p, err := s.services.Proposals.Approve(ctx, input.ID, input.Body.Approver)
	if err != nil {
		return nil, s.apiError("approve-proposal", err)
	}
	return &proposalOutput{Body: proposalView(p, false)}, nil
}

func (s *Server) handleRejectProposal(ctx context.Context, input *rejectInput) (*proposalOutput, error) {
	p, err := s.services.Proposals.Reject(ctx, input.ID, input.Body.Reason, input.Body.Actor)
	if err != nil {
		return nil, s.apiError("reject-proposal", err)
	}
	return &proposalOutput{Body: proposalView(p, false)}, nil
}

func (s *Server) handleActivateProposal(ctx context.Context, input *actorInput) (*proposalOutput, error) {
	p, err := s.services.Proposals.Activate(ctx, input.ID, input.actor())
	if err != nil {
		return nil, s.apiError("activate-proposal", err)
	}
	return &proposalOutput{Body: proposalView(p, false)}, nil
}
