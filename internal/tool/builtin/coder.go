// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/proposal"
	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Proposals is the agent-facing subset of the proposal workflow. Approval
// and activation are human-only and never reachable from here.
type Proposals interface {
	Submit(ctx context.Context, d proposal.Draft) (*store.Proposal, error)
	Get(ctx context.Context, id string) (*store.Proposal, error)
}

// Capabilities lists loaded bundles.
type Capabilities interface {
	List() []capability.Status
}

type coderArgs struct {
	Action      string `json:"action" jsonschema:"description=The coder action.,enum=propose,enum=list_capabilities,enum=status"`
	Name        string `json:"name,omitempty" jsonschema:"description=Name of the capability or script (for propose)."`
	Description string `json:"description,omitempty" jsonschema:"description=What the proposal does (for propose)."`
	Kind        string `json:"kind,omitempty" jsonschema:"description=Proposal kind (for propose).,enum=plugin,enum=script"`
	Runtime     string `json:"runtime,omitempty" jsonschema:"description=Runtime for plugins (yaegi or wasm) or interpreter name for scripts (for propose)."`
	Code        string `json:"code,omitempty" jsonschema:"description=Source code (for propose)."`
	ID          string `json:"id,omitempty" jsonschema:"description=Proposal ID (for status)."`
}

// Coder lets the agent draft new capabilities. Drafts only become active
// after a human approves a passing test run.
type Coder struct {
	proposals    Proposals
	capabilities Capabilities
}

func NewCoder(proposals Proposals, capabilities Capabilities) *Coder {
	return &Coder{proposals: proposals, capabilities: capabilities}
}

func (c *Coder) Definition() tool.Definition {
	return tool.Definition{
		Name: "coder",
		Description: "Extend your own capabilities. Actions: 'propose' (submit new code as a draft proposal " +
			"that a human must test and approve), 'list_capabilities' (show loaded capabilities and their tools), " +
			"'status' (show a proposal's state and test output).",
		Schema: tool.SchemaFor[coderArgs](),
		Owner:  tool.OwnerBuiltin,
		Class:  tool.ClassOther,
	}
}

func (c *Coder) Execute(ctx context.Context, call tool.Call) (string, error) {
	args, err := tool.DecodeArgs[coderArgs](call)
	if err != nil {
		return "", err
	}
	switch args.Action {
	case "propose":
		return c.propose(ctx, args)
	case "list_capabilities":
		return c.list(), nil
	case "status":
		return c.status(ctx, args.ID)
	default:
		return "", pawerr.Errorf(pawerr.CodeToolInputInvalid, "unknown action %q", args.Action)
	}
}

func (c *Coder) propose(ctx context.Context, args coderArgs) (string, error) {
	kind := store.ProposalKind(args.Kind)
	if kind == "" {
		kind = store.ProposalKindPlugin
	}
	p, err := c.proposals.Submit(ctx, proposal.Draft{
		Name:        args.Name,
		Description: args.Description,
		Kind:        kind,
		Runtime:     args.Runtime,
		Source:      args.Code,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Proposal %s created for %q (%s, %s). Status: %s. "+
		"A human must test and approve it before it becomes active.",
		p.ID, p.Name, p.Kind, p.Runtime, p.Status), nil
}

func (c *Coder) list() string {
	caps := c.capabilities.List()
	if len(caps) == 0 {
		return "No capabilities loaded."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Capabilities (%d):", len(caps))
	for _, s := range caps {
		fmt.Fprintf(&sb, "\n  %s %s [%s] (%s)", s.Name, s.Version, s.State, s.Runtime)
		if len(s.Tools) > 0 {
			fmt.Fprintf(&sb, " tools: %s", strings.Join(s.Tools, ", "))
		}
		if s.Error != "" {
			fmt.Fprintf(&sb, " error: %s", s.Error)
		}
	}
	return sb.String()
}

func (c *Coder) status(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", pawerr.New(pawerr.CodeToolInputInvalid, "status requires an id")
	}
	p, err := c.proposals.Get(ctx, id)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Proposal %s: %s [%s]", p.ID, p.Name, p.Status)
	if p.RejectReason != "" {
		fmt.Fprintf(&sb, "\nRejected: %s", p.RejectReason)
	}
	if p.TestOutput != "" {
		fmt.Fprintf(&sb, "\nTest output:\n%s", p.TestOutput)
	}
	return sb.String(), nil
}
