// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"
	"time"

	"github.com/elemarin/paw/internal/agent"
	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/proposal"
	"github.com/elemarin/paw/internal/provider"
	"github.com/elemarin/paw/internal/secrets"
	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
	"github.com/elemarin/paw/pkg/health"
)

// Agent runs turns. *agent.Loop implements it.
type Agent interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.Result, error)
	Lanes() *agent.LanePool
}

// Tools lists registered tool definitions. *tool.Registry implements it.
type Tools interface {
	Definitions() []tool.Definition
}

// Capabilities is the loader surface the API needs.
type Capabilities interface {
	List() []capability.Status
	LoadAll(ctx context.Context) (capability.Report, error)
}

// Proposals is the full proposal workflow including the human-only steps.
type Proposals interface {
	Submit(ctx context.Context, d proposal.Draft) (*store.Proposal, error)
	Get(ctx context.Context, id string) (*store.Proposal, error)
	List(ctx context.Context, status store.ProposalStatus) ([]*store.Proposal, error)
	Test(ctx context.Context, id, actor string) (*store.Proposal, error)
	Approve(ctx context.Context, id, approver string) (*store.Proposal, error)
	Reject(ctx context.Context, id, reason, actor string) (*store.Proposal, error)
	Activate(ctx context.Context, id, actor string) (*store.Proposal, error)
}

// Memory is the memory service surface. *memory.Service implements it.
type Memory interface {
	DefaultScope() string
	Remember(ctx context.Context, scope, key, value string) error
	Forget(ctx context.Context, scope, key string) error
	List(ctx context.Context, scope string) ([]*store.MemoryEntry, error)
	Log(ctx context.Context, scope, text string) error
	ContextBlock(ctx context.Context, scope string, now time.Time) (string, error)
}

// ProviderHealth reports gateway health. *provider.Registry implements it.
type ProviderHealth interface {
	Health() []health.ProviderHealth
}

// KeyValidator checks a provider API key against the provider.
type KeyValidator func(ctx context.Context, name provider.ProviderName, key string) error

// Services holds the dependencies route handlers call into.
type Services struct {
	Agent         Agent
	Conversations store.ConversationStore
	Tools         Tools
	Capabilities  Capabilities
	Proposals     Proposals
	Memory        Memory

	// Providers, Secrets and ValidateKey are optional; their endpoints
	// answer 503 without them.
	Providers   ProviderHealth
	Secrets     secrets.Store
	ValidateKey KeyValidator

	Now func() time.Time
}

// Validate reports the first missing required dependency.
func (s *Services) Validate() error {
	switch {
	case s.Agent == nil:
		return pawerr.New(pawerr.CodeServerConfigInvalid, "agent service is required")
	case s.Conversations == nil:
		return pawerr.New(pawerr.CodeServerConfigInvalid, "conversation store is required")
	case s.Tools == nil:
		return pawerr.New(pawerr.CodeServerConfigInvalid, "tool registry is required")
	case s.Capabilities == nil:
		return pawerr.New(pawerr.CodeServerConfigInvalid, "capability loader is required")
	case s.Proposals == nil:
		return pawerr.New(pawerr.CodeServerConfigInvalid, "proposal service is required")
	case s.Memory == nil:
		return pawerr.New(pawerr.CodeServerConfigInvalid, "memory service is required")
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return nil
}
