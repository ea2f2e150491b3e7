// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerRoutes() {
	// Chat
	huma.Register(s.api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Run one agent turn",
		Tags:        []string{"chat"},
	}, s.handleChat)

	// Conversations
	huma.Register(s.api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversations",
		Summary:     "List conversations",
		Tags:        []string{"conversations"},
	}, s.handleListConversations)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversations/{id}",
		Summary:     "Get a conversation with its messages",
		Tags:        []string{"conversations"},
	}, s.handleGetConversation)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-conversation",
		Method:        http.MethodDelete,
		Path:          "/api/v1/conversations/{id}",
		Summary:       "Delete a conversation",
		Tags:          []string{"conversations"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteConversation)

	// Tools and capabilities
	huma.Register(s.api, huma.Operation{
		OperationID: "list-tools",
		Method:      http.MethodGet,
		Path:        "/api/v1/tools",
		Summary:     "List registered tools",
		Tags:        []string{"tools"},
	}, s.handleListTools)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/v1/capabilities",
		Summary:     "List capability bundles",
		Tags:        []string{"capabilities"},
	}, s.handleListCapabilities)

	huma.Register(s.api, huma.Operation{
		OperationID: "reload-capabilities",
		Method:      http.MethodPost,
		Path:        "/api/v1/capabilities/reload",
		Summary:     "Rescan the capabilities directory",
		Tags:        []string{"capabilities"},
	}, s.handleReloadCapabilities)

	// Proposals
	huma.Register(s.api, huma.Operation{
		OperationID: "list-proposals",
		Method:      http.MethodGet,
		Path:        "/api/v1/proposals",
		Summary:     "List proposals",
		Tags:        []string{"proposals"},
	}, s.handleListProposals)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-proposal",
		Method:        http.MethodPost,
		Path:          "/api/v1/proposals",
		Summary:       "Submit a draft proposal",
		Tags:          []string{"proposals"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateProposal)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-proposal",
		Method:      http.MethodGet,
		Path:        "/api/v1/proposals/{id}",
		Summary:     "Get a proposal",
		Tags:        []string{"proposals"},
	}, s.handleGetProposal)

	huma.Register(s.api, huma.Operation{
		OperationID: "test-proposal",
		Method:      http.MethodPost,
		Path:        "/api/v1/proposals/{id}/test",
		Summary:     "Run the isolated test stage",
		Tags:        []string{"proposals"},
	}, s.handleTestProposal)

	huma.Register(s.api, huma.Operation{
		OperationID: "approve-proposal",
		Method:      http.MethodPost,
		Path:        "/api/v1/proposals/{id}/approve",
		Summary:     "Approve a passing proposal",
		Tags:        []string{"proposals"},
	}, s.handleApproveProposal)

	huma.Register(s.api, huma.Operation{
		OperationID: "reject-proposal",
		Method:      http.MethodPost,
		Path:        "/api/v1/proposals/{id}/reject",
		Summary:     "Reject a proposal",
		Tags:        []string{"proposals"},
	}, s.handleRejectProposal)

	huma.Register(s.api, huma.Operation{
		OperationID: "activate-proposal",
		Method:      http.MethodPost,
		Path:        "/api/v1/proposals/{id}/activate",
		Summary:     "Install an approved proposal",
		Tags:        []string{"proposals"},
	}, s.handleActivateProposal)

	// Memory
	huma.Register(s.api, huma.Operation{
		OperationID: "list-memory",
		Method:      http.MethodGet,
		Path:        "/api/v1/memory",
		Summary:     "List remembered facts",
		Tags:        []string{"memory"},
	}, s.handleListMemory)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-memory-context",
		Method:      http.MethodGet,
		Path:        "/api/v1/memory/context",
		Summary:     "Render the memory block injected into prompts",
		Tags:        []string{"memory"},
	}, s.handleMemoryContext)

	huma.Register(s.api, huma.Operation{
		OperationID:   "append-memory-log",
		Method:        http.MethodPost,
		Path:          "/api/v1/memory/log",
		Summary:       "Append to the memory log",
		Tags:          []string{"memory"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleMemoryLog)

	huma.Register(s.api, huma.Operation{
		OperationID:   "remember",
		Method:        http.MethodPut,
		Path:          "/api/v1/memory/{key}",
		Summary:       "Remember a fact",
		Tags:          []string{"memory"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleRemember)

	huma.Register(s.api, huma.Operation{
		OperationID:   "forget",
		Method:        http.MethodDelete,
		Path:          "/api/v1/memory/{key}",
		Summary:       "Forget a fact",
		Tags:          []string{"memory"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleForget)

	// Providers
	huma.Register(s.api, huma.Operation{
		OperationID: "provider-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/health",
		Summary:     "Provider health metrics",
		Tags:        []string{"providers"},
	}, s.handleProviderHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "configure-provider",
		Method:      http.MethodPost,
		Path:        "/api/v1/config/providers",
		Summary:     "Validate and store a provider API key",
		Tags:        []string{"config"},
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, s.handleConfigureProvider)
}
