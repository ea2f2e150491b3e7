// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/tool"
	"github.com/elemarin/paw/pkg/health"
)

// ToolView is the REST representation of a tool definition.
type ToolView struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Owner       string          `json:"owner" doc:"Capability name or builtin"`
	Class       tool.Class      `json:"class"`
	Schema      json.RawMessage `json:"schema" doc:"JSON schema of the arguments"`
}

type listToolsOutput struct {
	Body struct {
		Tools []ToolView `json:"tools"`
	}
}

type listCapabilitiesOutput struct {
	Body struct {
		Capabilities []capability.Status `json:"capabilities"`
	}
}

// ReloadReport is the outcome of a capabilities rescan.
type ReloadReport struct {
	Loaded          []string          `json:"loaded"`
	Failed          map[string]string `json:"failed,omitempty" doc:"Bundle directory to error"`
	RestartRequired []string          `json:"restart_required,omitempty"`
}

type reloadCapabilitiesOutput struct {
	Body ReloadReport
}

type providerHealthOutput struct {
	Body struct {
		Providers []health.ProviderHealth `json:"providers"`
	}
}

func (s *Server) handleListTools(_ context.Context, _ *struct{}) (*listToolsOutput, error) {
	defs := s.services.Tools.Definitions()
	out := &listToolsOutput{}
	out.Body.Tools = make([]ToolView, 0, len(defs))
	for _, d := range defs {
		out.Body.Tools = append(out.Body.Tools, ToolView{
			Name:        d.Name,
			Description: d.Description,
			Owner:       d.Owner,
			Class:       d.Class,
			Schema:      d.Schema,
		})
	}
	return out, nil
}

func (s *Server) handleListCapabilities(_ context.Context, _ *struct{}) (*listCapabilitiesOutput, error) {
	out := &listCapabilitiesOutput{}
	out.Body.Capabilities = s.services.Capabilities.List()
	if out.Body.Capabilities == nil {
		out.Body.Capabilities = []capability.Status{}
	}
	return out, nil
}

func (s *Server) handleReloadCapabilities(ctx context.Context, _ *struct{}) (*reloadCapabilitiesOutput, error) {
	report, err := s.services.Capabilities.LoadAll(ctx)
	if err != nil {
		return nil, s.apiError("reload-capabilities", err)
	}
	s.log.Info("capabilities reloaded",
		"loaded", len(report.Loaded),
		"failed", len(report.Failed),
		"restart_required", len(report.RestartRequired),
	)
	loaded := report.Loaded
	if loaded == nil {
		loaded = []string{}
	}
	return &reloadCapabilitiesOutput{Body: ReloadReport{
		Loaded:          loaded,
		Failed:          report.FailedMessages(),
		RestartRequired: report.RestartRequired,
	}}, nil
}

func (s *Server) handleProviderHealth(_ context.Context, _ *struct{}) (*providerHealthOutput, error) {
	if s.services.Providers == nil {
		return nil, huma.Error503ServiceUnavailable("provider health not available")
	}
	out := &providerHealthOutput{}
	out.Body.Providers = s.services.Providers.Health()
	if out.Body.Providers == nil {
		out.Body.Providers = []health.ProviderHealth{}
	}
	return out, nil
}
