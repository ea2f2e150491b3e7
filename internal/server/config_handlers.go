// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/elemarin/paw/internal/provider"
	"github.com/elemarin/paw/internal/secrets"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// DefaultKeyValidator validates keys against the real provider APIs.
func DefaultKeyValidator(client *http.Client) KeyValidator {
	return func(ctx context.Context, name provider.ProviderName, key string) error {
		return provider.ValidateKey(ctx, client, name, key)
	}
}

// ProviderKeyName is the keyring entry a provider's API key is stored under.
func ProviderKeyName(name string) string {
	return name + "-api-key"
}

type configureProviderInput struct {
	Body struct {
		Type   string `json:"type" doc:"Provider type" enum:"anthropic,openai,google" required:"true"`
		APIKey string `json:"api_key" doc:"Provider API key" minLength:"1" required:"true"`
	}
}

type configureProviderOutput struct {
	Body struct {
		Status   string `json:"status" doc:"Result status" example:"ok"`
		Provider string `json:"provider" doc:"Configured provider type"`
		Ref      string `json:"ref" doc:"Value to put in providers.<type>.api_key"`
	}
}

func (s *Server) handleConfigureProvider(ctx context.Context, input *configureProviderInput) (*configureProviderOutput, error) {
	if s.services.Secrets == nil || s.services.ValidateKey == nil {
		s.log.Error("config endpoint called without secret storage")
		return nil, huma.Error503ServiceUnavailable("configuration service not available")
	}

	name := provider.ProviderName(input.Body.Type)
	if err := s.services.ValidateKey(ctx, name, input.Body.APIKey); err != nil {
		if pawerr.IsUnauthorized(err) {
			return nil, huma.Error400BadRequest(fmt.Sprintf("invalid %s API key", input.Body.Type))
		}
		s.log.Error("provider key validation failed", "provider", input.Body.Type, "error", err)
		return nil, huma.Error502BadGateway(fmt.Sprintf("could not validate %s API key", input.Body.Type))
	}

	key := ProviderKeyName(input.Body.Type)
	if err := s.services.Secrets.Store(secrets.Service, key, input.Body.APIKey); err != nil {
		s.log.Error("failed to store provider key in keyring", "provider", input.Body.Type, "error", err)
		return nil, huma.Error500InternalServerError("failed to store API key")
	}

	s.log.Info("provider API key configured", "provider", input.Body.Type)

	out := &configureProviderOutput{}
	out.Body.Status = "ok"
	out.Body.Provider = input.Body.Type
	out.Body.Ref = secrets.Ref(key)
	return out, nil
}
