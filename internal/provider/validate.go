// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// ProviderName identifies a supported LLM provider for key validation.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
	ProviderGoogle    ProviderName = "google"
)

// keyCheck returns the models endpoint and auth headers for provider.
func keyCheck(provider ProviderName, key string) (string, map[string]string, error) {
	switch provider {
	case ProviderAnthropic:
		return "https://api.anthropic.com/v1/models", map[string]string{
			"x-api-key":         key,
			"anthropic-version": "2023-06-01",
		}, nil
	case ProviderOpenAI:
		return "https://api.openai.com/v1/models", map[string]string{
			"Authorization": "Bearer " + key,
		}, nil
	case ProviderGoogle:
		// The Generative Language API authenticates via query parameter.
		return "https://generativelanguage.googleapis.com/v1/models?key=" + key, nil, nil
	default:
		return "", nil, pawerr.Errorf(pawerr.CodeProviderKeyValidationFailure, "unknown provider: %s", provider)
	}
}

// ValidateKey makes a lightweight call to the provider's models endpoint to
// confirm the API key is accepted.
func ValidateKey(ctx context.Context, client *http.Client, provider ProviderName, key string) error {
	return ValidateKeyWithURL(ctx, client, provider, key, "")
}

// ValidateKeyWithURL is ValidateKey against an explicit endpoint; an empty
// url uses the provider default.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, provider ProviderName, key, url string) error {
	defURL, headers, err := keyCheck(provider, key)
	if err != nil {
		return err
	}
	if url == "" {
		url = defURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pawerr.Errorf(pawerr.CodeProviderKeyValidationFailure, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return pawerr.Errorf(pawerr.CodeProviderKeyValidationFailure, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return pawerr.Errorf(pawerr.CodeProviderAuthUnauthorized, "invalid %s API key (HTTP %d)", provider, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return pawerr.Errorf(pawerr.CodeProviderKeyValidationFailure, "%s validation failed (HTTP %d)", provider, resp.StatusCode)
	}
	return nil
}
