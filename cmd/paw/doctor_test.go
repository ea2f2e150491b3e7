// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/config"
	"github.com/elemarin/paw/internal/sandbox"
)

func TestDoctor_RunsAllChecks(t *testing.T) {
	useSecretStore(t, newMockSecretStore())
	out, err := runCmd(t, "", "doctor", "--address", "127.0.0.1:1", "--data-dir", t.TempDir())
	require.NoError(t, err)

	for _, check := range []string{
		"Binary:", "Platform:", "Server:", "Config:", "Providers:",
		"Interpreters:", "Isolation:", "Capabilities:", "Disk Space:",
	} {
		assert.Contains(t, out, check)
	}
	assert.Contains(t, out, "not running")
	assert.Regexp(t, `\d+(\.\d+)?\s*(GB|MB|bytes)`, out)
}

func TestDoctor_ServerRunning(t *testing.T) {
	useSecretStore(t, newMockSecretStore())
	addr := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": "9.9.9"})
	}))

	out, err := runCmd(t, "", "doctor", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "ok at http://"+addr+" (version 9.9.9)")
}

func TestDoctor_InvalidConfigStillReports(t *testing.T) {
	useSecretStore(t, newMockSecretStore())
	cfg := writeConfig(t, "agent:\n  max_iterations: -1\n")

	out, err := runCmd(t, "", "--config", cfg, "doctor", "--address", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, out, "invalid")
	assert.NotContains(t, out, "Providers:")
	assert.Contains(t, out, "Disk Space:")
}

func TestCheckProviders(t *testing.T) {
	useSecretStore(t, newMockSecretStore("openai-api-key"))
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"anthropic": {APIKey: "keyring://paw/anthropic-api-key"},
		"google":    {APIKey: "plain"},
		"openai":    {APIKey: "keyring://paw/openai-api-key"},
		"zed":       {},
	}}
	assert.Equal(t,
		"anthropic: key missing from keyring, google: ok (plain text), openai: ok (keyring), zed: no key",
		checkProviders(cfg))

	assert.Contains(t, checkProviders(&config.Config{}), "paw init")
}

func TestCheckInterpreters(t *testing.T) {
	cfg := &config.Config{}
	cfg.Proposals.Interpreters = map[string]string{
		"sh":    "/bin/sh",
		"ghost": "definitely-not-installed-interpreter",
	}
	assert.Equal(t, "ghost: missing, sh: ok", checkInterpreters(cfg))

	assert.Contains(t, checkInterpreters(&config.Config{}), "disabled")
}

func TestCheckIsolation(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sandbox.Isolation = sandbox.IsolationNone
	assert.Contains(t, checkIsolation(cfg), "none")

	cfg.Sandbox.Isolation = sandbox.IsolationBwrap
	t.Setenv("PATH", t.TempDir())
	assert.Contains(t, checkIsolation(cfg), "not found")
}

func TestCheckCapabilities(t *testing.T) {
	dir := t.TempDir()
	assert.Contains(t, checkCapabilities(filepath.Join(dir, "missing")), "no capabilities directory")
	assert.Equal(t, "no capabilities installed", checkCapabilities(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "weather"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather", "capability.yaml"), []byte("name: weather\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "capability.yaml"), nil, 0o644))

	assert.Equal(t, "1 bundle(s) in "+dir, checkCapabilities(dir))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 bytes"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024 / 2, "1.5 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}
