// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/config"
	"github.com/elemarin/paw/internal/provider"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func useConfigPath(t *testing.T) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "paw.yaml")
	orig := configPathForWrite
	configPathForWrite = func() (string, error) { return cfgPath, nil }
	t.Cleanup(func() { configPathForWrite = orig })
	return cfgPath
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m initModel, msg tea.Msg) (initModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(initModel)
	require.True(t, ok)
	return nm, cmd
}

func TestGenerateConfigYAML_LoadsAsValidConfig(t *testing.T) {
	tests := []struct {
		name      string
		result    initResult
		wantModel string
		wantAuth  string
	}{
		{
			name:      "openai without server key",
			result:    initResult{Provider: provider.ProviderOpenAI, APIKey: "sk-x"},
			wantModel: "openai/gpt-4o",
		},
		{
			name:      "google with server key",
			result:    initResult{Provider: provider.ProviderGoogle, APIKey: "g-x", ServerKey: "tok"},
			wantModel: "google/gemini-2.0-flash",
			wantAuth:  "keyring://paw/server-api-key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := GenerateConfigYAML(tt.result)
			require.NoError(t, err)
			assert.NotContains(t, content, tt.result.APIKey, "secrets never appear in the file")

			path := filepath.Join(t.TempDir(), "paw.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			cfg, err := config.Load(path)
			require.NoError(t, err)

			require.Len(t, cfg.Providers, 1)
			name := string(tt.result.Provider)
			assert.Equal(t, "keyring://paw/"+name+"-api-key", cfg.Providers[name].APIKey)
			assert.Equal(t, tt.wantModel, cfg.Models.Default)
			assert.Equal(t, tt.wantAuth, cfg.Server.APIKey)
			assert.Equal(t, 10, cfg.Agent.MaxIterations, "untouched defaults survive")
		})
	}
}

func TestGenerateConfigYAML_KeepsComments(t *testing.T) {
	content, err := GenerateConfigYAML(initResult{Provider: provider.ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.Contains(t, content, "# Generated by paw init.")
	assert.Contains(t, content, "Relative paths resolve against data_dir")
}

func TestDefaultModelForProvider(t *testing.T) {
	tests := []struct {
		p    provider.ProviderName
		want string
	}{
		{provider.ProviderAnthropic, "anthropic/claude-sonnet-4-5"},
		{provider.ProviderOpenAI, "openai/gpt-4o"},
		{provider.ProviderGoogle, "google/gemini-2.0-flash"},
		{"custom", "custom/default"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultModelForProvider(tt.p))
	}
}

func TestInitModel_ProviderSelection(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m, _ = update(t, m, keyMsg("up"))
	assert.Equal(t, 0, m.providerIdx, "cannot move above the first entry")

	m, _ = update(t, m, keyMsg("down"))
	m, _ = update(t, m, keyMsg("j"))
	m, _ = update(t, m, keyMsg("down"))
	assert.Equal(t, len(supportedProviders)-1, m.providerIdx, "cannot move past the last entry")

	m, _ = update(t, m, keyMsg("k"))
	m, _ = update(t, m, keyMsg("enter"))
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, provider.ProviderOpenAI, m.result.Provider)
}

func TestInitModel_EmptyAPIKey_ShowsError(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepAPIKey

	m, cmd := update(t, m, keyMsg("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Contains(t, m.validationErr, "must not be empty")
}

func TestInitModel_APIKeyStartsValidation(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepAPIKey
	m.result.Provider = provider.ProviderAnthropic
	m.apiKeyInput.SetValue("  sk-ant  ")

	m, cmd := update(t, m, keyMsg("enter"))
	assert.NotNil(t, cmd)
	assert.Equal(t, stepValidateKey, m.step)
	assert.Equal(t, "sk-ant", m.result.APIKey)
}

func TestInitModel_SkipValidation(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.skipValidation = true
	m.step = stepAPIKey
	m.apiKeyInput.SetValue("sk")

	m, _ = update(t, m, keyMsg("enter"))
	assert.Equal(t, stepServerKey, m.step)
}

func TestInitModel_ValidationResults(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepValidateKey

	failed, _ := update(t, m, validationErrorMsg{err: pawerr.New(pawerr.CodeProviderAuthUnauthorized, "invalid key")})
	assert.Equal(t, stepAPIKey, failed.step)
	assert.Contains(t, failed.validationErr, "invalid key")

	ok, _ := update(t, m, validationSuccessMsg{})
	assert.Equal(t, stepServerKey, ok.step)
}

func TestInitModel_ServerKeyWritesConfig(t *testing.T) {
	tests := []struct {
		key       string
		wantToken bool
	}{
		{"y", true},
		{"enter", true},
		{"n", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfgPath := useConfigPath(t)
			store := newMockSecretStore()
			m := newInitModel(store)
			m.step = stepServerKey
			m.result = initResult{Provider: provider.ProviderAnthropic, APIKey: "sk-ant"}

			m, cmd := update(t, m, keyMsg(tt.key))
			require.NotNil(t, cmd)
			msg := cmd()
			written, ok := msg.(configWrittenMsg)
			require.True(t, ok, "got %T: %v", msg, msg)
			assert.Equal(t, cfgPath, written.path)

			assert.Equal(t, "sk-ant", store.data["anthropic-api-key"])
			token, has := store.data[serverKeyName]
			assert.Equal(t, tt.wantToken, has)
			if tt.wantToken {
				assert.Len(t, token, 48)
			}

			m, _ = update(t, m, msg)
			assert.Equal(t, stepDone, m.step)
			assert.Contains(t, m.View(), "paw start")
		})
	}
}

func TestInitModel_ServerKeyIgnoresOtherKeys(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.step = stepServerKey
	m, cmd := update(t, m, keyMsg("x"))
	assert.Nil(t, cmd)
	assert.Equal(t, stepServerKey, m.step)
}

func TestInitModel_ErrorEndsWizard(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m, cmd := update(t, m, pawerr.New(pawerr.CodeSecretStoreFailure, "keyring locked"))
	assert.NotNil(t, cmd)
	assert.Equal(t, stepError, m.step)
	assert.Contains(t, m.View(), "keyring locked")
}

func TestStoreSecretsAndWriteConfig_OverwriteProtection(t *testing.T) {
	cfgPath := useConfigPath(t)
	store := newMockSecretStore()
	result := initResult{Provider: provider.ProviderAnthropic, APIKey: "sk-test"}

	path, err := storeSecretsAndWriteConfig(result, store, false)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)

	info, err := os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = storeSecretsAndWriteConfig(result, store, false)
	require.Error(t, err)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeConfigAlreadyExists))
	assert.Contains(t, err.Error(), "--force to overwrite")

	_, err = storeSecretsAndWriteConfig(result, store, true)
	require.NoError(t, err)
}

func TestInitCommand_RequiresTerminal(t *testing.T) {
	_, err := runCmd(t, "", "init")
	require.Error(t, err)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeCLISetupFailure))
}
