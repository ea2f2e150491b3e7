// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"empty store", nil, "No secrets stored.\n"},
		{"single key", []string{"anthropic-api-key"}, "anthropic-api-key\n"},
		{"multiple keys", []string{"openai-api-key", "anthropic-api-key"}, "anthropic-api-key\nopenai-api-key\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSecretStore(t, newMockSecretStore(tt.keys...))

			out, err := runCmd(t, "", "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretSet(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		want     string
		wantCode pawerr.Code
	}{
		{name: "value argument", args: []string{"secret", "set", "openai-api-key", "sk-1"}, want: "sk-1"},
		{name: "value from stdin", stdin: "sk-2\n", args: []string{"secret", "set", "openai-api-key"}, want: "sk-2"},
		{name: "stdin without newline", stdin: "sk-3", args: []string{"secret", "set", "openai-api-key"}, want: "sk-3"},
		{name: "empty stdin", stdin: "", args: []string{"secret", "set", "openai-api-key"}, wantCode: pawerr.CodeCLIInputInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockSecretStore()
			useSecretStore(t, store)

			out, err := runCmd(t, tt.stdin, tt.args...)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, pawerr.HasCode(err, tt.wantCode), err.Error())
				assert.Empty(t, store.data)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.data["openai-api-key"])
			assert.Contains(t, out, "keyring://paw/openai-api-key")
		})
	}
}

func TestSecretDelete(t *testing.T) {
	tests := []struct {
		name      string
		keys      []string
		deleteKey string
		wantOut   string
		wantCode  pawerr.Code
	}{
		{
			name:      "delete existing key",
			keys:      []string{"anthropic-api-key"},
			deleteKey: "anthropic-api-key",
			wantOut:   "Deleted secret: anthropic-api-key\n",
		},
		{
			name:      "delete non-existent key",
			deleteKey: "missing-key",
			wantCode:  pawerr.CodeSecretNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSecretStore(t, newMockSecretStore(tt.keys...))

			out, err := runCmd(t, "", "secret", "delete", tt.deleteKey)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, pawerr.HasCode(err, tt.wantCode),
					"expected error code %s, got: %v", tt.wantCode, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}
