// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:8000", "http://127.0.0.1:8000"},
		{":8000", "http://127.0.0.1:8000"},
		{"http://paw.local:9000/", "http://paw.local:9000"},
		{"https://paw.example.com", "https://paw.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, baseURL(tt.addr))
		})
	}
}

func TestClient_ServerNotRunning(t *testing.T) {
	_, err := runCmd(t, "", "conversation", "list", "--address", "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeCLIGatewayNotRunning), err.Error())
	assert.Contains(t, err.Error(), "paw start")
}

func TestClient_ProblemDetails(t *testing.T) {
	addr := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title":  "Bad Request",
			"status": 400,
			"detail": "proposal is draft, want tested-pass",
			"errors": []map[string]any{{"message": "error code", "location": "code", "value": "proposal.transition.invalid"}},
		})
	}))

	_, err := runCmd(t, "", "proposal", "approve", "p1", "--approver", "alice", "--address", addr)
	require.Error(t, err)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeCLIRequestFailure))
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "proposal is draft")
	assert.Contains(t, err.Error(), "[proposal.transition.invalid]")
}

func TestClient_SendsBearerToken(t *testing.T) {
	var auth string
	addr := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"conversations": []any{}})
	}))
	useSecretStore(t, newMockSecretStore())
	require.NoError(t, secretStoreFactory().Store("paw", "server-api-key", "s3cret"))

	cfg := writeConfig(t, "server:\n  api_key: \"keyring://paw/server-api-key\"\n")
	out, err := runCmd(t, "", "--config", cfg, "conversation", "list", "--address", addr)
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", auth)
	assert.Contains(t, out, "No conversations.")
}

func TestNewAPIClient_FallsBackToListen(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("server.listen", ":18000")

	c := newAPIClient()
	assert.Equal(t, "http://127.0.0.1:18000", c.baseURL)
	assert.Empty(t, c.token)
}

func TestResponseError_PlainBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Body:       http.NoBody,
	}
	err := responseError(resp)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeCLIRequestFailure))
	assert.Contains(t, err.Error(), "server returned 503")
}
