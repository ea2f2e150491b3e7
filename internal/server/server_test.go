// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/server"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestNew_RequiresListenAddr(t *testing.T) {
	_, err := server.New(server.Config{}, nil)
	require.Error(t, err)
	assert.True(t, pawerr.HasCode(err, pawerr.CodeServerConfigInvalid))
}

func TestNew_RejectsIncompleteServices(t *testing.T) {
	_, err := server.New(server.Config{ListenAddr: ":0"}, &server.Services{})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/health", nil)
	requireStatus(t, w, http.StatusOK)

	body := decode[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, server.Version, body["version"])
}

func TestOpenAPI_DocumentsEveryRoute(t *testing.T) {
	srv, err := server.New(server.Config{ListenAddr: ":0", Logger: discard}, nil)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	paths := srv.API().OpenAPI().Paths
	for _, p := range []string{
		"/health",
		"/api/v1/chat",
		"/api/v1/chat/stream",
		"/api/v1/conversations",
		"/api/v1/conversations/{id}",
		"/api/v1/tools",
		"/api/v1/capabilities",
		"/api/v1/capabilities/reload",
		"/api/v1/proposals",
		"/api/v1/proposals/{id}",
		"/api/v1/proposals/{id}/approve",
		"/api/v1/memory",
		"/api/v1/memory/{key}",
		"/api/v1/providers/health",
		"/api/v1/config/providers",
	} {
		assert.Contains(t, paths, p)
	}
}

func TestNilServices_APIUnavailable(t *testing.T) {
	srv, err := server.New(server.Config{ListenAddr: ":0", Logger: discard}, nil)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	e := newEnv(t, func(c *server.Config, _ *server.Services) {
		c.CORSOrigins = []string{"http://localhost:5173"}
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tools", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
