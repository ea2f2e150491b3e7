// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuth(t *testing.T) {
	e := newEnv(t, withAPIKey("s3cret"))

	tests := []struct {
		name   string
		path   string
		header []string
		status int
	}{
		{"no token", "/api/v1/tools", nil, http.StatusUnauthorized},
		{"wrong token", "/api/v1/tools", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/tools", []string{"Authorization", "Basic s3cret"}, http.StatusUnauthorized},
		{"valid token", "/api/v1/tools", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
		{"health is public", "/health", nil, http.StatusOK},
		{"openapi is public", "/openapi.json", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, tt.path, nil, tt.header...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/tools", nil).Code)
}

func TestAuth_OpenAPIDeclaresBearer(t *testing.T) {
	e := newEnv(t, withAPIKey("s3cret"))
	schemes := e.srv.API().OpenAPI().Components.SecuritySchemes
	assert.Contains(t, schemes, "bearer")
}
