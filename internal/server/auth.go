// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// authMiddleware requires "Authorization: Bearer <apiKey>" on /api routes.
// /health and the OpenAPI documents stay public. An empty apiKey disables
// the check.
func authMiddleware(apiKey string, log *slog.Logger) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				log.Warn("rejected unauthenticated request",
					"method", r.Method,
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
					"security", true,
				)
				w.Header().Set("Content-Type", "application/problem+json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="paw"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":401,"title":"Unauthorized","detail":"missing or invalid bearer token"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
