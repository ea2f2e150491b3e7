// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/secrets"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key -> value (service is always "paw")
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", pawerr.Errorf(pawerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return pawerr.Errorf(pawerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// useSecretStore swaps secretStoreFactory for the duration of the test.
func useSecretStore(t *testing.T, s secrets.Store) {
	t.Helper()
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return s }
	t.Cleanup(func() { secretStoreFactory = old })
}

// testSetupGateway starts handler on a local listener and points the
// client commands at it.
func testSetupGateway(t *testing.T, handler http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	t.Cleanup(func() {
		defaultHTTPClient = old
		srv.Close()
	})
	return srv.URL[len("http://"):]
}

// writeConfig writes a config file to a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runCmd executes the root command with a throwaway config so the user's
// real config is never read or bootstrapped.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	hasConfig := false
	for _, a := range args {
		if a == "--config" || a == "-c" {
			hasConfig = true
		}
	}
	if !hasConfig {
		args = append([]string{"--config", writeConfig(t, "storage:\n  backend: sqlite\n")}, args...)
	}

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}
