// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

//go:embed paw.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/paw/paw.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pawerr.Errorf(pawerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "paw", "paw.yaml"), nil
}

// BootstrapConfig writes the embedded default config to DefaultConfigPath when
// no file exists there yet. It returns the written path, or "" when the file
// already existed or could not be written; failures are logged at debug level.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return "" // already exists
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
