// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file at path is
// group- or world-readable. API keys and the server api_key live there.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	if perm&(groupRead|otherRead) != 0 {
		slog.Warn(
			"config file is readable by other users; API keys may be exposed",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
