// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sqlite

import (
	"path/filepath"

	"github.com/elemarin/paw/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", func(dataPath string) (store.Store, error) {
		return Open(filepath.Join(dataPath, "paw.db"))
	})
}
