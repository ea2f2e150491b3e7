// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend string // "sqlite" is the only supported backend for now.
}
