// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package store

import (
	"sort"
	"sync"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Factory opens a Store rooted at dataPath.
type Factory func(dataPath string) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New opens the configured backend, defaulting to "sqlite".
func New(cfg *StorageConfig, dataPath string) (Store, error) {
	backend := "sqlite"
	if cfg != nil && cfg.Backend != "" {
		backend = cfg.Backend
	}

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, pawerr.Errorf(pawerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}
