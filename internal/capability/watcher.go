// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// DefaultDebounce batches bursts of writes (editors, unpacking a bundle)
// into one activation.
const DefaultDebounce = 500 * time.Millisecond

// Activator is the part of Loader the watcher drives.
type Activator interface {
	Dir() string
	Activate(ctx context.Context, name string) error
	Unload(ctx context.Context, name string) error
}

// Watcher re-activates bundles when files under the capabilities directory
// change. Each bundle directory is watched individually since fsnotify is
// not recursive.
type Watcher struct {
	loader   Activator
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]time.Time
	watched map[string]bool
}

func NewWatcher(loader Activator, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityDiscoveryFailure, "creating file watcher")
	}
	return &Watcher{
		loader:   loader,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		pending:  make(map[string]time.Time),
		watched:  make(map[string]bool),
	}, nil
}

// Run watches until ctx is done, then releases the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	root := w.loader.Dir()
	if err := os.MkdirAll(root, 0o750); err != nil {
		return pawerr.Wrap(err, pawerr.CodeCapabilityDiscoveryFailure, "creating capabilities directory",
			pawerr.FieldPath(root))
	}
	if err := w.watcher.Add(root); err != nil {
		return pawerr.Wrap(err, pawerr.CodeCapabilityDiscoveryFailure, "watching capabilities directory",
			pawerr.FieldPath(root))
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return pawerr.Wrap(err, pawerr.CodeCapabilityDiscoveryFailure, "reading capabilities directory",
			pawerr.FieldPath(root))
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchBundle(e.Name())
		}
	}
	w.logger.Info("watching capabilities", "path", root)

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("capability watcher error", "error", err)
		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

// handle maps an event to the bundle directory it belongs to and marks it
// pending.
func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, err := filepath.Rel(w.loader.Dir(), ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	bundle := strings.Split(filepath.ToSlash(rel), "/")[0]
	if strings.HasPrefix(bundle, ".") || strings.HasPrefix(bundle, "_") {
		return
	}

	if ev.Op.Has(fsnotify.Create) && rel == bundle {
		w.watchBundle(bundle)
	}

	w.mu.Lock()
	w.pending[bundle] = time.Now()
	w.mu.Unlock()
	w.logger.Debug("capability change", "bundle", bundle, "op", ev.Op.String())
}

func (w *Watcher) watchBundle(name string) {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[name] {
		return
	}
	path := filepath.Join(w.loader.Dir(), name)
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("cannot watch capability bundle", "path", path, "error", err)
		return
	}
	w.watched[name] = true
}

// flush activates bundles that have been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	for name, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()

	for _, name := range ready {
		path := filepath.Join(w.loader.Dir(), name)
		if _, err := os.Stat(path); err != nil {
			w.mu.Lock()
			delete(w.watched, name)
			w.mu.Unlock()
			if err := w.loader.Unload(ctx, name); err != nil && !pawerr.IsNotFound(err) {
				w.logger.Warn("capability unload after removal failed", "bundle", name, "error", err)
			}
			continue
		}
		if _, err := FindManifest(path); err != nil {
			// Bundle still being written.
			continue
		}
		if err := w.loader.Activate(ctx, name); err != nil {
			if pawerr.HasCode(err, pawerr.CodeCapabilityRestartRequired) {
				w.logger.Warn("capability changed but requires restart", "bundle", name)
			}
			continue
		}
		w.logger.Info("capability reactivated", "bundle", name)
	}
}
