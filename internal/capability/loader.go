// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Registry is the part of tool.Registry the loader mutates.
type Registry interface {
	RegisterAll(tools []tool.Tool) error
	UnregisterOwner(owner string) []string
}

type LoaderConfig struct {
	// Dir holds one subdirectory per bundle.
	Dir      string
	Registry Registry
	// Builtins defaults to DefaultBuiltins.
	Builtins map[string]BuiltinFactory
	// ExecTimeout bounds a single tool call into an interpreted, wasm, or
	// executable capability. Zero means no limit beyond the dispatcher's.
	ExecTimeout time.Duration
	// SandboxCmd prefixes executable capabilities.
	SandboxCmd []string
	Logger     *slog.Logger
}

// Report summarizes one LoadAll pass. Failed is keyed by bundle directory.
type Report struct {
	Loaded          []string         `json:"loaded"`
	Failed          map[string]error `json:"-"`
	RestartRequired []string         `json:"restart_required,omitempty"`
}

// FailedMessages renders Failed for JSON output.
func (r Report) FailedMessages() map[string]string {
	out := make(map[string]string, len(r.Failed))
	for k, err := range r.Failed {
		out[k] = err.Error()
	}
	return out
}

type bundle struct {
	dir      string
	manifest *Manifest
	inst     *Instance
	cap      Capability
	tools    []string
}

// Loader owns every bundle under Dir. Loads and unloads are serialized;
// List is safe to call concurrently with them.
type Loader struct {
	dir         string
	registry    Registry
	builtins    map[string]BuiltinFactory
	execTimeout time.Duration
	sandboxCmd  []string
	logger      *slog.Logger

	opMu    sync.Mutex // serializes load/unload
	mu      sync.RWMutex
	bundles map[string]*bundle
}

func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Registry == nil {
		return nil, pawerr.New(pawerr.CodeCapabilityLoadFailure, "loader requires a tool registry")
	}
	if cfg.Dir == "" {
		return nil, pawerr.New(pawerr.CodeCapabilityLoadFailure, "loader requires a capabilities directory")
	}
	if cfg.Builtins == nil {
		cfg.Builtins = DefaultBuiltins()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loader{
		dir:         cfg.Dir,
		registry:    cfg.Registry,
		builtins:    cfg.Builtins,
		execTimeout: cfg.ExecTimeout,
		sandboxCmd:  cfg.SandboxCmd,
		logger:      cfg.Logger,
		bundles:     make(map[string]*bundle),
	}, nil
}

// Dir returns the capabilities directory.
func (l *Loader) Dir() string { return l.dir }

// Discover lists bundle directory names under Dir. Directories starting with
// "." or "_" are skipped. A missing Dir is created.
func (l *Loader) Discover() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Info("capabilities directory not found, creating", "path", l.dir)
			if mkErr := os.MkdirAll(l.dir, 0o750); mkErr != nil {
				return nil, pawerr.Wrap(mkErr, pawerr.CodeCapabilityDiscoveryFailure, "creating capabilities directory",
					pawerr.FieldPath(l.dir))
			}
			return nil, nil
		}
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityDiscoveryFailure, "reading capabilities directory",
			pawerr.FieldPath(l.dir))
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	sort.Strings(dirs)
	return dirs, nil
}

// LoadAll activates every bundle under Dir and unloads bundles whose
// directory disappeared. A failing bundle never prevents the others from
// loading.
func (l *Loader) LoadAll(ctx context.Context) (Report, error) {
	report := Report{Failed: make(map[string]error)}

	dirs, err := l.Discover()
	if err != nil {
		return report, err
	}

	present := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		present[dir] = true
		err := l.Activate(ctx, dir)
		switch {
		case err == nil:
			report.Loaded = append(report.Loaded, dir)
		case pawerr.HasCode(err, pawerr.CodeCapabilityRestartRequired):
			report.RestartRequired = append(report.RestartRequired, dir)
		default:
			report.Failed[dir] = err
		}
	}

	for _, s := range l.List() {
		if !present[s.Dir] && s.State == StateRunning {
			if err := l.Unload(ctx, s.Dir); err != nil {
				report.Failed[s.Dir] = err
			}
		}
	}

	l.logger.Info("capabilities loaded",
		"loaded", len(report.Loaded),
		"failed", len(report.Failed),
		"restart_required", len(report.RestartRequired))
	return report, nil
}

// Activate (re)loads the bundle in Dir/name. A running bundle whose
// manifest has hot_reload: false is left untouched and
// capability.activate.restart_required is returned.
func (l *Loader) Activate(ctx context.Context, name string) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	err := l.activate(ctx, name)
	if err != nil && !pawerr.HasCode(err, pawerr.CodeCapabilityRestartRequired) {
		l.logger.Error("capability load failed", "dir", name, "error", err)
	}
	return err
}

func (l *Loader) activate(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "activation cancelled", pawerr.FieldCapability(dir))
	}

	existing := l.get(dir)
	if existing != nil && existing.inst.State() == StateRunning {
		if !existing.manifest.HotReloadable() {
			return pawerr.New(pawerr.CodeCapabilityRestartRequired,
				"capability "+existing.manifest.Name+" has hot_reload disabled; restart to apply changes",
				pawerr.FieldCapability(existing.manifest.Name))
		}
		if err := l.unload(ctx, existing); err != nil {
			return loadFailure(err, "unloading previous version", existing.manifest.Name)
		}
	}

	m, err := ReadManifest(filepath.Join(l.dir, dir))
	if err != nil {
		err = loadFailure(err, "invalid manifest", dir)
		l.failed(dir, nil, err)
		return err
	}

	if other := l.byName(m.Name); other != nil && other.dir != dir && other.inst.State() == StateRunning {
		err := pawerr.Errorf(pawerr.CodeCapabilityLoadFailure,
			"capability name %q is already used by bundle %s", m.Name, other.dir)
		l.failed(dir, m, err)
		return err
	}

	l.mu.Lock()
	b := l.bundles[dir]
	if b == nil {
		b = &bundle{dir: dir, inst: NewInstance(m.Name)}
		l.bundles[dir] = b
	}
	b.manifest = m
	b.tools = nil
	b.cap = nil
	l.mu.Unlock()

	if err := b.inst.TransitionTo(StateLoading); err != nil {
		return err
	}

	c, tools, err := l.open(ctx, m)
	if err != nil {
		b.inst.Fail(err)
		return pawerr.With(err, pawerr.FieldCapability(m.Name))
	}

	owned := make([]tool.Tool, len(tools))
	names := make([]string, len(tools))
	for i, t := range tools {
		owned[i] = ownedTool{Tool: t, owner: m.Name}
		names[i] = t.Definition().Name
	}
	if err := l.registry.RegisterAll(owned); err != nil {
		_ = safely(func() error { return c.OnUnload(ctx) })
		err = loadFailure(err, "registering tools", m.Name)
		b.inst.Fail(err)
		return err
	}

	l.mu.Lock()
	b.cap = c
	b.tools = names
	l.mu.Unlock()
	if err := b.inst.TransitionTo(StateRunning); err != nil {
		return err
	}

	l.logger.Info("capability loaded",
		"name", m.Name, "version", m.Version, "runtime", m.Runtime, "tools", names)
	return nil
}

// open builds the capability for m's runtime and runs OnLoad, converting
// panics into load failures.
func (l *Loader) open(ctx context.Context, m *Manifest) (Capability, []tool.Tool, error) {
	var c Capability
	switch m.Runtime {
	case RuntimeBuiltin:
		factory, ok := l.builtins[m.Name]
		if !ok {
			return nil, nil, pawerr.Errorf(pawerr.CodeCapabilityLoadFailure, "no builtin capability named %q", m.Name)
		}
		if err := safely(func() error { c = factory(m); return nil }); err != nil {
			return nil, nil, err
		}
	case RuntimeYaegi:
		c = newYaegiCapability(m, l.execTimeout)
	case RuntimeWasm:
		c = newWasmCapability(m, l.execTimeout)
	case RuntimeExecutable:
		c = newExecutableCapability(m, l.sandboxCmd, l.execTimeout)
	default:
		return nil, nil, pawerr.Errorf(pawerr.CodeCapabilityRuntimeUnsupported, "unsupported runtime %q", m.Runtime)
	}
	if c == nil {
		return nil, nil, pawerr.Errorf(pawerr.CodeCapabilityLoadFailure, "builtin factory %q returned nil", m.Name)
	}

	tools, err := l.onLoad(ctx, c)
	if err != nil {
		if pawerr.CodeOf(err) != pawerr.CodeCapabilityLoadFailure {
			err = loadFailure(err, "loading capability", m.Name)
		}
		return nil, nil, err
	}
	for _, t := range tools {
		if t == nil {
			_ = safely(func() error { return c.OnUnload(ctx) })
			return nil, nil, pawerr.New(pawerr.CodeCapabilityLoadFailure, "OnLoad returned a nil tool")
		}
	}
	return c, tools, nil
}

// onLoad runs c.OnLoad bounded by the exec timeout. On failure the
// capability is unloaded; after a timeout that happens once the stuck
// OnLoad returns, so a late result never reaches the registry.
func (l *Loader) onLoad(ctx context.Context, c Capability) ([]tool.Tool, error) {
	if l.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.execTimeout)
		defer cancel()
	}
	unloadCtx := context.WithoutCancel(ctx)

	type result struct {
		tools []tool.Tool
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		r.err = safely(func() error {
			var err error
			r.tools, err = c.OnLoad(ctx)
			return err
		})
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			_ = safely(func() error { return c.OnUnload(unloadCtx) })
		}
		return r.tools, r.err
	case <-ctx.Done():
		go func() {
			<-done
			_ = safely(func() error { return c.OnUnload(unloadCtx) })
		}()
		return nil, pawerr.Wrapf(ctx.Err(), pawerr.CodeCapabilityLoadFailure,
			"loading %s timed out", c.Name())
	}
}

// Unload stops a running bundle and removes its tools.
func (l *Loader) Unload(ctx context.Context, name string) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	b := l.get(name)
	if b == nil {
		b = l.byName(name)
	}
	if b == nil {
		return pawerr.Errorf(pawerr.CodeCapabilityNotFound, "capability %q not found", name)
	}
	if b.inst.State() != StateRunning {
		return nil
	}
	return l.unload(ctx, b)
}

func (l *Loader) unload(ctx context.Context, b *bundle) error {
	if err := b.inst.TransitionTo(StateStopping); err != nil {
		return err
	}
	removed := l.registry.UnregisterOwner(b.manifest.Name)

	var err error
	if b.cap != nil {
		err = safely(func() error { return b.cap.OnUnload(ctx) })
	}

	l.mu.Lock()
	b.cap = nil
	b.tools = nil
	l.mu.Unlock()

	if err != nil {
		err = pawerr.Wrap(err, pawerr.CodeCapabilityRuntimeFailure, "unloading capability",
			pawerr.FieldCapability(b.manifest.Name))
		b.inst.Fail(err)
		l.logger.Warn("capability unload failed", "name", b.manifest.Name, "error", err)
		return err
	}
	if err := b.inst.TransitionTo(StateStopped); err != nil {
		return err
	}
	l.logger.Info("capability unloaded", "name", b.manifest.Name, "tools", removed)
	return nil
}

// Close unloads every running bundle.
func (l *Loader) Close(ctx context.Context) error {
	var errs []error
	for _, s := range l.List() {
		if s.State != StateRunning {
			continue
		}
		if err := l.Unload(ctx, s.Dir); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return pawerr.Join(errs...)
	}
	return nil
}

// List returns the status of every known bundle sorted by name.
func (l *Loader) List() []Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Status, 0, len(l.bundles))
	for _, b := range l.bundles {
		out = append(out, l.status(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the status of the bundle with the given directory or
// capability name.
func (l *Loader) Get(name string) (Status, error) {
	b := l.get(name)
	if b == nil {
		b = l.byName(name)
	}
	if b == nil {
		return Status{}, pawerr.Errorf(pawerr.CodeCapabilityNotFound, "capability %q not found", name)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status(b), nil
}

func (l *Loader) status(b *bundle) Status {
	s := Status{
		Name:  b.inst.Name(),
		Dir:   b.dir,
		State: b.inst.State(),
		Tools: append([]string(nil), b.tools...),
	}
	if b.manifest != nil {
		s.Name = b.manifest.Name
		s.Version = b.manifest.Version
		s.Description = b.manifest.Description
		s.Runtime = b.manifest.Runtime
		s.HotReload = b.manifest.HotReloadable()
	}
	if err := b.inst.Err(); err != nil && s.State == StateErrored {
		s.Error = err.Error()
	}
	return s
}

// failed records a bundle that could not get as far as loading.
func (l *Loader) failed(dir string, m *Manifest, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bundles[dir]
	if b == nil {
		name := dir
		if m != nil {
			name = m.Name
		}
		b = &bundle{dir: dir, inst: NewInstance(name)}
		l.bundles[dir] = b
	}
	if m != nil {
		b.manifest = m
	}
	b.inst.Fail(err)
}

func (l *Loader) get(dir string) *bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bundles[dir]
}

func (l *Loader) byName(name string) *bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.bundles {
		if b.manifest != nil && b.manifest.Name == name {
			return b
		}
	}
	return nil
}

// loadFailure re-codes err as capability.load.failure. Wrapping alone would
// keep the innermost code.
func loadFailure(err error, msg, name string) error {
	return pawerr.New(pawerr.CodeCapabilityLoadFailure, msg+": "+err.Error(),
		pawerr.FieldCapability(name), pawerr.Field("cause_code", string(pawerr.CodeOf(err))))
}

// safely runs fn, converting a panic into a load failure.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pawerr.Errorf(pawerr.CodeCapabilityLoadFailure, "capability panicked: %v", r)
		}
	}()
	return fn()
}
