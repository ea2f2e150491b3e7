// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/elemarin/paw/internal/agent"
	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/config"
	"github.com/elemarin/paw/internal/memory"
	"github.com/elemarin/paw/internal/proposal"
	"github.com/elemarin/paw/internal/provider"
	anthropicprov "github.com/elemarin/paw/internal/provider/anthropic"
	googleprov "github.com/elemarin/paw/internal/provider/google"
	openaiprov "github.com/elemarin/paw/internal/provider/openai"
	"github.com/elemarin/paw/internal/sandbox"
	"github.com/elemarin/paw/internal/scanner"
	"github.com/elemarin/paw/internal/secrets"
	"github.com/elemarin/paw/internal/server"
	"github.com/elemarin/paw/internal/store"
	_ "github.com/elemarin/paw/internal/store/sqlite" // register sqlite backend
	"github.com/elemarin/paw/internal/tool"
	"github.com/elemarin/paw/internal/tool/builtin"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// App holds every wired subsystem and manages their lifecycle.
type App struct {
	Server    *server.Server
	Store     store.Store
	Providers *provider.Registry
	Tools     *tool.Registry
	Loader    *capability.Loader
	Loop      *agent.Loop
	Proposals *proposal.Service
	Memory    *memory.Service
	Watch     bool
	Debounce  time.Duration
	log       *slog.Logger
}

// WireOptions carries collaborators that tests replace.
type WireOptions struct {
	Secrets     secrets.Store
	ValidateKey server.KeyValidator
	Logger      *slog.Logger
}

// absUnder resolves path against base unless it is already absolute.
func absUnder(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// WireApp creates all subsystems and wires them together. dataDir is the
// root for every relative path in cfg.
func WireApp(ctx context.Context, cfg *config.Config, dataDir string, opts WireOptions) (_ *App, err error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, pawerr.Errorf(pawerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	app := &App{
		Watch:    cfg.Capabilities.Watch,
		Debounce: cfg.Capabilities.Debounce,
		log:      log,
	}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	// 1. Persistence.
	app.Store, err = store.New(&store.StorageConfig{Backend: cfg.Storage.Backend}, dataDir)
	if err != nil {
		return nil, pawerr.Wrap(err, pawerr.CodeCLISetupFailure, "opening store")
	}

	// 2. Sandbox. Roots are fixed here for the life of the process.
	roots := make([]string, 0, len(cfg.Sandbox.Roots))
	for _, r := range cfg.Sandbox.Roots {
		abs := absUnder(dataDir, r)
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, pawerr.Errorf(pawerr.CodeCLISetupFailure, "creating sandbox root %s: %w", abs, err)
		}
		roots = append(roots, abs)
	}
	paths, err := sandbox.NewPolicy(absUnder(dataDir, cfg.Sandbox.Workspace), roots)
	if err != nil {
		return nil, err
	}
	// Bundles and scripts only reach these directories through an
	// approved proposal, so no tool may write into them.
	capDir := absUnder(dataDir, cfg.Capabilities.Dir)
	scriptsDir := absUnder(dataDir, "scripts")
	scratch := absUnder(dataDir, "proposals")
	if err := paths.Reserve(capDir, scriptsDir, scratch); err != nil {
		return nil, err
	}
	sandboxOpts := sandbox.Options{
		Timeout:   cfg.Sandbox.Timeout,
		MaxOutput: cfg.Sandbox.MaxOutput,
		Isolation: cfg.Sandbox.Isolation,
		Logger:    log,
	}
	commands := sandbox.NewCommandPolicy(cfg.Sandbox.Blocked, cfg.Sandbox.ApprovalPatterns)
	executor, err := sandbox.NewExecutor(paths, commands, sandboxOpts)
	if err != nil {
		return nil, err
	}

	// 3. Providers.
	app.Providers = provider.NewRegistry()
	registerBuiltinProviders(cfg, app.Providers, log)
	// The server still starts without a usable provider so keys can be
	// configured over the API; chat turns fail until then.
	if err := app.Providers.SetDefault(cfg.Models.Default); err != nil {
		log.Warn("default model unavailable", "model", cfg.Models.Default, "error", err)
	}
	if len(cfg.Models.Failover) > 0 {
		if err := app.Providers.SetFailover(cfg.Models.Failover); err != nil {
			log.Warn("failover chain unavailable", "error", err)
		}
	}

	// 4. Memory.
	app.Memory = memory.New(app.Store.Memory(), memory.Config{
		Scope:    cfg.Memory.Scope,
		Periods:  cfg.Memory.Periods,
		MaxChars: cfg.Memory.MaxChars,
		Logger:   log,
	})

	// 5. Tools and capabilities.
	app.Tools = tool.NewRegistry()
	launcher, err := sandbox.LauncherArgs(cfg.Sandbox.Isolation, roots, capDir)
	if err != nil {
		return nil, err
	}
	app.Loader, err = capability.NewLoader(capability.LoaderConfig{
		Dir:         capDir,
		Registry:    app.Tools,
		ExecTimeout: cfg.Capabilities.ExecTimeout,
		SandboxCmd:  launcher,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, pawerr.Errorf(pawerr.CodeCLISetupFailure, "creating scratch directory: %w", err)
	}
	tester := proposal.NewTester(proposal.TesterConfig{
		ScratchDir:   scratch,
		Timeout:      cfg.Proposals.TestTimeout,
		Interpreters: cfg.Proposals.Interpreters,
		Commands:     commands,
		Sandbox:      sandboxOpts,
		Logger:       log,
	})
	app.Proposals, err = proposal.NewService(proposal.Config{
		Store:      app.Store.Proposals(),
		Tester:     tester,
		Activator:  app.Loader,
		ScriptsDir: scriptsDir,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	if err := app.Tools.RegisterAll([]tool.Tool{
		builtin.NewFiles(paths, log),
		builtin.NewShell(executor),
		builtin.NewMemory(app.Memory),
		builtin.NewCoder(app.Proposals, app.Loader),
	}); err != nil {
		return nil, err
	}

	report, err := app.Loader.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for dir, loadErr := range report.Failed {
		log.Warn("capability failed to load", "dir", dir, "error", loadErr)
	}
	log.Info("capabilities loaded", "count", len(report.Loaded), "tools", app.Tools.Len())

	// 6. Agent loop.
	secretScan, err := scanner.ParseMode(cfg.Agent.SecretScan)
	if err != nil {
		return nil, err
	}
	credentials, err := scanner.New()
	if err != nil {
		return nil, err
	}
	dispatcher, err := tool.NewDispatcher(tool.DispatcherConfig{
		Registry: app.Tools,
		Calls:    app.Store.ToolCalls(),
		Timeout:  cfg.Agent.ToolTimeout,
		Scanner:  credentials,
		ScanMode: secretScan,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	app.Loop, err = agent.NewLoop(agent.LoopConfig{
		Conversations: app.Store.Conversations(),
		Gateway:       app.Providers,
		Dispatcher:    dispatcher,
		Memory:        app.Memory,
		MemoryScope:   cfg.Memory.Scope,
		Soul:          agent.LoadSoul(absUnder(dataDir, cfg.Agent.SoulPath)),
		Limits: agent.Limits{
			MaxIterations: cfg.Agent.MaxIterations,
			MaxToolCalls:  cfg.Agent.MaxToolCalls,
			TokenBudget:   cfg.Agent.TokenBudget,
		},
		Retry: provider.RetryPolicy{
			MaxRetries: cfg.Agent.Retry.MaxRetries,
			BaseDelay:  cfg.Agent.Retry.BaseDelay,
			MaxDelay:   cfg.Agent.Retry.MaxDelay,
			Multiplier: cfg.Agent.Retry.Multiplier,
			Jitter:     cfg.Agent.Retry.Jitter,
		},
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	// 7. HTTP server.
	secretStore := opts.Secrets
	if secretStore == nil {
		secretStore = secretStoreFactory()
	}
	validate := opts.ValidateKey
	if validate == nil {
		validate = server.DefaultKeyValidator(&http.Client{Timeout: 10 * time.Second})
	}
	app.Server, err = server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Logger: log,
	}, &server.Services{
		Agent:         app.Loop,
		Conversations: app.Store.Conversations(),
		Tools:         app.Tools,
		Capabilities:  app.Loader,
		Proposals:     app.Proposals,
		Memory:        app.Memory,
		Providers:     app.Providers,
		Secrets:       secretStore,
		ValidateKey:   validate,
	})
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Close releases all resources held by the app. Capabilities unload
// before the store closes.
func (a *App) Close() error {
	var errs []error
	if a.Server != nil {
		a.Server.Close()
	}
	if a.Loop != nil {
		a.Loop.Close()
	}
	if a.Loader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		errs = append(errs, a.Loader.Close(ctx))
		cancel()
	}
	if a.Providers != nil {
		errs = append(errs, a.Providers.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	string(provider.ProviderAnthropic): func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	string(provider.ProviderGoogle): func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	string(provider.ProviderOpenAI): func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders registers every configured provider with a known
// name and a non-empty key. Neither an unknown name nor a missing key is
// fatal at startup.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry, log *slog.Logger) {
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" || secrets.IsRef(pc.APIKey) {
			log.Warn("skipping provider without a usable API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			log.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			log.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		log.Info("registered provider", "provider", name)
	}
}
