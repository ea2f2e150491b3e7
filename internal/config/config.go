// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Config is the top-level Paw configuration.
type Config struct {
	Server       ServerConfig              `mapstructure:"server"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
	Models       ModelsConfig              `mapstructure:"models"`
	Agent        AgentConfig               `mapstructure:"agent"`
	Sandbox      SandboxConfig             `mapstructure:"sandbox"`
	Memory       MemoryConfig              `mapstructure:"memory"`
	Capabilities CapabilitiesConfig        `mapstructure:"capabilities"`
	Proposals    ProposalsConfig           `mapstructure:"proposals"`
	Storage      StorageConfig             `mapstructure:"storage"`
	Logging      LoggingConfig             `mapstructure:"logging"`
	DataDir      string                    `mapstructure:"data_dir"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Listen      string          `mapstructure:"listen"`
	APIKey      string          `mapstructure:"api_key"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is the per-IP token bucket on the HTTP API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls model selection and budgets.
type ModelsConfig struct {
	Default  string        `mapstructure:"default"`
	Failover []string      `mapstructure:"failover"`
	Budgets  BudgetsConfig `mapstructure:"budgets"`
}

// BudgetsConfig sets cost limits enforced by the provider router.
type BudgetsConfig struct {
	PerDayUSD float64 `mapstructure:"per_day_usd"`
}

// AgentConfig bounds one loop turn.
type AgentConfig struct {
	SoulPath      string        `mapstructure:"soul_path"`
	MaxIterations int           `mapstructure:"max_iterations"`
	MaxToolCalls  int           `mapstructure:"max_tool_calls"`
	TokenBudget   int           `mapstructure:"token_budget"`
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`
	// SecretScan is redact, flag, block or off.
	SecretScan    string        `mapstructure:"secret_scan"`
	Retry         RetryConfig   `mapstructure:"retry"`
}

// RetryConfig is the backoff policy for transient gateway failures.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     bool          `mapstructure:"jitter"`
}

// SandboxConfig fixes the roots and command policy for tool execution.
type SandboxConfig struct {
	Workspace        string        `mapstructure:"workspace"`
	Roots            []string      `mapstructure:"roots"`
	Blocked          []string      `mapstructure:"blocked"`
	ApprovalPatterns []string      `mapstructure:"approval_patterns"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxOutput        int           `mapstructure:"max_output"`
	Isolation        string        `mapstructure:"isolation"`
}

// MemoryConfig bounds the context block injected into every prompt.
type MemoryConfig struct {
	Scope    string `mapstructure:"scope"`
	Periods  int    `mapstructure:"periods"`
	MaxChars int    `mapstructure:"max_chars"`
}

// CapabilitiesConfig locates capability bundles.
type CapabilitiesConfig struct {
	Dir         string        `mapstructure:"dir"`
	Watch       bool          `mapstructure:"watch"`
	Debounce    time.Duration `mapstructure:"debounce"`
	ExecTimeout time.Duration `mapstructure:"exec_timeout"`
}

// ProposalsConfig controls the isolated test stage.
type ProposalsConfig struct {
	TestTimeout  time.Duration     `mapstructure:"test_timeout"`
	Interpreters map[string]string `mapstructure:"interpreters"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8000")
	v.SetDefault("server.rate_limit.requests_per_second", 0)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("models.budgets.per_day_usd", 50.00)

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.max_tool_calls", 20)
	v.SetDefault("agent.token_budget", 100000)
	v.SetDefault("agent.tool_timeout", "60s")
	v.SetDefault("agent.secret_scan", "redact")
	v.SetDefault("agent.retry.max_retries", 2)
	v.SetDefault("agent.retry.base_delay", "1s")
	v.SetDefault("agent.retry.max_delay", "60s")
	v.SetDefault("agent.retry.multiplier", 2.0)
	v.SetDefault("agent.retry.jitter", true)

	v.SetDefault("sandbox.workspace", "workspace")
	v.SetDefault("sandbox.roots", []string{"workspace", "data", "tmp"})
	v.SetDefault("sandbox.blocked", []string{"reboot", "shutdown", "init", "mkfs"})
	v.SetDefault("sandbox.approval_patterns", []string{"rm -rf", "dd ", "sudo"})
	v.SetDefault("sandbox.timeout", "30s")
	v.SetDefault("sandbox.max_output", 10000)
	v.SetDefault("sandbox.isolation", "none")

	v.SetDefault("memory.scope", "global")
	v.SetDefault("memory.periods", 3)
	v.SetDefault("memory.max_chars", 8000)

	v.SetDefault("capabilities.dir", "capabilities")
	v.SetDefault("capabilities.watch", false)
	v.SetDefault("capabilities.debounce", "500ms")
	v.SetDefault("capabilities.exec_timeout", "30s")

	v.SetDefault("proposals.test_timeout", "60s")
	v.SetDefault("proposals.interpreters", map[string]string{
		"sh":     "/bin/sh",
		"python": "python3",
	})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv binds PAW_ prefixed environment variables, with "." in keys
// replaced by "_" (PAW_SERVER_LISTEN overrides server.listen).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PAW_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, pawerr.Errorf(pawerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates an already-populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pawerr.Errorf(pawerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateSandbox()...)
	errs = append(errs, c.validateMemory()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		return append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr,
		))
	} else if port < 1 || port > 65535 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port,
		))
	}

	rl := c.Server.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond,
		))
	} else if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: server.rate_limit.burst must be greater than 0 when a rate is set, got %d", rl.Burst,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		return []error{pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q",
			c.Storage.Backend,
		)}
	}
	return nil
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue, "config: models.default must not be empty"))
	} else if !strings.Contains(c.Models.Default, "/") {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: models.default must be in \"provider/model\" format, got %q",
			c.Models.Default,
		))
	} else if c.Providers != nil {
		// A nil map means no providers section was configured (fresh install).
		providerName := providerFromModel(c.Models.Default)
		if _, ok := c.Providers[providerName]; !ok {
			errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
				"config: models.default %q references provider %q which is not configured",
				c.Models.Default, providerName,
			))
		}
	}

	for i, model := range c.Models.Failover {
		if !strings.Contains(model, "/") {
			errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
				"config: models.failover[%d] must be in \"provider/model\" format, got %q",
				i, model,
			))
		}
	}

	if c.Models.Budgets.PerDayUSD < 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: models.budgets.per_day_usd must not be negative, got %g",
			c.Models.Budgets.PerDayUSD,
		))
	}

	return errs
}

func (c *Config) validateAgent() []error {
	var errs []error

	positive := map[string]int{
		"agent.max_iterations": c.Agent.MaxIterations,
		"agent.max_tool_calls": c.Agent.MaxToolCalls,
		"agent.token_budget":   c.Agent.TokenBudget,
	}
	for _, key := range []string{"agent.max_iterations", "agent.max_tool_calls", "agent.token_budget"} {
		if positive[key] <= 0 {
			errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
				"config: %s must be greater than 0, got %d", key, positive[key],
			))
		}
	}

	if c.Agent.Retry.MaxRetries < 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: agent.retry.max_retries must not be negative, got %d", c.Agent.Retry.MaxRetries,
		))
	}
	switch c.Agent.SecretScan {
	case "redact", "flag", "block", "off":
	default:
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: agent.secret_scan must be one of redact, flag, block, off; got %q", c.Agent.SecretScan,
		))
	}
	if c.Agent.Retry.Multiplier < 1 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: agent.retry.multiplier must be at least 1, got %g", c.Agent.Retry.Multiplier,
		))
	}

	return errs
}

func (c *Config) validateSandbox() []error {
	var errs []error

	if len(c.Sandbox.Roots) == 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue, "config: sandbox.roots must not be empty"))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: sandbox.timeout must be greater than 0, got %s", c.Sandbox.Timeout,
		))
	}
	if c.Sandbox.MaxOutput <= 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: sandbox.max_output must be greater than 0, got %d", c.Sandbox.MaxOutput,
		))
	}

	validIsolation := map[string]bool{"none": true, "bwrap": true}
	if !validIsolation[c.Sandbox.Isolation] {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: sandbox.isolation must be one of [none, bwrap], got %q", c.Sandbox.Isolation,
		))
	}

	return errs
}

func (c *Config) validateMemory() []error {
	var errs []error

	if c.Memory.Periods <= 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: memory.periods must be greater than 0, got %d", c.Memory.Periods,
		))
	}
	if c.Memory.MaxChars <= 0 {
		errs = append(errs, pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue,
			"config: memory.max_chars must be greater than 0, got %d", c.Memory.MaxChars,
		))
	}

	return errs
}

// providerFromModel extracts the provider prefix from a "provider/model" string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
