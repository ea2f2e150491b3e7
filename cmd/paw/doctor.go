// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/config"
	"github.com/elemarin/paw/internal/sandbox"
	"github.com/elemarin/paw/internal/secrets"
	"github.com/elemarin/paw/internal/server"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the server, configuration, provider keys, interpreters, sandbox isolation and disk space.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	dataDir := resolveDataDir()

	cfg, cfgErr := config.FromViper(viper.GetViper())

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Server", func() string { return checkServer(cmd.Context()) }},
		{"Config", func() string { return checkConfig(cfgErr) }},
	}
	if cfg != nil {
		checks = append(checks, []struct {
			name string
			fn   func() string
		}{
			{"Providers", func() string { return checkProviders(cfg) }},
			{"Interpreters", func() string { return checkInterpreters(cfg) }},
			{"Isolation", func() string { return checkIsolation(cfg) }},
			{"Capabilities", func() string { return checkCapabilities(absUnder(dataDir, cfg.Capabilities.Dir)) }},
		}...)
	}
	checks = append(checks, struct {
		name string
		fn   func() string
	}{"Disk Space", func() string { return checkDiskSpace(dataDir) }})

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("paw %s (%s/%s)", server.Version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkServer(ctx context.Context) string {
	c := newAPIClient()
	var body server.HealthBody
	if err := c.getJSON(ctx, "/health", &body); err != nil {
		if pawerr.HasCode(err, pawerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'paw start')", c.baseURL)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s (version %s)", body.Status, c.baseURL, body.Version)
}

func checkConfig(err error) string {
	src := "defaults (no config file found)"
	if f := viper.ConfigFileUsed(); f != "" {
		src = f
	}
	if err != nil {
		return fmt.Sprintf("invalid (%s): %s", src, err)
	}
	return "loaded from " + src
}

// checkProviders reports which configured providers have a usable key.
// Keyring references are resolved against the secret store.
func checkProviders(cfg *config.Config) string {
	if len(cfg.Providers) == 0 {
		return "none configured (run 'paw init')"
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	store := secretStoreFactory()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		key := cfg.Providers[name].APIKey
		switch {
		case key == "":
			parts = append(parts, name+": no key")
		case secrets.IsRef(key):
			if _, err := secrets.Resolve(store, key); err != nil {
				parts = append(parts, name+": key missing from keyring")
			} else {
				parts = append(parts, name+": ok (keyring)")
			}
		default:
			parts = append(parts, name+": ok (plain text)")
		}
	}
	return strings.Join(parts, ", ")
}

func checkInterpreters(cfg *config.Config) string {
	if len(cfg.Proposals.Interpreters) == 0 {
		return "none (script proposals disabled)"
	}
	names := make([]string, 0, len(cfg.Proposals.Interpreters))
	for name := range cfg.Proposals.Interpreters {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(cfg.Proposals.Interpreters[name]); err != nil {
			parts = append(parts, name+": missing")
			continue
		}
		parts = append(parts, name+": ok")
	}
	return strings.Join(parts, ", ")
}

func checkIsolation(cfg *config.Config) string {
	if cfg.Sandbox.Isolation != sandbox.IsolationBwrap {
		return "none (commands run directly on the host)"
	}
	if _, err := exec.LookPath("bwrap"); err != nil {
		return "bwrap configured but not found in PATH"
	}
	return "bwrap"
}

func checkCapabilities(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("no capabilities directory at %s", dir)
		}
		return fmt.Sprintf("error reading capabilities: %s", err)
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		for _, name := range capability.ManifestFiles {
			if _, err := os.Stat(filepath.Join(dir, e.Name(), name)); err == nil {
				count++
				break
			}
		}
	}
	if count == 0 {
		return "no capabilities installed"
	}
	return fmt.Sprintf("%d bundle(s) in %s", count, dir)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
