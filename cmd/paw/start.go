// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/config"
	"github.com/elemarin/paw/internal/secrets"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the paw server",
		Long:  "Load configuration, initialize all subsystems, and serve the HTTP API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().Bool("watch", false, "reload capabilities when their files change")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("capabilities.watch", cmd.Flags().Lookup("watch"))

	return cmd
}

// loadConfig resolves keyring references in the global viper and decodes it.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	secrets.ResolveViper(v, secretStoreFactory())
	return config.FromViper(v)
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir := resolveDataDir()
	app, err := WireApp(ctx, cfg, dataDir, WireOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			slog.Warn("shutdown incomplete", "error", cerr)
		}
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "paw listening on %s (data: %s)\n", cfg.Server.Listen, dataDir)
	return app.Run(ctx)
}

// Run serves the API and, when enabled, watches the capabilities directory.
// The first component to fail stops the others.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Server.Start(ctx) })

	if a.Watch {
		w, err := capability.NewWatcher(a.Loader, a.Debounce, a.log)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// resolveDataDir returns data_dir from viper, or ~/.paw.
func resolveDataDir() string {
	if dataDir := viper.GetString("data_dir"); dataDir != "" {
		return dataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("no home directory, using ./.paw", "error", err)
		return ".paw"
	}
	return filepath.Join(home, ".paw")
}
