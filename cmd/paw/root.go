// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/elemarin/paw/internal/config"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// NewRootCmd creates the root paw command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "paw",
		Short:         "Paw: a self-extending personal agent",
		Long:          "Paw is an autonomous agent that thinks, acts through sandboxed tools, and proposes new capabilities for human approval.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), viper.GetViper()))
			return nil
		},
	}

	// Global flags map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().String("address", "", "server address for client commands (default: server.listen)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newChatCmd(),
		newConversationCmd(),
		newProposalCmd(),
		newCapabilityCmd(),
		newMemoryCmd(),
		newSecretCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return pawerr.Errorf(pawerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted: with it, viper also tries the bare
		// name, which collides with a ./paw binary.
		v.SetConfigName("paw")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/paw")
		v.AddConfigPath("/etc/paw")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return pawerr.Errorf(pawerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return pawerr.Errorf(pawerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}
	config.WarnInsecurePermissions(v.ConfigFileUsed())

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"data_dir": "data-dir",
		"address":  "address",
		"verbose":  "verbose",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return pawerr.Errorf(pawerr.CodeCLISetupFailure, "binding %s flag: %w", flag, err)
		}
	}

	return nil
}

// newLogger builds the slog handler from logging.level and logging.format.
// --verbose forces debug.
func newLogger(w io.Writer, v *viper.Viper) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("logging.level"))); err != nil {
		level = slog.LevelInfo
	}
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(v.GetString("logging.format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
