// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elemarin/paw/internal/server"
)

// Build-time variables set via ldflags. The version itself lives in
// server.Version so /health reports the same string.
var (
	commit = "unknown"
	date   = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print paw version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "paw %s (commit: %s, built: %s)\n", server.Version, commit, date)
			return err
		},
	}
}
