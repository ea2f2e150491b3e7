// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/server"
)

func newCapabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capability",
		Aliases: []string{"cap"},
		Short:   "Inspect and reload capability bundles",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List loaded capability bundles and their tools",
			RunE:  runCapabilityList,
		},
		&cobra.Command{
			Use:   "reload",
			Short: "Rescan the capabilities directory",
			RunE:  runCapabilityReload,
		},
	)
	return cmd
}

func runCapabilityList(cmd *cobra.Command, _ []string) error {
	var body struct {
		Capabilities []capability.Status `json:"capabilities"`
	}
	if err := newAPIClient().getJSON(cmd.Context(), "/api/v1/capabilities", &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Capabilities) == 0 {
		_, _ = fmt.Fprintln(out, "No capabilities loaded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tVERSION\tRUNTIME\tSTATE\tTOOLS")
	for _, c := range body.Capabilities {
		tools := strings.Join(c.Tools, ",")
		if c.Error != "" {
			tools = "error: " + c.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Version, c.Runtime, c.State, tools)
	}
	return w.Flush()
}

func runCapabilityReload(cmd *cobra.Command, _ []string) error {
	var report server.ReloadReport
	if err := newAPIClient().doJSON(cmd.Context(), http.MethodPost, "/api/v1/capabilities/reload", nil, &report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Loaded %d capabilities", len(report.Loaded))
	if len(report.Loaded) > 0 {
		_, _ = fmt.Fprintf(out, ": %s", strings.Join(report.Loaded, ", "))
	}
	_, _ = fmt.Fprintln(out)

	dirs := make([]string, 0, len(report.Failed))
	for dir := range report.Failed {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		_, _ = fmt.Fprintf(out, "  failed %s: %s\n", dir, report.Failed[dir])
	}
	for _, name := range report.RestartRequired {
		_, _ = fmt.Fprintf(out, "  %s changed but needs a restart to take effect\n", name)
	}
	return nil
}
