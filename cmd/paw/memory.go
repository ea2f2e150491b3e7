// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elemarin/paw/internal/server"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage facts the agent remembers",
	}
	cmd.PersistentFlags().String("scope", "", "memory scope (default: memory.scope)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List remembered facts",
		RunE:  runMemoryList,
	}
	list.Flags().Bool("context", false, "print the block injected into prompts instead")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "remember <key> <value...>",
			Short: "Remember a fact",
			Args:  cobra.MinimumNArgs(2),
			RunE:  runMemoryRemember,
		},
		&cobra.Command{
			Use:   "forget <key>",
			Short: "Forget a fact",
			Args:  cobra.ExactArgs(1),
			RunE:  runMemoryForget,
		},
	)
	return cmd
}

func scopeQuery(cmd *cobra.Command) string {
	if scope, _ := cmd.Flags().GetString("scope"); scope != "" {
		return "?scope=" + url.QueryEscape(scope)
	}
	return ""
}

func runMemoryList(cmd *cobra.Command, _ []string) error {
	client := newAPIClient()
	out := cmd.OutOrStdout()

	if asContext, _ := cmd.Flags().GetBool("context"); asContext {
		var body struct {
			Block string `json:"block"`
		}
		if err := client.getJSON(cmd.Context(), "/api/v1/memory/context"+scopeQuery(cmd), &body); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, body.Block)
		return nil
	}

	var body struct {
		Scope   string                   `json:"scope"`
		Entries []server.MemoryEntryView `json:"entries"`
	}
	if err := client.getJSON(cmd.Context(), "/api/v1/memory"+scopeQuery(cmd), &body); err != nil {
		return err
	}
	if len(body.Entries) == 0 {
		_, _ = fmt.Fprintf(out, "Nothing remembered in scope %q.\n", body.Scope)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tVALUE")
	for _, e := range body.Entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Key, truncate(e.Value, 80))
	}
	return w.Flush()
}

func runMemoryRemember(cmd *cobra.Command, args []string) error {
	scope, _ := cmd.Flags().GetString("scope")
	body := map[string]string{"value": strings.Join(args[1:], " "), "scope": scope}
	if err := newAPIClient().doJSON(cmd.Context(), http.MethodPut, "/api/v1/memory/"+url.PathEscape(args[0]), body, nil); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Remembered %s\n", args[0])
	return nil
}

func runMemoryForget(cmd *cobra.Command, args []string) error {
	path := "/api/v1/memory/" + url.PathEscape(args[0]) + scopeQuery(cmd)
	if err := newAPIClient().doJSON(cmd.Context(), http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
	return nil
}
