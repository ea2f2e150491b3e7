// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/elemarin/paw/internal/server"
)

func newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Inspect and delete conversations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE:  runConversationList,
	}
	list.Flags().Int("limit", 20, "maximum number of conversations (0 = all)")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a conversation transcript",
			Args:  cobra.ExactArgs(1),
			RunE:  runConversationShow,
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a conversation and its messages",
			Args:  cobra.ExactArgs(1),
			RunE:  runConversationDelete,
		},
	)
	return cmd
}

func runConversationList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	var body struct {
		Conversations []server.ConversationSummary `json:"conversations"`
	}
	if err := newAPIClient().getJSON(cmd.Context(), fmt.Sprintf("/api/v1/conversations?limit=%d", limit), &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Conversations) == 0 {
		_, _ = fmt.Fprintln(out, "No conversations.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
	for _, c := range body.Conversations {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.UpdatedAt.Local().Format(time.DateTime), truncate(c.Title, 60))
	}
	return w.Flush()
}

func runConversationShow(cmd *cobra.Command, args []string) error {
	var conv server.ConversationDetail
	if err := newAPIClient().getJSON(cmd.Context(), "/api/v1/conversations/"+url.PathEscape(args[0]), &conv); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Conversation %s", conv.ID)
	if conv.Title != "" {
		_, _ = fmt.Fprintf(out, " (%s)", conv.Title)
	}
	_, _ = fmt.Fprintln(out)
	for _, m := range conv.Messages {
		switch {
		case m.ToolName != "":
			_, _ = fmt.Fprintf(out, "[%s:%s] %s\n", m.Role, m.ToolName, truncate(m.Content, 400))
		case len(m.ToolCalls) > 0:
			for _, tc := range m.ToolCalls {
				_, _ = fmt.Fprintf(out, "[%s] -> %s %s\n", m.Role, tc.Name, truncate(tc.Arguments, 200))
			}
			if m.Content != "" {
				_, _ = fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
			}
		default:
			_, _ = fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
		}
	}
	return nil
}

func runConversationDelete(cmd *cobra.Command, args []string) error {
	if err := newAPIClient().doJSON(cmd.Context(), http.MethodDelete, "/api/v1/conversations/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation: %s\n", args[0])
	return nil
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
