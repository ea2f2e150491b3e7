// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/elemarin/paw/internal/server"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func newProposalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal",
		Short: "Review capabilities the agent has proposed",
		Long: "Proposals move draft -> tested -> approved -> active. " +
			"Approval is only possible from here or the HTTP API, never by the agent itself.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		RunE:  runProposalList,
	}
	list.Flags().String("status", "", "filter by status (draft, tested-pass, tested-fail, approved, active, rejected)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a proposal with its source and history",
		Args:  cobra.ExactArgs(1),
		RunE:  runProposalShow,
	}
	show.Flags().Bool("no-source", false, "omit the source listing")

	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a proposal whose test passed",
		Args:  cobra.ExactArgs(1),
		RunE:  runProposalApprove,
	}
	approve.Flags().String("approver", "", "name of the person approving (required)")
	_ = approve.MarkFlagRequired("approver")

	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a proposal",
		Args:  cobra.ExactArgs(1),
		RunE:  runProposalReject,
	}
	reject.Flags().String("reason", "", "why the proposal is rejected (required)")
	_ = reject.MarkFlagRequired("reason")

	cmd.AddCommand(
		list,
		show,
		&cobra.Command{
			Use:   "test <id>",
			Short: "Run the isolated test stage on a draft",
			Args:  cobra.ExactArgs(1),
			RunE:  proposalStep("test", "Tested"),
		},
		approve,
		reject,
		&cobra.Command{
			Use:   "activate <id>",
			Short: "Install an approved proposal",
			Args:  cobra.ExactArgs(1),
			RunE:  proposalStep("activate", "Activated"),
		},
	)
	return cmd
}

func runProposalList(cmd *cobra.Command, _ []string) error {
	path := "/api/v1/proposals"
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var body struct {
		Proposals []server.ProposalView `json:"proposals"`
	}
	if err := newAPIClient().getJSON(cmd.Context(), path, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Proposals) == 0 {
		_, _ = fmt.Fprintln(out, "No proposals.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tKIND\tRUNTIME\tSTATUS\tUPDATED")
	for _, p := range body.Proposals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Kind, p.Runtime, p.Status, p.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runProposalShow(cmd *cobra.Command, args []string) error {
	var p server.ProposalView
	if err := newAPIClient().getJSON(cmd.Context(), proposalPath(args[0], ""), &p); err != nil {
		return err
	}
	noSource, _ := cmd.Flags().GetBool("no-source")
	printProposal(cmd.OutOrStdout(), &p, !noSource)
	return nil
}

func runProposalApprove(cmd *cobra.Command, args []string) error {
	approver, _ := cmd.Flags().GetString("approver")
	if approver == "" {
		return pawerr.New(pawerr.CodeCLIInputInvalid, "--approver must not be empty")
	}
	var p server.ProposalView
	body := map[string]string{"approver": approver}
	if err := newAPIClient().doJSON(cmd.Context(), http.MethodPost, proposalPath(args[0], "approve"), body, &p); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Approved %s (%s) by %s\n", p.Name, p.ID, p.ApprovedBy)
	return nil
}

func runProposalReject(cmd *cobra.Command, args []string) error {
	reason, _ := cmd.Flags().GetString("reason")
	var p server.ProposalView
	body := map[string]string{"reason": reason, "actor": "cli"}
	if err := newAPIClient().doJSON(cmd.Context(), http.MethodPost, proposalPath(args[0], "reject"), body, &p); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s (%s): %s\n", p.Name, p.ID, p.RejectReason)
	return nil
}

// proposalStep runs a body-less transition and reports the new status.
func proposalStep(step, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var p server.ProposalView
		body := map[string]string{"actor": "cli"}
		if err := newAPIClient().doJSON(cmd.Context(), http.MethodPost, proposalPath(args[0], step), body, &p); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "%s %s (%s): %s\n", verb, p.Name, p.ID, p.Status)
		if p.TestOutput != "" && step == "test" {
			_, _ = fmt.Fprintf(out, "\n%s\n", p.TestOutput)
		}
		return nil
	}
}

func proposalPath(id, step string) string {
	p := "/api/v1/proposals/" + url.PathEscape(id)
	if step != "" {
		p += "/" + step
	}
	return p
}

func printProposal(out io.Writer, p *server.ProposalView, withSource bool) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", p.ID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", p.Name)
	if p.Description != "" {
		_, _ = fmt.Fprintf(w, "Description:\t%s\n", p.Description)
	}
	_, _ = fmt.Fprintf(w, "Kind:\t%s (%s)\n", p.Kind, p.Runtime)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", p.Status)
	if p.ApprovedBy != "" {
		_, _ = fmt.Fprintf(w, "Approved by:\t%s\n", p.ApprovedBy)
	}
	if p.RejectReason != "" {
		_, _ = fmt.Fprintf(w, "Rejected:\t%s\n", p.RejectReason)
	}
	_ = w.Flush()

	if len(p.History) > 0 {
		_, _ = fmt.Fprintln(out, "\nHistory:")
		for _, ev := range p.History {
			_, _ = fmt.Fprintf(out, "  %s  %s -> %s  by %s", ev.At.Local().Format(time.DateTime), ev.From, ev.To, ev.Actor)
			if ev.Note != "" {
				_, _ = fmt.Fprintf(out, "  (%s)", ev.Note)
			}
			_, _ = fmt.Fprintln(out)
		}
	}
	if p.TestOutput != "" {
		_, _ = fmt.Fprintf(out, "\nTest output:\n%s\n", p.TestOutput)
	}
	if withSource && p.Source != "" {
		_, _ = fmt.Fprintf(out, "\nSource:\n%s\n", p.Source)
	}
}
