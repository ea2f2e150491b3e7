// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elemarin/paw/internal/secrets"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: "Store, list and delete secrets under the paw service in the operating system keyring. " +
			"Reference a stored secret from paw.yaml as keyring://paw/<name>.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <name> [value]",
			Short: "Store a secret; the value is read from stdin when omitted",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  runSecretSet,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all stored secret names",
			RunE:  runSecretList,
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a secret by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretDelete,
		},
	)

	return cmd
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return pawerr.Errorf(pawerr.CodeCLIInputInvalid, "reading secret from stdin: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return pawerr.New(pawerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Store(secrets.Service, name, value); err != nil {
		return pawerr.Errorf(pawerr.CodeSecretStoreFailure, "storing secret %q: %w", name, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %s (reference: %s)\n", name, secrets.Ref(name))
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.Service)
	if err != nil {
		return pawerr.Errorf(pawerr.CodeSecretListFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := secretStoreFactory().Delete(secrets.Service, name); err != nil {
		if pawerr.HasCode(err, pawerr.CodeSecretNotFound) {
			return pawerr.Errorf(pawerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return pawerr.Errorf(pawerr.CodeSecretDeleteFailure, "deleting secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
