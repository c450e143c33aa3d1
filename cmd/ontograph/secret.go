// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/ontograph/internal/secrets"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long:  "List and delete secrets stored under the ontograph service in the operating system keyring.",
	}

	cmd.AddCommand(
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

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.Service)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSecretStoreFailure, "listing secrets")
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	slices.Sort(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := secretStoreFactory().Delete(secrets.Service, name); err != nil {
		if sigilerr.IsNotFound(err) {
			return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return sigilerr.Wrapf(err, sigilerr.CodeSecretStoreFailure, "deleting secret %q", name)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
