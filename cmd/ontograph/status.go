// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Check a running server's health endpoint and list its open scopes.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:18790", "server address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	c := newServerClient(addr)
	var health struct {
		Status string `json:"status"`
	}
	if err := c.getJSON("/health", &health); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, health.Status)

	var scopes struct {
		Scopes []store.Scope `json:"scopes"`
	}
	if err := c.getJSON("/api/v1/scopes", &scopes); err != nil {
		_, _ = fmt.Fprintf(out, "Scopes unavailable: %s\n", err)
		return nil
	}
	if len(scopes.Scopes) == 0 {
		_, _ = fmt.Fprintln(out, "No open scopes.")
		return nil
	}
	for _, sc := range scopes.Scopes {
		_, _ = fmt.Fprintf(out, "  %s\n", sc)
	}
	return nil
}
