// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/ontograph/internal/config"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ontograph server",
		Long:  "Load configuration, open the backing stores and providers, and serve the HTTP API until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, config.WithFlag("networking.listen", cmd.Flags().Lookup("listen")))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Wire(ctx, cfg, slog.Default())
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "wiring runtime")
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			slog.Warn("shutdown incomplete", "error", cerr)
		}
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving ontograph on %s (storage=%s)\n", cfg.Networking.ListenAddr, cfg.Storage.Backend)

	return rt.Start(ctx)
}
