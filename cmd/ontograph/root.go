// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/ontograph/internal/config"
	"github.com/sigil-dev/ontograph/internal/secrets"
)

// secretStoreFactory creates the secrets.Store used for keyring:// values.
// Tests substitute an in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// NewRootCmd creates the root ontograph command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ontograph",
		Short:         "Versioned in-memory system ontology graphs",
		Long:          "ontograph keeps system ontology graphs in memory with variants, change tracking, embeddings, and a version-aware answer cache, served over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newVersionCmd(),
		newExportCmd(),
		newImportCmd(),
		newCheckKeysCmd(),
		newSecretCmd(),
	)

	return root
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the config named by --config, or discovers one, writing
// the commented default to ~/.config/ontograph on first run. keyring://
// values are resolved and --data-dir plus any extra flag bindings applied.
func loadConfig(cmd *cobra.Command, opts ...config.Option) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if def, err := config.DefaultConfigPath(); err == nil {
			config.BootstrapConfig(def)
		}
	}

	opts = append([]config.Option{
		config.WithSecrets(secretStoreFactory()),
		config.WithFlag("storage.data_dir", cmd.Flags().Lookup("data-dir")),
	}, opts...)

	cfg, err := config.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	config.WarnInsecurePermissions(cfg.File)
	slog.Debug("configuration loaded", "file", cfg.File, "backend", cfg.Storage.Backend)
	return cfg, nil
}
