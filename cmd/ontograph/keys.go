// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/secrets"
	"github.com/sigil-dev/ontograph/internal/server"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// validateProviderKey checks a key against the provider's API. Tests replace
// it to avoid network calls.
var validateProviderKey = server.DefaultProviderKeyValidator(&http.Client{Timeout: 10 * time.Second})

func newCheckKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-keys",
		Short: "Validate provider API keys",
		Long: "Validate every provider API key in the configuration against the provider's API. " +
			"With --store, read a key from stdin, validate it, and save it in the OS keyring.",
		RunE: runCheckKeys,
	}
	cmd.Flags().String("store", "", "provider whose key is read from stdin and stored (anthropic, openai, google)")
	return cmd
}

func runCheckKeys(cmd *cobra.Command, _ []string) error {
	if name, _ := cmd.Flags().GetString("store"); name != "" {
		return storeProviderKey(cmd, provider.Name(strings.ToLower(name)))
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	names := make([]string, 0, len(cfg.Providers))
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		_, _ = fmt.Fprintln(out, "No provider keys configured.")
		return nil
	}
	slices.Sort(names)

	failed := 0
	for _, name := range names {
		if err := validateProviderKey(cmd.Context(), provider.Name(name), cfg.Providers[name].APIKey); err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "%-10s FAIL  %s\n", name, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%-10s ok\n", name)
	}
	if failed > 0 {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyInvalid, "%d of %d provider keys failed validation", failed, len(names))
	}
	return nil
}

func storeProviderKey(cmd *cobra.Command, name provider.Name) error {
	switch name {
	case provider.NameAnthropic, provider.NameOpenAI, provider.NameGoogle:
	default:
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "unknown provider %q", name)
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	key := strings.TrimSpace(line)
	if key == "" {
		if err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeCLIInputInvalid, "reading key from stdin")
		}
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "empty key on stdin")
	}

	if err := validateProviderKey(cmd.Context(), name, key); err != nil {
		return err
	}
	if err := secretStoreFactory().Store(secrets.Service, secrets.ProviderKeyName(string(name)), key); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s key. Reference it in config as:\n  providers:\n    %s:\n      api_key: %s\n",
		name, name, secrets.ProviderKeyURI(string(name)))
	return nil
}
