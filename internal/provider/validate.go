// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Name identifies a supported provider for key validation.
type Name string

const (
	NameAnthropic Name = "anthropic"
	NameOpenAI    Name = "openai"
	NameGoogle    Name = "google"
)

var defaultBaseURLs = map[Name]string{
	NameAnthropic: "https://api.anthropic.com",
	NameOpenAI:    "https://api.openai.com",
	NameGoogle:    "https://generativelanguage.googleapis.com",
}

// ValidateKey makes a lightweight call to the provider's models endpoint to
// confirm the API key is valid.
func ValidateKey(ctx context.Context, client *http.Client, name Name, key string) error {
	return ValidateKeyAt(ctx, client, name, key, "")
}

// ValidateKeyAt is ValidateKey against an explicit base URL; empty means the
// provider default.
func ValidateKeyAt(ctx context.Context, client *http.Client, name Name, key, baseURL string) error {
	if baseURL == "" {
		baseURL = defaultBaseURLs[name]
	}
	req, err := keyRequest(ctx, name, key, strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyCheckFailed, "validating %s key: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}

func keyRequest(ctx context.Context, name Name, key, base string) (*http.Request, error) {
	var (
		url     string
		headers = map[string]string{}
	)
	switch name {
	case NameAnthropic:
		url = base + "/v1/models"
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case NameOpenAI:
		url = base + "/v1/models"
		headers["Authorization"] = "Bearer " + key
	case NameGoogle:
		// The Generative Language API only accepts the key as a query parameter.
		url = base + "/v1/models?key=" + key
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
