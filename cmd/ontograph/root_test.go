// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/secrets"
)

// isolate keeps commands away from the user's real config, keyring and
// provider APIs.
func isolate(t *testing.T) *secrets.MemoryStore {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	mem := secrets.NewMemoryStore()
	origFactory := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return mem }
	t.Cleanup(func() { secretStoreFactory = origFactory })
	return mem
}

// stubKeyValidator replaces provider key validation; keys equal to "bad" fail.
func stubKeyValidator(t *testing.T) *[]string {
	t.Helper()
	var seen []string
	orig := validateProviderKey
	validateProviderKey = func(_ context.Context, name provider.Name, key string) error {
		seen = append(seen, string(name))
		if key == "bad" {
			return provider.ValidateKeyAt(context.Background(), http.DefaultClient, name, key, unauthorizedServer(t))
		}
		return nil
	}
	t.Cleanup(func() { validateProviderKey = orig })
	return &seen
}

func unauthorizedServer(t *testing.T) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// writeConfig writes a config file whose storage lives in a temp directory.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := "storage:\n  data_dir: " + filepath.Join(dir, "data") + "\n" + extra
	path := filepath.Join(dir, "ontograph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, want := range []string{"ontograph", "serve", "status", "version", "export", "import", "check-keys", "secret"} {
		assert.Contains(t, out, want)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	out, err := execute(t, "--verbose", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--data-dir")
	assert.Contains(t, out, "--verbose")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ontograph")
	assert.Contains(t, out, "commit:")
}

func TestServeCommand_RequiresConfig(t *testing.T) {
	isolate(t)
	_, err := execute(t, "serve", "--config", "/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "embeddings:\n  provider: openai\n")
	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embeddings")
}

func TestLoadConfig_BootstrapsDefault(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")

	_, err := execute(t, "check-keys", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ".config", "ontograph", "ontograph.yaml"))
}

func TestStatusCommand_HealthyServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/api/v1/scopes":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"scopes": []map[string]string{{"workspace_id": "acme", "system_id": "billing"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	old := statusClient
	statusClient = srv.Client()
	defer func() { statusClient = old }()

	out, err := execute(t, "status", "--address", srv.URL[len("http://"):])
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "acme/billing")
}

func TestStatusCommand_NoScopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/health" {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"scopes": []any{}})
	}))
	defer srv.Close()

	old := statusClient
	statusClient = srv.Client()
	defer func() { statusClient = old }()

	out, err := execute(t, "status", "--address", srv.URL[len("http://"):])
	require.NoError(t, err)
	assert.Contains(t, out, "No open scopes.")
}

func TestStatusCommand_ServerDown(t *testing.T) {
	out, err := execute(t, "status", "--address", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestCheckKeys(t *testing.T) {
	isolate(t)
	seen := stubKeyValidator(t)

	path := writeConfig(t, "providers:\n  openai:\n    api_key: good\n  anthropic:\n    api_key: bad\n")
	out, err := execute(t, "check-keys", "--config", path)
	require.Error(t, err)
	assert.Contains(t, out, "anthropic  FAIL")
	assert.Contains(t, out, "openai     ok")
	assert.Equal(t, []string{"anthropic", "openai"}, *seen)
}

func TestCheckKeys_NoneConfigured(t *testing.T) {
	isolate(t)
	stubKeyValidator(t)

	out, err := execute(t, "check-keys", "--config", writeConfig(t, ""))
	require.NoError(t, err)
	assert.Contains(t, out, "No provider keys configured.")
}

func TestCheckKeys_Store(t *testing.T) {
	mem := isolate(t)
	stubKeyValidator(t)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetIn(bytes.NewBufferString("sk-test\n"))
	root.SetArgs([]string{"check-keys", "--store", "OpenAI"})
	require.NoError(t, root.Execute())

	got, err := mem.Retrieve(secrets.Service, "openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", got)
	assert.Contains(t, buf.String(), "keyring://ontograph/openai-api-key")
}

func TestCheckKeys_StoreRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
	}{
		{name: "invalid key", input: "bad\n", args: []string{"check-keys", "--store", "anthropic"}},
		{name: "empty stdin", input: "", args: []string{"check-keys", "--store", "anthropic"}},
		{name: "unknown provider", input: "k\n", args: []string{"check-keys", "--store", "mistral"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := isolate(t)
			stubKeyValidator(t)

			root := NewRootCmd()
			root.SetOut(new(bytes.Buffer))
			root.SetIn(bytes.NewBufferString(tt.input))
			root.SetArgs(tt.args)
			require.Error(t, root.Execute())

			keys, err := mem.List(secrets.Service)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}
