// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/secrets"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{
			name: "empty store",
			want: "No secrets stored.\n",
		},
		{
			name: "single key",
			keys: []string{"anthropic-api-key"},
			want: "anthropic-api-key\n",
		},
		{
			name: "sorted output",
			keys: []string{"openai-api-key", "google-api-key"},
			want: "google-api-key\nopenai-api-key\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := isolate(t)
			for _, k := range tt.keys {
				require.NoError(t, mem.Store(secrets.Service, k, "redacted"))
			}

			out, err := execute(t, "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretDelete(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		deleteKey  string
		wantOutput string
		wantCode   sigilerr.Code
	}{
		{
			name:       "delete existing key",
			keys:       []string{"anthropic-api-key"},
			deleteKey:  "anthropic-api-key",
			wantOutput: "Deleted secret: anthropic-api-key\n",
		},
		{
			name:      "delete non-existent key",
			deleteKey: "missing-key",
			wantCode:  sigilerr.CodeSecretNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := isolate(t)
			for _, k := range tt.keys {
				require.NoError(t, mem.Store(secrets.Service, k, "redacted"))
			}

			out, err := execute(t, "secret", "delete", tt.deleteKey)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, sigilerr.HasCode(err, tt.wantCode),
					"expected error code %s, got: %v", tt.wantCode, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutput, out)
			_, err = mem.Retrieve(secrets.Service, tt.deleteKey)
			assert.True(t, sigilerr.IsNotFound(err))
		})
	}
}
