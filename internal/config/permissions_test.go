// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs swaps the default logger for one writing to the returned buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		perm os.FileMode
		warn bool
	}{
		{perm: 0o600},
		{perm: 0o400},
		{perm: 0o640, warn: true},
		{perm: 0o604, warn: true},
		{perm: 0o644, warn: true},
	}

	for _, tt := range tests {
		t.Run(tt.perm.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ontograph.yaml")
			require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n"), tt.perm))
			require.NoError(t, os.Chmod(path, tt.perm))

			logs := captureLogs(t)
			WarnInsecurePermissions(path)

			if tt.warn {
				assert.Contains(t, logs.String(), "insecure permissions")
				assert.Contains(t, logs.String(), path)
				assert.Contains(t, logs.String(), "0600")
			} else {
				assert.NotContains(t, logs.String(), "insecure permissions")
			}
		})
	}
}

func TestWarnInsecurePermissions_NoFile(t *testing.T) {
	logs := captureLogs(t)
	WarnInsecurePermissions("")
	assert.Empty(t, logs.String())

	WarnInsecurePermissions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotContains(t, logs.String(), "insecure permissions")
	assert.Contains(t, logs.String(), "could not stat")
}
