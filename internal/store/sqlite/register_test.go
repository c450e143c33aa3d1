// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/store"
)

func TestRegister_CreatesDataDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	gs, err := store.NewGraphStore(&store.StorageConfig{Backend: "sqlite"}, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	_, err = os.Stat(filepath.Join(dir, "graph.db"))
	assert.NoError(t, err)
}

func TestRegister_OpenFailures(t *testing.T) {
	tests := []struct {
		name              string
		file              string
		open              func(dir string) error
		expectErrContains string
	}{
		{
			name: "graph store",
			file: "graph.db",
			open: func(dir string) error {
				_, err := store.NewGraphStore(&store.StorageConfig{}, dir)
				return err
			},
			expectErrContains: "creating graph store",
		},
		{
			name: "vector store",
			file: "cache_vectors.db",
			open: func(dir string) error {
				_, err := store.NewVectorStore(&store.StorageConfig{VectorDimensions: 3}, dir)
				return err
			},
			expectErrContains: "creating vector store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			// A directory where the database file should be makes sqlite fail.
			require.NoError(t, os.Mkdir(filepath.Join(dir, tt.file), 0o755))

			err := tt.open(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErrContains)
		})
	}
}
