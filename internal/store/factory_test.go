// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/store"
	_ "github.com/sigil-dev/ontograph/internal/store/sqlite" // register sqlite backend
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func TestNewGraphStore_SQLite(t *testing.T) {
	dir := t.TempDir()
	gs, err := store.NewGraphStore(&store.StorageConfig{Backend: "sqlite"}, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	st, err := gs.LoadGraph(context.Background(), store.Scope{WorkspaceID: "ws", SystemID: "sys"})
	require.NoError(t, err)
	assert.Empty(t, st.Nodes)
}

func TestNewGraphStore_DefaultBackend(t *testing.T) {
	gs, err := store.NewGraphStore(&store.StorageConfig{}, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, gs.Close())

	gs, err = store.NewGraphStore(nil, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, gs.Close())
}

func TestNewGraphStore_UnknownBackend(t *testing.T) {
	_, err := store.NewGraphStore(&store.StorageConfig{Backend: "unknown"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreBackendUnsupported))
}

func TestNewVectorStore_FallsBackToSQLite(t *testing.T) {
	store.RegisterBackend("graph-only", func(*store.StorageConfig, string) (store.GraphStore, error) {
		return nil, nil
	}, nil)

	vs, err := store.NewVectorStore(&store.StorageConfig{Backend: "graph-only", VectorDimensions: 3}, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	require.NoError(t, vs.Store(context.Background(), "v1", []float32{1, 0, 0}, nil))
	assert.Contains(t, store.Backends(), "graph-only")
	assert.Contains(t, store.Backends(), "sqlite")
}

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name  string
		scope store.Scope
		ok    bool
	}{
		{"valid", store.Scope{WorkspaceID: "ws", SystemID: "sys"}, true},
		{"empty workspace", store.Scope{SystemID: "sys"}, false},
		{"blank system", store.Scope{WorkspaceID: "ws", SystemID: "  "}, false},
		{"slash", store.Scope{WorkspaceID: "a/b", SystemID: "sys"}, false},
		{"dotdot", store.Scope{WorkspaceID: "ws", SystemID: ".."}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, sigilerr.IsInvalidInput(err))
		})
	}
	assert.Equal(t, "ws/sys", store.Scope{WorkspaceID: "ws", SystemID: "sys"}.String())
}
