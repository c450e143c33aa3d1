// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newGraphStore, newVectorStore)
}

func newGraphStore(_ *store.StorageConfig, dataPath string) (store.GraphStore, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "creating data directory %s: %w", dataPath, err)
	}
	gs, err := NewGraphStore(filepath.Join(dataPath, "graph.db"))
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "creating graph store")
	}
	return gs, nil
}

func newVectorStore(dataPath string, dims int) (store.VectorStore, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "creating data directory %s: %w", dataPath, err)
	}
	vs, err := NewVectorStore(filepath.Join(dataPath, "cache_vectors.db"), dims)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "creating vector store")
	}
	return vs, nil
}
