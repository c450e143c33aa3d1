// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sort"
	"sync"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// defaultVectorDimensions is the default embedding dimension (matches OpenAI text-embedding-3-small).
const defaultVectorDimensions = 1536

// GraphStoreFactory opens the graph backing store. dataPath is the local data
// directory; network backends may ignore it.
type GraphStoreFactory func(cfg *StorageConfig, dataPath string) (GraphStore, error)

// VectorStoreFactory opens the vector store used by the semantic cache.
type VectorStoreFactory func(dataPath string, dims int) (VectorStore, error)

var (
	graphFactories  = map[string]GraphStoreFactory{}
	vectorFactories = map[string]VectorStoreFactory{}
	factoriesMu     sync.RWMutex
)

// RegisterBackend registers factory functions for a named storage backend.
// Backend packages call this from init(). A nil vector factory means the
// backend has no vector support and the sqlite one is used instead.
// This function is goroutine-safe.
func RegisterBackend(name string, gs GraphStoreFactory, vs VectorStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	graphFactories[name] = gs
	if vs != nil {
		vectorFactories[name] = vs
	}
}

// Backends lists registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(graphFactories))
	for name := range graphFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewGraphStore opens the configured graph backing store.
func NewGraphStore(cfg *StorageConfig, dataPath string) (GraphStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := graphFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}
	if cfg == nil {
		cfg = &StorageConfig{}
	}
	return factory(cfg, dataPath)
}

// NewVectorStore opens the vector store for the configured backend, falling
// back to sqlite when the backend has none.
func NewVectorStore(cfg *StorageConfig, dataPath string) (VectorStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := vectorFactories[backend]
	if !ok {
		factory, ok = vectorFactories["sqlite"]
	}
	factoriesMu.RUnlock()
	if !ok {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreBackendUnsupported, "no vector store available for backend %q", backend)
	}

	dims := defaultVectorDimensions
	if cfg != nil && cfg.VectorDimensions > 0 {
		dims = cfg.VectorDimensions
	}
	return factory(dataPath, dims)
}
