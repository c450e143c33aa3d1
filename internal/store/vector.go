// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// VectorStore holds embeddings with JSON metadata and answers nearest-neighbour
// queries. It backs the semantic response cache.
type VectorStore interface {
	Store(ctx context.Context, id string, embedding []float32, metadata map[string]any) error
	// Search returns up to k results ordered by distance. Filters match
	// metadata keys by equality.
	Search(ctx context.Context, query []float32, k int, filters map[string]any) ([]VectorResult, error)
	// Expire deletes every row matching filters whose numeric metadata
	// value under key is below bound, and reports how many went.
	Expire(ctx context.Context, filters map[string]any, key string, bound int64) (int64, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// VectorResult is one nearest-neighbour match.
type VectorResult struct {
	ID       string
	Score    float64 // distance; 0 is an exact match
	Metadata map[string]any
}
