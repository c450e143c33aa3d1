// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package service

import (
	"context"

	"github.com/sigil-dev/ontograph/internal/embedding"
	"github.com/sigil-dev/ontograph/internal/graph"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func (s *Service) EmbeddingsEnabled() bool { return s.embeddings.Enabled() }

// Embedding returns the node's embedding, computing it when missing or stale.
func (s *Service) Embedding(ctx context.Context, semanticID string) ([]float32, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	n := s.graph.GetNode(semanticID)
	if n == nil {
		return nil, sigilerr.New(sigilerr.CodeGraphNodeNotFound, "node not found", sigilerr.FieldNodeID(semanticID))
	}
	return s.embeddings.Get(ctx, n)
}

// CachedEmbedding never calls the provider.
func (s *Service) CachedEmbedding(semanticID string) []float32 {
	return s.embeddings.Cached(semanticID)
}

// ComputeEmbeddings fills the cache for every node that needs it with one
// provider call.
func (s *Service) ComputeEmbeddings(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.embeddings.BatchCompute(ctx, s.graph.GetNodes(graph.NodeFilter{}))
}

// SimilarNodes returns node pairs whose embeddings have cosine similarity of
// at least threshold.
func (s *Service) SimilarNodes(ctx context.Context, threshold float64) ([]embedding.Pair, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if threshold <= 0 || threshold > 1 {
		return nil, sigilerr.Errorf(sigilerr.CodeGraphInvalidInput, "similarity threshold must be in (0, 1], got %v", threshold)
	}
	nodes := s.graph.GetNodes(graph.NodeFilter{})
	if _, err := s.embeddings.BatchCompute(ctx, nodes); err != nil {
		return nil, err
	}
	return s.embeddings.SimilarPairs(nodes, threshold), nil
}
