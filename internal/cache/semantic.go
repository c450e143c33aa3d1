// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/sigil-dev/ontograph/internal/embedding"
	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

var entryNamespace = uuid.MustParse("6f1c3a52-8d0e-4b8a-9c55-3a1f0e7b2d41")

// SemanticBacking stores responses in a vector store keyed by the query's
// embedding so near-identical questions can share an answer.
type SemanticBacking struct {
	vectors     store.VectorStore
	embedder    embedding.Provider
	scope       string
	maxDistance float64
}

// NewSemanticBacking scopes all reads and writes to scope.
func NewSemanticBacking(vectors store.VectorStore, embedder embedding.Provider, scope string, maxDistance float64) *SemanticBacking {
	return &SemanticBacking{vectors: vectors, embedder: embedder, scope: scope, maxDistance: maxDistance}
}

// VectorID is deterministic so re-caching the same query at the same version
// overwrites the previous row.
func (b *SemanticBacking) VectorID(query string, version int64) string {
	return uuid.NewSHA1(entryNamespace, []byte(b.scope+"\x00"+strconv.FormatInt(version, 10)+"\x00"+query)).String()
}

func (b *SemanticBacking) Nearest(ctx context.Context, query string, version int64) (*Entry, error) {
	vec, err := b.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := b.vectors.Search(ctx, vec, 1, map[string]any{
		"scope":         b.scope,
		"graph_version": version,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0].Score > b.maxDistance {
		return nil, nil
	}
	return entryFromMetadata(results[0].Metadata), nil
}

func (b *SemanticBacking) Save(ctx context.Context, e Entry) error {
	vec, err := b.embed(ctx, e.Query)
	if err != nil {
		return err
	}
	err = b.vectors.Store(ctx, b.VectorID(e.Query, e.Version), vec, map[string]any{
		"scope":         b.scope,
		"query":         e.Query,
		"graph_version": e.Version,
		"response":      e.Response,
		"operations":    e.Operations,
	})
	if err != nil {
		return err
	}
	// Older versions can never be served again.
	_, err = b.vectors.Expire(ctx, map[string]any{"scope": b.scope}, "graph_version", e.Version)
	return err
}

func (b *SemanticBacking) embed(ctx context.Context, query string) ([]float32, error) {
	vecs, err := b.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeEmbeddingUpstreamFailure, "embedding cache query")
	}
	if len(vecs) != 1 {
		return nil, sigilerr.Errorf(sigilerr.CodeEmbeddingResponseInvalid, "embedding provider returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

// entryFromMetadata tolerates JSON-decoded metadata, where numbers arrive as
// float64.
func entryFromMetadata(meta map[string]any) *Entry {
	e := &Entry{}
	e.Query, _ = meta["query"].(string)
	e.Response, _ = meta["response"].(string)
	e.Operations, _ = meta["operations"].(string)
	switch v := meta["graph_version"].(type) {
	case float64:
		e.Version = int64(v)
	case int64:
		e.Version = v
	case int:
		e.Version = int64(v)
	default:
		e.Version = -1
	}
	return e
}
