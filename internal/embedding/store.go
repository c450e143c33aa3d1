// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding caches node text embeddings keyed by node identity and
// validated by content: an entry is only used while the node's derived text
// still matches the text the vector was computed from.
package embedding

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/floats"

	"github.com/sigil-dev/ontograph/internal/graph"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Provider turns texts into vectors with a single remote call. The returned
// slice must have one vector per input text, in order.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Entry is one cached embedding.
type Entry struct {
	NodeID    string
	Text      string
	Vector    []float32
	CreatedAt time.Time
}

// Pair is two nodes whose embeddings are close.
type Pair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// NodeText is the text a node's embedding is computed from.
func NodeText(n *graph.Node) string {
	return fmt.Sprintf("%s: %s - %s", n.Type, n.Name, n.Description)
}

// Option configures a Store.
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the embedding cache. A nil provider yields a store that serves
// nothing and fails every computation with a not-initialized error.
type Store struct {
	provider Provider

	mu      sync.RWMutex
	entries map[string]Entry
	flight  singleflight.Group

	now    func() time.Time
	logger *slog.Logger
}

func NewStore(provider Provider, opts ...Option) *Store {
	s := &Store{
		provider: provider,
		entries:  make(map[string]Entry),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a provider is configured.
func (s *Store) Enabled() bool { return s.provider != nil }

// Get returns the node's embedding, calling the provider only when there is
// no entry or the entry's text no longer matches the node. Concurrent misses
// for the same node and text share one provider call.
func (s *Store) Get(ctx context.Context, n *graph.Node) ([]float32, error) {
	if n == nil || n.SemanticID == "" {
		return nil, sigilerr.New(sigilerr.CodeGraphInvalidInput, "embedding: node with semantic ID required")
	}
	text := NodeText(n)
	if vec, ok := s.fresh(n.SemanticID, text); ok {
		return vec, nil
	}
	if s.provider == nil {
		return nil, notConfigured()
	}

	v, err, _ := s.flight.Do(n.SemanticID+"\x00"+text, func() (any, error) {
		vecs, err := s.embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.entries[n.SemanticID] = Entry{NodeID: n.SemanticID, Text: text, Vector: vecs[0], CreatedAt: s.now()}
		s.mu.Unlock()
		return vecs[0], nil
	})
	if err != nil {
		return nil, sigilerr.With(err, sigilerr.FieldNodeID(n.SemanticID))
	}
	return slices.Clone(v.([]float32)), nil
}

// Cached returns the cached vector for a node regardless of freshness, or
// nil. It never calls the provider.
func (s *Store) Cached(nodeID string) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[nodeID]
	if !ok {
		return nil
	}
	return slices.Clone(e.Vector)
}

// IsFresh reports whether the cached entry for n matches its current text.
func (s *Store) IsFresh(n *graph.Node) bool {
	_, ok := s.fresh(n.SemanticID, NodeText(n))
	return ok
}

// BatchCompute computes embeddings for every node without a fresh entry
// using exactly one provider call, and returns how many were computed. The
// provider call runs without holding the store lock.
func (s *Store) BatchCompute(ctx context.Context, nodes []*graph.Node) (int, error) {
	var (
		ids   []string
		texts []string
		seen  = make(map[string]struct{}, len(nodes))
	)
	s.mu.RLock()
	for _, n := range nodes {
		if n == nil || n.SemanticID == "" {
			continue
		}
		if _, dup := seen[n.SemanticID]; dup {
			continue
		}
		seen[n.SemanticID] = struct{}{}
		text := NodeText(n)
		if e, ok := s.entries[n.SemanticID]; ok && e.Text == text {
			continue
		}
		ids = append(ids, n.SemanticID)
		texts = append(texts, text)
	}
	s.mu.RUnlock()

	if len(texts) == 0 {
		return 0, nil
	}
	if s.provider == nil {
		return 0, notConfigured()
	}

	vecs, err := s.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	now := s.now()
	s.mu.Lock()
	for i, id := range ids {
		s.entries[id] = Entry{NodeID: id, Text: texts[i], Vector: vecs[i], CreatedAt: now}
	}
	s.mu.Unlock()

	s.logger.Debug("embeddings computed", "count", len(ids))
	return len(ids), nil
}

// Invalidate drops one node's entry.
func (s *Store) Invalidate(nodeID string) {
	s.mu.Lock()
	delete(s.entries, nodeID)
	s.mu.Unlock()
}

// InvalidateMany drops several entries under one lock.
func (s *Store) InvalidateMany(nodeIDs []string) {
	s.mu.Lock()
	for _, id := range nodeIDs {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

// Retain drops every entry whose node ID is not in keep.
func (s *Store) Retain(keep map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id := range s.entries {
		if _, ok := keep[id]; !ok {
			delete(s.entries, id)
			dropped++
		}
	}
	return dropped
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	clear(s.entries)
	s.mu.Unlock()
}

// Len returns the number of cached entries, fresh or stale.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SimilarPairs returns every pair of nodes whose fresh cached embeddings
// have cosine similarity of at least threshold, highest first. Nodes without
// a fresh entry are skipped.
func (s *Store) SimilarPairs(nodes []*graph.Node, threshold float64) []Pair {
	type vec struct {
		id string
		v  []float32
	}
	var vs []vec
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if v, ok := s.fresh(n.SemanticID, NodeText(n)); ok {
			vs = append(vs, vec{id: n.SemanticID, v: v})
		}
	}

	var out []Pair
	for i := range vs {
		for j := i + 1; j < len(vs); j++ {
			score := CosineSimilarity(vs[i].v, vs[j].v)
			if score >= threshold {
				a, b := vs[i].id, vs[j].id
				if b < a {
					a, b = b, a
				}
				out = append(out, Pair{A: a, B: b, Score: score})
			}
		}
	}
	slices.SortFunc(out, func(x, y Pair) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	fa, fb := widen(a), widen(b)
	na, nb := floats.Norm(fa, 2), floats.Norm(fb, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(fa, fb) / (na * nb)
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func (s *Store) fresh(nodeID, text string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[nodeID]
	if !ok || e.Text != text {
		return nil, false
	}
	return slices.Clone(e.Vector), true
}

func (s *Store) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.provider.EmbedTexts(ctx, texts)
	if err != nil {
		if sigilerr.CodeOf(err) != "" {
			return nil, err
		}
		return nil, sigilerr.Wrap(err, sigilerr.CodeEmbeddingUpstreamFailure, "embedding provider call failed")
	}
	if len(vecs) != len(texts) {
		return nil, sigilerr.Errorf(sigilerr.CodeEmbeddingResponseInvalid,
			"embedding provider returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

func notConfigured() error {
	return sigilerr.New(sigilerr.CodeEmbeddingNotConfigured, "no embedding provider configured")
}
