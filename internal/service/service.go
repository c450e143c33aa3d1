// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package service is the single entry point to one scope's graph layer. It
// delegates CRUD to the graph store and keeps the response cache and the
// embedding cache coherent with every committed mutation.
package service

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/ontograph/internal/cache"
	"github.com/sigil-dev/ontograph/internal/changes"
	"github.com/sigil-dev/ontograph/internal/embedding"
	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/variant"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Config bundles the tunables of the owned components.
type Config struct {
	Cache    cache.Config   `mapstructure:"cache"`
	Variants variant.Config `mapstructure:"variants"`
}

// Option configures a Service.
type Option func(*options)

type options struct {
	embedder embedding.Provider
	backing  cache.Backing
	now      func() time.Time
	logger   *slog.Logger
}

// WithEmbedder enables embedding computation and similarity queries.
func WithEmbedder(p embedding.Provider) Option {
	return func(o *options) { o.embedder = p }
}

// WithCacheBacking enables the semantic response-cache fallback.
func WithCacheBacking(b cache.Backing) Option {
	return func(o *options) { o.backing = b }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Service owns the graph store, variant pool, change tracker, embedding store
// and response cache of one (workspace, system) scope.
type Service struct {
	graph      *graph.Store
	variants   *variant.Pool
	tracker    *changes.Tracker
	embeddings *embedding.Store
	cache      *cache.ResponseCache

	unsubscribe func()
	closed      atomic.Bool
	logger      *slog.Logger
}

// New creates an empty service for the scope and subscribes its invalidation
// handler to the graph store.
func New(workspaceID, systemID string, cfg Config, opts ...Option) *Service {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("workspace_id", workspaceID, "system_id", systemID)

	cacheOpts := []cache.Option{cache.WithClock(o.now), cache.WithLogger(logger)}
	if o.backing != nil {
		cacheOpts = append(cacheOpts, cache.WithBacking(o.backing))
	}

	s := &Service{
		graph:      graph.NewStore(workspaceID, systemID, graph.WithClock(o.now), graph.WithLogger(logger)),
		variants:   variant.NewPool(cfg.Variants, variant.WithClock(o.now), variant.WithLogger(logger)),
		tracker:    changes.NewTracker(),
		embeddings: embedding.NewStore(o.embedder, embedding.WithClock(o.now), embedding.WithLogger(logger)),
		cache:      cache.New(cfg.Cache, cacheOpts...),
		logger:     logger,
	}
	s.unsubscribe = s.graph.Subscribe(s.onChange)
	return s
}

// onChange runs under the graph store's write lock, so it must not call back
// into the store.
func (s *Service) onChange(ev graph.Event) {
	if n := s.cache.EvictOlderThan(ev.Version); n > 0 {
		s.logger.Debug("stale cache entries evicted", "count", n, "version", ev.Version)
	}
	switch ev.Kind {
	case graph.EventNodeUpdate, graph.EventNodeDelete:
		s.embeddings.Invalidate(ev.ID)
	}
}

func (s *Service) ready() error {
	if s.closed.Load() {
		return sigilerr.New(sigilerr.CodeGraphNotInitialized, "graph service is closed",
			sigilerr.FieldWorkspaceID(s.graph.WorkspaceID()),
			sigilerr.FieldSystemID(s.graph.SystemID()),
		)
	}
	return nil
}

func (s *Service) WorkspaceID() string { return s.graph.WorkspaceID() }
func (s *Service) SystemID() string    { return s.graph.SystemID() }

// Close detaches the invalidation handler and drops all cached data. Every
// later call returns a not-initialized error.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.unsubscribe()
	s.cache.Clear()
	s.embeddings.Clear()
	s.variants.Clear()
	s.tracker.ClearBaseline()
	return nil
}

// Subscribe registers fn for graph change events. See graph.Listener for the
// delivery contract.
func (s *Service) Subscribe(fn graph.Listener) (func(), error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.Subscribe(fn), nil
}

// Graph CRUD.

func (s *Service) Version() (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.graph.Version(), nil
}

// GetNode returns nil without error when the node does not exist.
func (s *Service) GetNode(semanticID string) (*graph.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.GetNode(semanticID), nil
}

func (s *Service) SetNode(n *graph.Node) (*graph.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.SetNode(n)
}

func (s *Service) UpsertNode(n *graph.Node) (*graph.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.UpsertNode(n)
}

func (s *Service) DeleteNode(semanticID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.graph.DeleteNode(semanticID)
}

func (s *Service) GetNodes(f graph.NodeFilter) ([]*graph.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.GetNodes(f), nil
}

// GetEdge returns nil without error when the edge does not exist.
func (s *Service) GetEdge(id string) (*graph.Edge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.GetEdge(id), nil
}

func (s *Service) GetEdgeByKey(sourceID, edgeType, targetID string) (*graph.Edge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.GetEdgeByKey(sourceID, edgeType, targetID), nil
}

func (s *Service) SetEdge(e *graph.Edge) (*graph.Edge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.SetEdge(e)
}

func (s *Service) UpsertEdge(e *graph.Edge) (*graph.Edge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.UpsertEdge(e)
}

func (s *Service) DeleteEdge(id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.graph.DeleteEdge(id)
}

func (s *Service) GetEdges(f graph.EdgeFilter) ([]*graph.Edge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.GetEdges(f), nil
}

// State returns a deep copy of the current graph.
func (s *Service) State() (*graph.State, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.graph.ToState(), nil
}

// LoadFromState replaces the graph in one step. The reload event sweeps every
// cached response; embeddings of nodes that no longer exist are dropped.
func (s *Service) LoadFromState(state *graph.State) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	version, err := s.graph.LoadFromState(state)
	if err != nil {
		return 0, err
	}
	s.retainEmbeddings(state)
	return version, nil
}

// Reset empties the graph and drops variants, the baseline and all cached
// data.
func (s *Service) Reset() (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	version := s.graph.Reset()
	s.variants.Clear()
	s.tracker.ClearBaseline()
	s.embeddings.Clear()
	s.cache.Clear()
	s.logger.Info("scope reset", "version", version)
	return version, nil
}

func (s *Service) retainEmbeddings(state *graph.State) {
	keep := make(map[string]struct{}, len(state.Nodes))
	for id, n := range state.Nodes {
		if n != nil && n.SemanticID != "" {
			id = n.SemanticID
		}
		keep[id] = struct{}{}
	}
	if dropped := s.embeddings.Retain(keep); dropped > 0 {
		s.logger.Debug("embeddings dropped after reload", "count", dropped)
	}
}
