// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package workspace is the registry of open graph scopes. Each scope gets one
// service, hydrated from the backing store on first open and written back on
// commit.
package workspace

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/sigil-dev/ontograph/internal/cache"
	"github.com/sigil-dev/ontograph/internal/embedding"
	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/service"
	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Workspace is an open scope.
type Workspace struct {
	Scope   store.Scope
	Service *service.Service

	// commitMu serializes Commit and Reset for this scope.
	commitMu sync.Mutex
}

// CommitResult describes what one commit wrote.
type CommitResult struct {
	Version      int64 `json:"version"`
	NodesSaved   int   `json:"nodes_saved"`
	EdgesSaved   int   `json:"edges_saved"`
	NodesDeleted int   `json:"nodes_deleted"`
	EdgesDeleted int   `json:"edges_deleted"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithServiceOptions passes options to every service the manager creates.
func WithServiceOptions(opts ...service.Option) Option {
	return func(m *Manager) { m.serviceOpts = append(m.serviceOpts, opts...) }
}

// WithSemanticCache gives every scope a semantic response-cache fallback in
// vectors, keyed by embeddings from embedder.
func WithSemanticCache(vectors store.VectorStore, embedder embedding.Provider) Option {
	return func(m *Manager) {
		m.vectors = vectors
		m.cacheEmbedder = embedder
	}
}

// WithOpenHook runs fn after a scope is opened and hydrated.
func WithOpenHook(fn func(*Workspace)) Option {
	return func(m *Manager) { m.onOpen = append(m.onOpen, fn) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager creates, caches, and persists scopes.
type Manager struct {
	graphs      store.GraphStore
	cfg         service.Config
	serviceOpts []service.Option

	vectors       store.VectorStore
	cacheEmbedder embedding.Provider

	onOpen []func(*Workspace)
	logger *slog.Logger

	mu         sync.RWMutex
	workspaces map[string]*Workspace
	closed     bool
}

// NewManager creates a Manager persisting through graphs. The manager owns
// graphs and closes it on Shutdown.
func NewManager(graphs store.GraphStore, cfg service.Config, opts ...Option) *Manager {
	m := &Manager{
		graphs:     graphs,
		cfg:        cfg,
		logger:     slog.Default(),
		workspaces: make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns (and caches) the Workspace for scope. The first open loads the
// stored graph, adopts its version, and captures it as the change baseline.
func (m *Manager) Open(ctx context.Context, scope store.Scope) (*Workspace, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	key := scope.String()

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, m.shutDown(scope)
	}
	if ws, ok := m.workspaces[key]; ok {
		m.mu.RUnlock()
		return ws, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, m.shutDown(scope)
	}
	// Double-check after acquiring write lock.
	if ws, ok := m.workspaces[key]; ok {
		return ws, nil
	}

	stored, err := m.graphs.LoadGraph(ctx, scope)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeWorkspaceOpenFailure, "loading graph for %s", key)
	}

	opts := append([]service.Option{service.WithLogger(m.logger)}, m.serviceOpts...)
	if m.vectors != nil && m.cacheEmbedder != nil {
		opts = append(opts, service.WithCacheBacking(
			cache.NewSemanticBacking(m.vectors, m.cacheEmbedder, key, m.cfg.Cache.SemanticMaxDistance)))
	}
	svc := service.New(scope.WorkspaceID, scope.SystemID, m.cfg, opts...)

	if len(stored.Nodes) > 0 || stored.Version > 0 {
		if _, err := svc.LoadFromState(stored); err != nil {
			_ = svc.Close()
			return nil, sigilerr.Wrapf(err, sigilerr.CodeWorkspaceOpenFailure, "hydrating %s", key)
		}
	}
	if err := svc.CaptureBaseline(); err != nil {
		_ = svc.Close()
		return nil, err
	}

	ws := &Workspace{Scope: scope, Service: svc}
	m.workspaces[key] = ws
	for _, fn := range m.onOpen {
		fn(ws)
	}

	version, _ := svc.Version()
	m.logger.Info("scope opened",
		"workspace_id", scope.WorkspaceID,
		"system_id", scope.SystemID,
		"nodes", len(stored.Nodes),
		"edges", len(stored.Edges),
		"version", version,
	)
	return ws, nil
}

// Get returns an already-open scope, or a not-initialized error.
func (m *Manager) Get(scope store.Scope) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, m.shutDown(scope)
	}
	ws, ok := m.workspaces[scope.String()]
	if !ok {
		return nil, sigilerr.New(sigilerr.CodeGraphNotInitialized, "scope is not open",
			sigilerr.FieldWorkspaceID(scope.WorkspaceID),
			sigilerr.FieldSystemID(scope.SystemID),
		)
	}
	return ws, nil
}

// Scopes lists open scopes in a stable order.
func (m *Manager) Scopes() []store.Scope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Scope, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, ws.Scope)
	}
	slices.SortFunc(out, func(a, b store.Scope) int { return cmp.Compare(a.String(), b.String()) })
	return out
}

// Commit writes the scope's current graph to the backing store and makes it
// the new baseline. Elements deleted since the baseline are removed from the
// backing store. If any write fails the baseline is left alone, so a retry
// writes the same changes again; the in-memory graph is never modified.
func (m *Manager) Commit(ctx context.Context, scope store.Scope) (*CommitResult, error) {
	ws, err := m.Get(scope)
	if err != nil {
		return nil, err
	}
	ws.commitMu.Lock()
	defer ws.commitMu.Unlock()

	snap, err := ws.Service.Snapshot()
	if err != nil {
		return nil, err
	}
	deletedNodes, deletedEdges := snap.DeletedNodes, snap.DeletedEdges
	if !snap.HasBaseline {
		// After a reset there is no baseline; diff against what is stored.
		stored, err := m.graphs.LoadGraph(ctx, scope)
		if err != nil {
			return nil, m.commitErr(err, scope, "loading stored graph")
		}
		deletedNodes, deletedEdges = missingFrom(stored, snap.State)
	}

	st := snap.State
	nodes := st.NodeList()
	edges := st.EdgeList()

	if err := m.graphs.DeleteEdges(ctx, scope, deletedEdges); err != nil {
		return nil, m.commitErr(err, scope, "deleting edges")
	}
	if err := m.graphs.DeleteNodes(ctx, scope, deletedNodes); err != nil {
		return nil, m.commitErr(err, scope, "deleting nodes")
	}
	if err := m.graphs.SaveNodes(ctx, scope, nodes); err != nil {
		return nil, m.commitErr(err, scope, "saving nodes")
	}
	if err := m.graphs.SaveEdges(ctx, scope, edges); err != nil {
		return nil, m.commitErr(err, scope, "saving edges")
	}
	if err := m.graphs.SaveVersion(ctx, scope, st.Version); err != nil {
		return nil, m.commitErr(err, scope, "saving version")
	}
	if err := ws.Service.MarkCommitted(st); err != nil {
		return nil, err
	}

	res := &CommitResult{
		Version:      st.Version,
		NodesSaved:   len(nodes),
		EdgesSaved:   len(edges),
		NodesDeleted: len(deletedNodes),
		EdgesDeleted: len(deletedEdges),
	}
	m.logger.Info("scope committed",
		"workspace_id", scope.WorkspaceID,
		"system_id", scope.SystemID,
		"version", res.Version,
		"nodes_saved", res.NodesSaved,
		"edges_saved", res.EdgesSaved,
		"nodes_deleted", res.NodesDeleted,
		"edges_deleted", res.EdgesDeleted,
	)
	return res, nil
}

// Reset empties the scope in memory. The backing store is untouched until
// the next Commit.
func (m *Manager) Reset(_ context.Context, scope store.Scope) (int64, error) {
	ws, err := m.Get(scope)
	if err != nil {
		return 0, err
	}
	ws.commitMu.Lock()
	defer ws.commitMu.Unlock()
	return ws.Service.Reset()
}

// Shutdown closes every scope and the backing store. Later calls return a
// not-initialized error.
func (m *Manager) Shutdown(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for key, ws := range m.workspaces {
		if err := ws.Service.Close(); err != nil {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeWorkspaceCloseFailure, "closing %s: %w", key, err))
		}
		delete(m.workspaces, key)
	}
	if err := m.graphs.Close(); err != nil {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeWorkspaceCloseFailure, "closing graph store: %w", err))
	}
	if m.vectors != nil {
		if err := m.vectors.Close(); err != nil {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeWorkspaceCloseFailure, "closing vector store: %w", err))
		}
	}

	if len(errs) > 0 {
		return sigilerr.Errorf(sigilerr.CodeWorkspaceCloseFailure, "shutting down workspaces: %w", sigilerr.Join(errs...))
	}
	return nil
}

func (m *Manager) commitErr(err error, scope store.Scope, op string) error {
	return sigilerr.Wrap(err, sigilerr.CodeWorkspaceCommitFailure, "commit: "+op,
		sigilerr.FieldWorkspaceID(scope.WorkspaceID),
		sigilerr.FieldSystemID(scope.SystemID),
	)
}

func (m *Manager) shutDown(scope store.Scope) error {
	return sigilerr.New(sigilerr.CodeGraphNotInitialized, "workspace manager is shut down",
		sigilerr.FieldWorkspaceID(scope.WorkspaceID),
		sigilerr.FieldSystemID(scope.SystemID),
	)
}

// missingFrom lists stored node and edge IDs absent from current.
func missingFrom(stored, current *graph.State) (nodeIDs, edgeIDs []string) {
	for id := range stored.Nodes {
		if _, ok := current.Nodes[id]; !ok {
			nodeIDs = append(nodeIDs, id)
		}
	}
	for id := range stored.Edges {
		if _, ok := current.Edges[id]; !ok {
			edgeIDs = append(edgeIDs, id)
		}
	}
	slices.Sort(nodeIDs)
	slices.Sort(edgeIDs)
	return nodeIDs, edgeIDs
}
