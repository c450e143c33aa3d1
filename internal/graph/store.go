// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package graph holds the authoritative in-memory node/edge table for one
// (workspace, system) scope. It enforces key uniqueness and referential
// integrity, owns the scope's version counter, and notifies listeners of every
// committed mutation.
package graph

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is a single-writer, many-reader graph table. Every successful
// mutation increments the version by exactly one and delivers one Event to
// all listeners before returning. Reads return copies and never block on
// each other.
type Store struct {
	workspaceID string
	systemID    string

	mu        sync.RWMutex
	nodes     map[string]*Node
	edges     map[string]*Edge
	edgeKeys  map[EdgeKey]string
	incident  map[string]map[string]struct{} // semantic ID -> UUIDs of edges touching it
	version   int64
	subs      []subscription
	nextSubID int

	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates an empty store for the given scope at version 0.
func NewStore(workspaceID, systemID string, opts ...Option) *Store {
	s := &Store{
		workspaceID: workspaceID,
		systemID:    systemID,
		nodes:       make(map[string]*Node),
		edges:       make(map[string]*Edge),
		edgeKeys:    make(map[EdgeKey]string),
		incident:    make(map[string]map[string]struct{}),
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WorkspaceID() string { return s.workspaceID }
func (s *Store) SystemID() string    { return s.systemID }

// Version returns the current version.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// NodeCount returns the number of stored nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of stored edges.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Subscribe registers a listener and returns a function that removes it.
// The returned function must not be called from inside a listener.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool { return sub.id == id })
		})
	}
}

// --- Nodes ---

// GetNode returns a copy of the node, or nil when no node has that semantic ID.
func (s *Store) GetNode(semanticID string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[semanticID].Clone()
}

// SetNode inserts or replaces a node. It fails with a duplicate-key error
// when the semantic ID already belongs to a node with a different UUID.
// A node without a UUID is assigned a fresh one.
func (s *Store) SetNode(n *Node) (*Node, error) {
	return s.setNode(n, false)
}

// UpsertNode is SetNode with explicit overwrite: an existing node with the
// same semantic ID is replaced regardless of its UUID.
func (s *Store) UpsertNode(n *Node) (*Node, error) {
	return s.setNode(n, true)
}

func (s *Store) setNode(in *Node, upsert bool) (*Node, error) {
	if in == nil || strings.TrimSpace(in.SemanticID) == "" {
		return nil, sigilerr.New(sigilerr.CodeGraphInvalidInput, "node: semantic ID is required")
	}
	node := in.Clone()
	if node.UUID == "" {
		node.UUID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.nodes[node.SemanticID]
	if exists && existing.UUID != node.UUID && !upsert {
		return nil, sigilerr.New(sigilerr.CodeGraphNodeDuplicateKey,
			"node semantic ID already used by a different node",
			sigilerr.FieldNodeID(node.SemanticID),
			sigilerr.Field("existing_uuid", existing.UUID),
			sigilerr.Field("uuid", node.UUID),
		)
	}

	s.stampNode(node)
	s.nodes[node.SemanticID] = node

	kind := EventNodeAdd
	if exists {
		kind = EventNodeUpdate
	}
	s.commitLocked(kind, node.SemanticID)
	return node.Clone(), nil
}

// DeleteNode removes a node and every edge that has it as source or target.
// The whole cascade is a single mutation.
func (s *Store) DeleteNode(semanticID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[semanticID]; !ok {
		return sigilerr.New(sigilerr.CodeGraphNodeNotFound, "node not found", sigilerr.FieldNodeID(semanticID))
	}

	cascaded := len(s.incident[semanticID])
	for edgeID := range s.incident[semanticID] {
		s.removeEdgeLocked(edgeID)
	}
	delete(s.incident, semanticID)
	delete(s.nodes, semanticID)

	if cascaded > 0 {
		s.logger.Debug("node delete cascaded to edges", "node_id", semanticID, "edges", cascaded)
	}
	s.commitLocked(EventNodeDelete, semanticID)
	return nil
}

// GetNodes returns copies of the nodes matching the filter, sorted by
// semantic ID.
func (s *Store) GetNodes(f NodeFilter) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Node
	for _, id := range slices.Sorted(maps.Keys(s.nodes)) {
		n := s.nodes[id]
		if f.WorkspaceID != "" && n.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.SystemID != "" && n.SystemID != f.SystemID {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, n.Type) {
			continue
		}
		if f.IDPrefix != "" && !strings.HasPrefix(id, f.IDPrefix) {
			continue
		}
		out = append(out, n.Clone())
	}
	return out
}

// --- Edges ---

// GetEdge returns a copy of the edge with the given UUID, or nil.
func (s *Store) GetEdge(id string) *Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges[id].Clone()
}

// GetEdgeByKey returns a copy of the edge with the given natural key, or nil.
func (s *Store) GetEdgeByKey(sourceID, edgeType, targetID string) *Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.edgeKeys[EdgeKey{SourceID: sourceID, Type: edgeType, TargetID: targetID}]
	if !ok {
		return nil
	}
	return s.edges[id].Clone()
}

// SetEdge inserts or replaces an edge. Both endpoints must exist. It fails
// with a duplicate-key error when (source, type, target) already belongs to
// an edge with a different UUID.
func (s *Store) SetEdge(e *Edge) (*Edge, error) {
	return s.setEdge(e, false)
}

// UpsertEdge is SetEdge with explicit overwrite of a natural-key collision.
func (s *Store) UpsertEdge(e *Edge) (*Edge, error) {
	return s.setEdge(e, true)
}

func (s *Store) setEdge(in *Edge, upsert bool) (*Edge, error) {
	if in == nil || in.SourceID == "" || in.TargetID == "" || in.Type == "" {
		return nil, sigilerr.New(sigilerr.CodeGraphInvalidInput, "edge: source, target, and type are required")
	}
	edge := in.Clone()
	if edge.UUID == "" {
		edge.UUID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, endpoint := range []string{edge.SourceID, edge.TargetID} {
		if _, ok := s.nodes[endpoint]; !ok {
			return nil, sigilerr.New(sigilerr.CodeGraphEdgeReferentialIntegrity,
				"edge endpoint does not exist",
				sigilerr.FieldEdgeID(edge.UUID),
				sigilerr.FieldNodeID(endpoint),
			)
		}
	}

	key := edge.Key()
	owner, keyTaken := s.edgeKeys[key]
	if keyTaken && owner != edge.UUID && !upsert {
		return nil, sigilerr.New(sigilerr.CodeGraphEdgeDuplicateKey,
			"edge (source, type, target) already used by a different edge",
			sigilerr.FieldEdgeID(edge.UUID),
			sigilerr.Field("existing_uuid", owner),
			sigilerr.Field("source_id", key.SourceID),
			sigilerr.Field("type", key.Type),
			sigilerr.Field("target_id", key.TargetID),
		)
	}

	_, uuidTaken := s.edges[edge.UUID]
	if keyTaken && owner != edge.UUID {
		s.removeEdgeLocked(owner)
	}
	if uuidTaken {
		// The natural key may have moved; drop the old index entries first.
		s.removeEdgeLocked(edge.UUID)
	}

	s.stampEdge(edge)
	s.insertEdgeLocked(edge)

	kind := EventEdgeAdd
	if keyTaken || uuidTaken {
		kind = EventEdgeUpdate
	}
	s.commitLocked(kind, edge.UUID)
	return edge.Clone(), nil
}

// DeleteEdge removes the edge with the given UUID.
func (s *Store) DeleteEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return sigilerr.New(sigilerr.CodeGraphEdgeNotFound, "edge not found", sigilerr.FieldEdgeID(id))
	}
	s.removeEdgeLocked(id)
	s.commitLocked(EventEdgeDelete, id)
	return nil
}

// GetEdges returns copies of the edges matching the filter, sorted by UUID.
func (s *Store) GetEdges(f EdgeFilter) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Edge
	for _, id := range slices.Sorted(maps.Keys(s.edges)) {
		e := s.edges[id]
		if f.WorkspaceID != "" && e.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.SystemID != "" && e.SystemID != f.SystemID {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
			continue
		}
		if f.SourceID != "" && e.SourceID != f.SourceID {
			continue
		}
		if f.TargetID != "" && e.TargetID != f.TargetID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

// --- Bulk ---

// ToState returns a deep copy of the store contents and version.
func (s *Store) ToState() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &State{
		Nodes:   make(map[string]*Node, len(s.nodes)),
		Edges:   make(map[string]*Edge, len(s.edges)),
		Version: s.version,
	}
	for id, n := range s.nodes {
		st.Nodes[id] = n.Clone()
	}
	for id, e := range s.edges {
		st.Edges[id] = e.Clone()
	}
	return st
}

// LoadFromState replaces the store contents with state in one step and emits
// a single EventReload. The new version is state.Version when that is ahead
// of the current version, otherwise current+1, so the counter never goes
// backwards. The state is validated first; on error nothing changes.
func (s *Store) LoadFromState(state *State) (int64, error) {
	next, err := normalizeState(state)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaceLocked(next)
	version := s.version + 1
	if next.Version > version {
		version = next.Version
	}
	s.version = version
	s.emitLocked(Event{Kind: EventReload, Version: version, Timestamp: s.now()})

	s.logger.Debug("graph reloaded",
		"workspace_id", s.workspaceID,
		"system_id", s.systemID,
		"nodes", len(s.nodes),
		"edges", len(s.edges),
		"version", version,
	)
	return version, nil
}

// Reset removes every node and edge. It counts as one mutation and emits
// EventReload.
func (s *Store) Reset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaceLocked(NewState())
	s.commitLocked(EventReload, "")
	return s.version
}

// normalizeState clones the incoming state, fills keys from map positions,
// and checks referential integrity and natural-key uniqueness.
// Validate reports whether state could be loaded: every edge endpoint must be
// a node of the state and no two edges may share a natural key.
func (s *State) Validate() error {
	_, err := normalizeState(s)
	return err
}

func normalizeState(in *State) (*State, error) {
	out := NewState()
	if in == nil {
		return out, nil
	}
	out.Version = in.Version

	for id, n := range in.Nodes {
		if n == nil {
			continue
		}
		c := n.Clone()
		if c.SemanticID == "" {
			c.SemanticID = id
		}
		if c.UUID == "" {
			c.UUID = uuid.NewString()
		}
		out.Nodes[c.SemanticID] = c
	}

	seen := make(map[EdgeKey]string, len(in.Edges))
	for id, e := range in.Edges {
		if e == nil {
			continue
		}
		c := e.Clone()
		if c.UUID == "" {
			c.UUID = id
		}
		if _, ok := out.Nodes[c.SourceID]; !ok {
			return nil, sigilerr.New(sigilerr.CodeGraphStateReferentialIntegrity,
				"state edge source does not exist", sigilerr.FieldEdgeID(c.UUID), sigilerr.FieldNodeID(c.SourceID))
		}
		if _, ok := out.Nodes[c.TargetID]; !ok {
			return nil, sigilerr.New(sigilerr.CodeGraphStateReferentialIntegrity,
				"state edge target does not exist", sigilerr.FieldEdgeID(c.UUID), sigilerr.FieldNodeID(c.TargetID))
		}
		if other, dup := seen[c.Key()]; dup && other != c.UUID {
			return nil, sigilerr.New(sigilerr.CodeGraphEdgeDuplicateKey,
				"state contains two edges with the same (source, type, target)",
				sigilerr.FieldEdgeID(c.UUID), sigilerr.Field("existing_uuid", other))
		}
		seen[c.Key()] = c.UUID
		out.Edges[c.UUID] = c
	}
	return out, nil
}

// --- internals (caller holds s.mu for writing) ---

func (s *Store) replaceLocked(state *State) {
	s.nodes = state.Nodes
	s.edges = make(map[string]*Edge, len(state.Edges))
	s.edgeKeys = make(map[EdgeKey]string, len(state.Edges))
	s.incident = make(map[string]map[string]struct{}, len(state.Nodes))
	for _, e := range state.Edges {
		s.insertEdgeLocked(e)
	}
}

func (s *Store) insertEdgeLocked(e *Edge) {
	s.edges[e.UUID] = e
	s.edgeKeys[e.Key()] = e.UUID
	s.link(e.SourceID, e.UUID)
	s.link(e.TargetID, e.UUID)
}

func (s *Store) removeEdgeLocked(id string) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	delete(s.edges, id)
	if s.edgeKeys[e.Key()] == id {
		delete(s.edgeKeys, e.Key())
	}
	s.unlink(e.SourceID, id)
	s.unlink(e.TargetID, id)
}

func (s *Store) link(nodeID, edgeID string) {
	set, ok := s.incident[nodeID]
	if !ok {
		set = make(map[string]struct{})
		s.incident[nodeID] = set
	}
	set[edgeID] = struct{}{}
}

func (s *Store) unlink(nodeID, edgeID string) {
	set, ok := s.incident[nodeID]
	if !ok {
		return
	}
	delete(set, edgeID)
	if len(set) == 0 {
		delete(s.incident, nodeID)
	}
}

func (s *Store) stampNode(n *Node) {
	if n.WorkspaceID == "" {
		n.WorkspaceID = s.workspaceID
	}
	if n.SystemID == "" {
		n.SystemID = s.systemID
	}
	n.UpdatedAt = s.now()
}

func (s *Store) stampEdge(e *Edge) {
	if e.WorkspaceID == "" {
		e.WorkspaceID = s.workspaceID
	}
	if e.SystemID == "" {
		e.SystemID = s.systemID
	}
	e.UpdatedAt = s.now()
}

func (s *Store) commitLocked(kind EventKind, id string) {
	s.version++
	s.emitLocked(Event{Kind: kind, ID: id, Version: s.version, Timestamp: s.now()})
}

func (s *Store) emitLocked(ev Event) {
	for _, sub := range s.subs {
		sub.fn(ev)
	}
}
