// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"maps"
	"slices"
	"time"
)

// Node is a single element of the system ontology (SYS, REQ, FUNC, ...).
// SemanticID is the business key; UUID is the opaque identity used to detect
// "same key, different element" conflicts.
type Node struct {
	SemanticID  string         `json:"semantic_id" yaml:"semantic_id"`
	UUID        string         `json:"uuid" yaml:"uuid"`
	Type        string         `json:"type" yaml:"type"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	WorkspaceID string         `json:"workspace_id" yaml:"workspace_id"`
	SystemID    string         `json:"system_id" yaml:"system_id"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy of the node, including nested attribute values.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = cloneAttributes(n.Attributes)
	return &c
}

// Edge is a directed, typed relation between two nodes. UUID is the primary
// key; (SourceID, Type, TargetID) is a natural key that must also be unique.
type Edge struct {
	UUID        string    `json:"uuid" yaml:"uuid"`
	SourceID    string    `json:"source_id" yaml:"source_id"`
	TargetID    string    `json:"target_id" yaml:"target_id"`
	Type        string    `json:"type" yaml:"type"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
	WorkspaceID string    `json:"workspace_id" yaml:"workspace_id"`
	SystemID    string    `json:"system_id" yaml:"system_id"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// Key returns the edge's natural key.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{SourceID: e.SourceID, Type: e.Type, TargetID: e.TargetID}
}

// EdgeKey is the composite natural key of an edge.
type EdgeKey struct {
	SourceID string
	Type     string
	TargetID string
}

// State is the flat transfer shape shared by the graph store, the variant
// pool, the change tracker, and backing stores. Nodes are keyed by semantic
// ID, edges by UUID.
type State struct {
	Nodes   map[string]*Node `json:"nodes" yaml:"nodes"`
	Edges   map[string]*Edge `json:"edges" yaml:"edges"`
	Version int64            `json:"version" yaml:"version"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Nodes: make(map[string]*Node),
		Edges: make(map[string]*Edge),
	}
}

// Clone returns a fully independent deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := &State{
		Nodes:   make(map[string]*Node, len(s.Nodes)),
		Edges:   make(map[string]*Edge, len(s.Edges)),
		Version: s.Version,
	}
	for id, n := range s.Nodes {
		c.Nodes[id] = n.Clone()
	}
	for id, e := range s.Edges {
		c.Edges[id] = e.Clone()
	}
	return c
}

// NodeList returns the nodes sorted by semantic ID.
func (s *State) NodeList() []*Node {
	ids := slices.Sorted(maps.Keys(s.Nodes))
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Nodes[id])
	}
	return out
}

// EdgeList returns the edges sorted by UUID.
func (s *State) EdgeList() []*Edge {
	ids := slices.Sorted(maps.Keys(s.Edges))
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Edges[id])
	}
	return out
}

// NodeFilter selects nodes in GetNodes. Zero-valued fields match everything.
type NodeFilter struct {
	WorkspaceID string
	SystemID    string
	Types       []string
	IDPrefix    string
}

// EdgeFilter selects edges in GetEdges. Zero-valued fields match everything.
type EdgeFilter struct {
	WorkspaceID string
	SystemID    string
	Types       []string
	SourceID    string
	TargetID    string
}

func cloneAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAttributes(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
