// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"github.com/google/uuid"

	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/store"
	"github.com/sigil-dev/ontograph/internal/variant"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// ScopePath is embedded in every scope-bound input. Huma only binds exported
// fields, embedded ones included.
type ScopePath struct {
	Workspace string `path:"workspace" doc:"Workspace ID"`
	System    string `path:"system" doc:"System ID"`
}

func (p ScopePath) scope() store.Scope {
	return store.Scope{WorkspaceID: p.Workspace, SystemID: p.System}
}

// NodeBody is the writable part of a node.
type NodeBody struct {
	SemanticID  string         `json:"semantic_id,omitempty" doc:"Business key; taken from the path when present"`
	UUID        string         `json:"uuid,omitempty" doc:"Identity; generated when empty"`
	Type        string         `json:"type" minLength:"1" doc:"Node type (SYS, REQ, FUNC, ...)"`
	Name        string         `json:"name" doc:"Display name"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

func (b NodeBody) node() *graph.Node {
	return &graph.Node{
		SemanticID:  b.SemanticID,
		UUID:        b.UUID,
		Type:        b.Type,
		Name:        b.Name,
		Description: b.Description,
		Attributes:  b.Attributes,
	}
}

// EdgeBody is the writable part of an edge.
type EdgeBody struct {
	UUID     string `json:"uuid,omitempty" doc:"Identity; generated when empty"`
	SourceID string `json:"source_id" minLength:"1"`
	TargetID string `json:"target_id" minLength:"1"`
	Type     string `json:"type" minLength:"1"`
	Label    string `json:"label,omitempty"`
}

func (b EdgeBody) edge() *graph.Edge {
	return &graph.Edge{UUID: b.UUID, SourceID: b.SourceID, TargetID: b.TargetID, Type: b.Type, Label: b.Label}
}

// StateBody is a full graph in request form.
type StateBody struct {
	Nodes   []NodeBody `json:"nodes,omitempty"`
	Edges   []EdgeBody `json:"edges,omitempty"`
	Version int64      `json:"version,omitempty" doc:"Requested version; never lowers the current one"`
}

func (b StateBody) state() (*graph.State, error) {
	st := graph.NewState()
	st.Version = b.Version
	for i, n := range b.Nodes {
		if n.SemanticID == "" {
			return nil, sigilerr.Errorf(sigilerr.CodeServerRequestInvalid, "nodes[%d]: semantic_id is required", i)
		}
		st.Nodes[n.SemanticID] = n.node()
	}
	for _, e := range b.Edges {
		edge := e.edge()
		if edge.UUID == "" {
			edge.UUID = uuid.NewString()
		}
		st.Edges[edge.UUID] = edge
	}
	return st, nil
}

// DiffBody is a variant edit batch in request form.
type DiffBody struct {
	AddNodes    []NodeBody `json:"add_nodes,omitempty"`
	UpdateNodes []NodeBody `json:"update_nodes,omitempty"`
	DeleteNodes []string   `json:"delete_nodes,omitempty"`
	AddEdges    []EdgeBody `json:"add_edges,omitempty"`
	UpdateEdges []EdgeBody `json:"update_edges,omitempty"`
	DeleteEdges []string   `json:"delete_edges,omitempty"`
}

func (b DiffBody) diff() variant.Diff {
	d := variant.Diff{DeleteNodes: b.DeleteNodes, DeleteEdges: b.DeleteEdges}
	for _, n := range b.AddNodes {
		d.AddNodes = append(d.AddNodes, n.node())
	}
	for _, n := range b.UpdateNodes {
		d.UpdateNodes = append(d.UpdateNodes, n.node())
	}
	for _, e := range b.AddEdges {
		d.AddEdges = append(d.AddEdges, e.edge())
	}
	for _, e := range b.UpdateEdges {
		d.UpdateEdges = append(d.UpdateEdges, e.edge())
	}
	return d
}

// StateView is a graph state in response form, with stable ordering.
type StateView struct {
	Version int64         `json:"version"`
	Nodes   []*graph.Node `json:"nodes"`
	Edges   []*graph.Edge `json:"edges"`
}

func viewState(st *graph.State) StateView {
	return StateView{Version: st.Version, Nodes: nonNil(st.NodeList()), Edges: nonNil(st.EdgeList())}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
