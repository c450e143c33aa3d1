// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// graphFile is the YAML document written by export and read by import.
// Nodes and edges are lists sorted by id so that exports diff cleanly.
type graphFile struct {
	WorkspaceID string        `yaml:"workspace_id"`
	SystemID    string        `yaml:"system_id"`
	Version     int64         `yaml:"version"`
	Nodes       []*graph.Node `yaml:"nodes"`
	Edges       []*graph.Edge `yaml:"edges"`
}

func newGraphFile(scope store.Scope, state *graph.State) *graphFile {
	f := &graphFile{
		WorkspaceID: scope.WorkspaceID,
		SystemID:    scope.SystemID,
		Version:     state.Version,
		Nodes:       make([]*graph.Node, 0, len(state.Nodes)),
		Edges:       make([]*graph.Edge, 0, len(state.Edges)),
	}
	for _, n := range state.Nodes {
		f.Nodes = append(f.Nodes, n)
	}
	for _, e := range state.Edges {
		f.Edges = append(f.Edges, e)
	}
	slices.SortFunc(f.Nodes, func(a, b *graph.Node) int { return strings.Compare(a.SemanticID, b.SemanticID) })
	slices.SortFunc(f.Edges, func(a, b *graph.Edge) int { return strings.Compare(a.UUID, b.UUID) })
	return f
}

func (f *graphFile) encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeCLIRequestFailure, "encoding graph file")
	}
	return enc.Close()
}

func decodeGraphFile(r io.Reader) (*graphFile, error) {
	var f graphFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, sigilerr.Wrap(err, sigilerr.CodeCLIInputInvalid, "parsing graph file")
	}
	return &f, nil
}

// state converts the file into a graph state owned by scope. Elements are
// re-homed to scope, so a file exported from one scope can seed another.
// Edges without a UUID get a fresh one.
func (f *graphFile) state(scope store.Scope) (*graph.State, error) {
	st := graph.NewState()
	st.Version = f.Version
	for i, n := range f.Nodes {
		if n == nil || n.SemanticID == "" {
			return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "node %d has no semantic_id", i)
		}
		if _, dup := st.Nodes[n.SemanticID]; dup {
			return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "node %q appears twice", n.SemanticID)
		}
		c := n.Clone()
		c.WorkspaceID, c.SystemID = scope.WorkspaceID, scope.SystemID
		st.Nodes[c.SemanticID] = c
	}
	for i, e := range f.Edges {
		if e == nil {
			return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "edge %d is empty", i)
		}
		c := e.Clone()
		if c.UUID == "" {
			c.UUID = uuid.NewString()
		}
		if _, dup := st.Edges[c.UUID]; dup {
			return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "edge %q appears twice", c.UUID)
		}
		c.WorkspaceID, c.SystemID = scope.WorkspaceID, scope.SystemID
		st.Edges[c.UUID] = c
	}
	return st, nil
}
