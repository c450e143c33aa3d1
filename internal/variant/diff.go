// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package variant

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sigil-dev/ontograph/internal/graph"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// applyDiff mutates st in place: node adds, node updates, node deletes
// (with cascade), edge adds, edge updates, edge deletes. Deleting a key that
// does not exist is a no-op.
func applyDiff(st *graph.State, d Diff) error {
	for _, n := range d.AddNodes {
		if err := putNode(st, n); err != nil {
			return err
		}
	}
	for _, n := range d.UpdateNodes {
		if err := putNode(st, n); err != nil {
			return err
		}
	}
	for _, id := range d.DeleteNodes {
		delete(st.Nodes, id)
		for eid, e := range st.Edges {
			if e.SourceID == id || e.TargetID == id {
				delete(st.Edges, eid)
			}
		}
	}

	for _, e := range d.AddEdges {
		if err := putEdge(st, e); err != nil {
			return err
		}
	}
	for _, e := range d.UpdateEdges {
		if err := putEdge(st, e); err != nil {
			return err
		}
	}
	for _, id := range d.DeleteEdges {
		delete(st.Edges, id)
	}

	// An edge added before a node delete in the same diff may now dangle.
	for _, e := range st.Edges {
		if _, ok := st.Nodes[e.SourceID]; !ok {
			return danglingEdge(e, e.SourceID)
		}
		if _, ok := st.Nodes[e.TargetID]; !ok {
			return danglingEdge(e, e.TargetID)
		}
	}
	return nil
}

func putNode(st *graph.State, in *graph.Node) error {
	if in == nil || in.SemanticID == "" {
		return sigilerr.New(sigilerr.CodeVariantInvalidInput, "diff node without semantic ID")
	}
	n := in.Clone()
	if n.UUID == "" {
		if prev, ok := st.Nodes[n.SemanticID]; ok {
			n.UUID = prev.UUID
		} else {
			n.UUID = uuid.NewString()
		}
	}
	st.Nodes[n.SemanticID] = n
	return nil
}

func putEdge(st *graph.State, in *graph.Edge) error {
	if in == nil || in.SourceID == "" || in.TargetID == "" || in.Type == "" {
		return sigilerr.New(sigilerr.CodeVariantInvalidInput, "diff edge requires source, target, and type")
	}
	e := in.Clone()
	key := e.Key()
	for id, other := range st.Edges {
		if other.Key() == key && id != e.UUID {
			// Overwrite by natural key: reuse the existing identity when the
			// caller did not pick one, otherwise replace it.
			if e.UUID == "" {
				e.UUID = id
			} else {
				delete(st.Edges, id)
			}
			break
		}
	}
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	st.Edges[e.UUID] = e
	return nil
}

func danglingEdge(e *graph.Edge, missing string) error {
	return sigilerr.New(sigilerr.CodeGraphEdgeReferentialIntegrity,
		fmt.Sprintf("diff leaves edge %s pointing at missing node %s", e.UUID, missing),
		sigilerr.FieldEdgeID(e.UUID),
		sigilerr.FieldNodeID(missing),
	)
}

// estimateState approximates the heap footprint of a state. It counts string
// bytes plus a fixed per-element overhead and is only meant for relative
// comparisons between variants.
func estimateState(st *graph.State) int64 {
	const (
		nodeOverhead = 160
		edgeOverhead = 128
	)
	var total int64
	for id, n := range st.Nodes {
		total += nodeOverhead + int64(len(id)+len(n.SemanticID)+len(n.UUID)+len(n.Type)+
			len(n.Name)+len(n.Description)+len(n.WorkspaceID)+len(n.SystemID))
		total += estimateValue(n.Attributes)
	}
	for id, e := range st.Edges {
		total += edgeOverhead + int64(len(id)+len(e.UUID)+len(e.SourceID)+len(e.TargetID)+
			len(e.Type)+len(e.Label)+len(e.WorkspaceID)+len(e.SystemID))
	}
	return total
}

func estimateValue(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(t)) + 16
	case map[string]any:
		var sum int64 = 48
		for k, item := range t {
			sum += int64(len(k)) + 16 + estimateValue(item)
		}
		return sum
	case []any:
		var sum int64 = 24
		for _, item := range t {
			sum += estimateValue(item)
		}
		return sum
	case []string:
		var sum int64 = 24
		for _, s := range t {
			sum += int64(len(s)) + 16
		}
		return sum
	default:
		return 16
	}
}
