// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package changes classifies the live graph against a frozen baseline,
// git-diff style.
package changes

import (
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/sigil-dev/ontograph/internal/graph"
)

// Status is the classification of one node or edge against the baseline.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusAdded     Status = "added"
	StatusModified  Status = "modified"
	StatusDeleted   Status = "deleted"
)

// ElementKind distinguishes node changes from edge changes.
type ElementKind string

const (
	ElementNode ElementKind = "node"
	ElementEdge ElementKind = "edge"
)

// Change is one non-unchanged element in a Changes listing.
type Change struct {
	Kind   ElementKind `json:"kind"`
	ID     string      `json:"id"`
	Status Status      `json:"status"`
}

// Summary counts changes by status.
type Summary struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
	Total    int `json:"total"`
}

// Baseline is a frozen copy of the graph taken by CaptureBaseline.
type Baseline struct {
	State      *graph.State
	CapturedAt time.Time
}

// Tracker holds at most one baseline. All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	baseline *Baseline
	now      func() time.Time
}

// NewTracker returns a tracker with no baseline.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// CaptureBaseline deep-copies state and makes it the comparison point,
// replacing any previous baseline.
func (t *Tracker) CaptureBaseline(state *graph.State) {
	snap := state.Clone()
	if snap == nil {
		snap = graph.NewState()
	}
	t.mu.Lock()
	t.baseline = &Baseline{State: snap, CapturedAt: t.now()}
	t.mu.Unlock()
}

// ClearBaseline drops the baseline. Every status becomes unchanged.
func (t *Tracker) ClearBaseline() {
	t.mu.Lock()
	t.baseline = nil
	t.mu.Unlock()
}

func (t *Tracker) HasBaseline() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseline != nil
}

// BaselineState returns a copy of the baseline state, or nil.
func (t *Tracker) BaselineState() *graph.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.baseline == nil {
		return nil
	}
	return t.baseline.State.Clone()
}

// CapturedAt returns when the baseline was taken, or the zero time.
func (t *Tracker) CapturedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.baseline == nil {
		return time.Time{}
	}
	return t.baseline.CapturedAt
}

// NodeStatus classifies the node with the given semantic ID. current is the
// node's live value, or nil when it no longer exists.
func (t *Tracker) NodeStatus(id string, current *graph.Node) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.baseline == nil {
		return StatusUnchanged
	}
	return classify(t.baseline.State.Nodes[id], current, nodesEqual)
}

// EdgeStatus classifies the edge with the given UUID.
func (t *Tracker) EdgeStatus(id string, current *graph.Edge) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.baseline == nil {
		return StatusUnchanged
	}
	return classify(t.baseline.State.Edges[id], current, edgesEqual)
}

// Changes lists every added, modified, and deleted element of state relative
// to the baseline. Nodes come first, each group sorted by ID.
func (t *Tracker) Changes(state *graph.State) []Change {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.baseline == nil || state == nil {
		return nil
	}

	var out []Change
	out = appendChanges(out, ElementNode, t.baseline.State.Nodes, state.Nodes, nodesEqual)
	out = appendChanges(out, ElementEdge, t.baseline.State.Edges, state.Edges, edgesEqual)
	return out
}

// Summary counts Changes by status.
func (t *Tracker) Summary(state *graph.State) Summary {
	var s Summary
	for _, c := range t.Changes(state) {
		switch c.Status {
		case StatusAdded:
			s.Added++
		case StatusModified:
			s.Modified++
		case StatusDeleted:
			s.Deleted++
		}
	}
	s.Total = s.Added + s.Modified + s.Deleted
	return s
}

// HasChanges reports whether state differs from the baseline at all.
func (t *Tracker) HasChanges(state *graph.State) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.baseline == nil || state == nil {
		return false
	}
	base := t.baseline.State
	if len(base.Nodes) != len(state.Nodes) || len(base.Edges) != len(state.Edges) {
		return true
	}
	for id, n := range state.Nodes {
		if classify(base.Nodes[id], n, nodesEqual) != StatusUnchanged {
			return true
		}
	}
	for id, e := range state.Edges {
		if classify(base.Edges[id], e, edgesEqual) != StatusUnchanged {
			return true
		}
	}
	return false
}

// DeletedIDs returns the node and edge keys present in the baseline but
// absent from state.
func (t *Tracker) DeletedIDs(state *graph.State) (nodeIDs, edgeIDs []string) {
	for _, c := range t.Changes(state) {
		if c.Status != StatusDeleted {
			continue
		}
		if c.Kind == ElementNode {
			nodeIDs = append(nodeIDs, c.ID)
		} else {
			edgeIDs = append(edgeIDs, c.ID)
		}
	}
	return nodeIDs, edgeIDs
}

func appendChanges[T any](out []Change, kind ElementKind, base, current map[string]*T, equal func(a, b *T) bool) []Change {
	for _, id := range slices.Sorted(maps.Keys(current)) {
		if st := classify(base[id], current[id], equal); st != StatusUnchanged {
			out = append(out, Change{Kind: kind, ID: id, Status: st})
		}
	}
	// Deletions only show up when walking the baseline.
	for _, id := range slices.Sorted(maps.Keys(base)) {
		if _, ok := current[id]; !ok {
			out = append(out, Change{Kind: kind, ID: id, Status: StatusDeleted})
		}
	}
	return out
}

func classify[T any](base, current *T, equal func(a, b *T) bool) Status {
	switch {
	case base == nil && current == nil:
		return StatusUnchanged
	case base == nil:
		return StatusAdded
	case current == nil:
		return StatusDeleted
	case !equal(base, current):
		return StatusModified
	default:
		return StatusUnchanged
	}
}

func nodesEqual(a, b *graph.Node) bool {
	if a.Name != b.Name || a.Description != b.Description || a.Type != b.Type {
		return false
	}
	if len(a.Attributes) == 0 && len(b.Attributes) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Attributes, b.Attributes)
}

func edgesEqual(a, b *graph.Edge) bool {
	return a.SourceID == b.SourceID &&
		a.TargetID == b.TargetID &&
		a.Type == b.Type &&
		a.Label == b.Label
}
