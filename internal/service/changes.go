// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package service

import (
	"github.com/sigil-dev/ontograph/internal/changes"
	"github.com/sigil-dev/ontograph/internal/graph"
)

// CaptureBaseline freezes the current graph as the comparison point.
func (s *Service) CaptureBaseline() error {
	if err := s.ready(); err != nil {
		return err
	}
	s.tracker.CaptureBaseline(s.graph.ToState())
	return nil
}

func (s *Service) ClearBaseline() error {
	if err := s.ready(); err != nil {
		return err
	}
	s.tracker.ClearBaseline()
	return nil
}

func (s *Service) HasBaseline() bool {
	return !s.closed.Load() && s.tracker.HasBaseline()
}

func (s *Service) BaselineState() (*graph.State, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.tracker.BaselineState(), nil
}

func (s *Service) NodeStatus(semanticID string) (changes.Status, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.tracker.NodeStatus(semanticID, s.graph.GetNode(semanticID)), nil
}

func (s *Service) EdgeStatus(id string) (changes.Status, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.tracker.EdgeStatus(id, s.graph.GetEdge(id)), nil
}

func (s *Service) Changes() ([]changes.Change, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.tracker.Changes(s.graph.ToState()), nil
}

func (s *Service) ChangeSummary() (changes.Summary, error) {
	if err := s.ready(); err != nil {
		return changes.Summary{}, err
	}
	return s.tracker.Summary(s.graph.ToState()), nil
}

func (s *Service) HasChanges() (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return s.tracker.HasChanges(s.graph.ToState()), nil
}

// DeletedSinceBaseline lists node and edge IDs present in the baseline but
// missing now.
func (s *Service) DeletedSinceBaseline() (nodeIDs, edgeIDs []string, err error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}
	nodeIDs, edgeIDs = s.tracker.DeletedIDs(s.graph.ToState())
	return nodeIDs, edgeIDs, nil
}

// Snapshot is a consistent view of the graph plus what the change tracker
// reports as deleted relative to the baseline.
type Snapshot struct {
	State        *graph.State
	DeletedNodes []string
	DeletedEdges []string
	// HasBaseline is false when there was nothing to diff against; the
	// deletion lists are then empty.
	HasBaseline bool
}

// Snapshot captures the current graph and the deletions since the baseline
// from the same copy of the state.
func (s *Service) Snapshot() (*Snapshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	st := s.graph.ToState()
	snap := &Snapshot{State: st, HasBaseline: s.tracker.HasBaseline()}
	snap.DeletedNodes, snap.DeletedEdges = s.tracker.DeletedIDs(st)
	return snap, nil
}

// MarkCommitted makes state the new baseline once it has been persisted.
func (s *Service) MarkCommitted(state *graph.State) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.tracker.CaptureBaseline(state)
	return nil
}
