// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import "time"

// EventKind classifies a change event.
type EventKind string

const (
	EventNodeAdd    EventKind = "node_add"
	EventNodeUpdate EventKind = "node_update"
	EventNodeDelete EventKind = "node_delete"
	EventEdgeAdd    EventKind = "edge_add"
	EventEdgeUpdate EventKind = "edge_update"
	EventEdgeDelete EventKind = "edge_delete"

	// EventReload is emitted once per bulk replace (LoadFromState, Reset).
	// Its ID is empty; subscribers must treat every element as changed.
	EventReload EventKind = "reload"
)

// IsNode reports whether the event concerns a single node.
func (k EventKind) IsNode() bool {
	return k == EventNodeAdd || k == EventNodeUpdate || k == EventNodeDelete
}

// IsEdge reports whether the event concerns a single edge.
func (k EventKind) IsEdge() bool {
	return k == EventEdgeAdd || k == EventEdgeUpdate || k == EventEdgeDelete
}

// Event describes one committed mutation. ID is the node semantic ID or the
// edge UUID, depending on Kind.
type Event struct {
	Kind      EventKind `json:"kind"`
	ID        string    `json:"id,omitempty"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives change events. Listeners are invoked synchronously while
// the store's write lock is held, in mutation order, before the mutating call
// returns. A listener must not call back into the same Store.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}
