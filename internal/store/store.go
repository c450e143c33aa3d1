// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"strings"

	"github.com/sigil-dev/ontograph/internal/graph"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Scope identifies one (workspace, system) graph.
type Scope struct {
	WorkspaceID string `json:"workspace_id"`
	SystemID    string `json:"system_id"`
}

func (s Scope) String() string {
	return s.WorkspaceID + "/" + s.SystemID
}

// Validate rejects empty or path-like scope components.
func (s Scope) Validate() error {
	for name, v := range map[string]string{"workspace": s.WorkspaceID, "system": s.SystemID} {
		if strings.TrimSpace(v) == "" {
			return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "scope: %s ID must not be empty", name)
		}
		if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
			return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "scope: %s ID %q contains path characters", name, v)
		}
	}
	return nil
}

// GraphStore is the durable backing store for scope graphs. Implementations
// own crash safety; callers treat every method as a remote call that may
// fail and never retry inside the in-memory layer.
type GraphStore interface {
	// LoadGraph returns every stored node and edge of the scope plus the
	// last saved version. An unknown scope yields an empty state.
	LoadGraph(ctx context.Context, scope Scope) (*graph.State, error)
	SaveNodes(ctx context.Context, scope Scope, nodes []*graph.Node) error
	SaveEdges(ctx context.Context, scope Scope, edges []*graph.Edge) error
	DeleteNodes(ctx context.Context, scope Scope, semanticIDs []string) error
	DeleteEdges(ctx context.Context, scope Scope, edgeIDs []string) error
	SaveVersion(ctx context.Context, scope Scope, version int64) error
	Close() error
}
