// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package neo4j

import (
	"encoding/json"
	"time"

	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Neo4j properties cannot hold nested maps, so attributes travel as JSON.

func nodeRecord(scope store.Scope, n *graph.Node) (map[string]any, error) {
	attrs := ""
	if len(n.Attributes) > 0 {
		raw, err := json.Marshal(n.Attributes)
		if err != nil {
			return nil, store.InvalidInput("node %s: attributes are not JSON-encodable: %v", n.SemanticID, err)
		}
		attrs = string(raw)
	}
	return map[string]any{
		"workspace_id":    scope.WorkspaceID,
		"system_id":       scope.SystemID,
		"semantic_id":     n.SemanticID,
		"uuid":            n.UUID,
		"type":            n.Type,
		"name":            n.Name,
		"description":     n.Description,
		"attributes_json": attrs,
		"updated_at":      formatTime(n.UpdatedAt),
	}, nil
}

func nodeFromProps(props map[string]any) (*graph.Node, error) {
	n := &graph.Node{
		SemanticID:  asString(props["semantic_id"]),
		UUID:        asString(props["uuid"]),
		Type:        asString(props["type"]),
		Name:        asString(props["name"]),
		Description: asString(props["description"]),
		WorkspaceID: asString(props["workspace_id"]),
		SystemID:    asString(props["system_id"]),
		UpdatedAt:   parseTime(asString(props["updated_at"])),
	}
	if raw := asString(props["attributes_json"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Attributes); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "neo4j: decoding attributes of %s: %w", n.SemanticID, err)
		}
	}
	return n, nil
}

// edgeRecord returns the UNWIND row for one edge: endpoints for matching
// plus the relationship properties.
func edgeRecord(scope store.Scope, e *graph.Edge) map[string]any {
	return map[string]any{
		"uuid":   e.UUID,
		"source": e.SourceID,
		"target": e.TargetID,
		"props": map[string]any{
			"workspace_id": scope.WorkspaceID,
			"system_id":    scope.SystemID,
			"uuid":         e.UUID,
			"type":         e.Type,
			"label":        e.Label,
			"updated_at":   formatTime(e.UpdatedAt),
		},
	}
}

func edgeFromProps(props map[string]any, source, target string) *graph.Edge {
	return &graph.Edge{
		UUID:        asString(props["uuid"]),
		SourceID:    source,
		TargetID:    target,
		Type:        asString(props["type"]),
		Label:       asString(props["label"]),
		WorkspaceID: asString(props["workspace_id"]),
		SystemID:    asString(props["system_id"]),
		UpdatedAt:   parseTime(asString(props["updated_at"])),
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
