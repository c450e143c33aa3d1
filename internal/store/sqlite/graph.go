// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Compile-time interface check.
var _ store.GraphStore = (*GraphStore)(nil)

// GraphStore implements store.GraphStore backed by SQLite. All scopes share
// one database; rows are keyed by (workspace, system, id).
type GraphStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGraphStore opens (or creates) a SQLite database at dbPath and
// initialises the node, edge, and version tables.
func NewGraphStore(dbPath string) (*GraphStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrateGraph(db); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "migrating graph tables: %w", err)
	}

	return &GraphStore{db: db, logger: slog.Default()}, nil
}

func migrateGraph(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	workspace_id TEXT NOT NULL,
	system_id    TEXT NOT NULL,
	semantic_id  TEXT NOT NULL,
	uuid         TEXT NOT NULL,
	type         TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	attributes   TEXT NOT NULL DEFAULT '{}',
	updated_at   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (workspace_id, system_id, semantic_id)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	workspace_id TEXT NOT NULL,
	system_id    TEXT NOT NULL,
	uuid         TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	target_id    TEXT NOT NULL,
	type         TEXT NOT NULL,
	label        TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (workspace_id, system_id, uuid),
	UNIQUE (workspace_id, system_id, source_id, type, target_id)
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(workspace_id, system_id, source_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(workspace_id, system_id, target_id);

CREATE TABLE IF NOT EXISTS graph_versions (
	workspace_id TEXT NOT NULL,
	system_id    TEXT NOT NULL,
	version      INTEGER NOT NULL,
	PRIMARY KEY (workspace_id, system_id)
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (g *GraphStore) Close() error {
	return g.db.Close()
}

// LoadGraph reads every node and edge of the scope.
func (g *GraphStore) LoadGraph(ctx context.Context, scope store.Scope) (*graph.State, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	st := graph.NewState()

	const nodeQ = `SELECT semantic_id, uuid, type, name, description, attributes, updated_at
FROM graph_nodes WHERE workspace_id = ? AND system_id = ?`
	rows, err := g.db.QueryContext(ctx, nodeQ, scope.WorkspaceID, scope.SystemID)
	if err != nil {
		return nil, store.DatabaseError(err, "querying nodes", scopeFields(scope)...)
	}
	for rows.Next() {
		var (
			n         graph.Node
			attrsJSON string
			updated   string
		)
		if err := rows.Scan(&n.SemanticID, &n.UUID, &n.Type, &n.Name, &n.Description, &attrsJSON, &updated); err != nil {
			_ = rows.Close()
			return nil, store.DatabaseError(err, "scanning node", scopeFields(scope)...)
		}
		if attrsJSON != "" && attrsJSON != "{}" {
			if err := json.Unmarshal([]byte(attrsJSON), &n.Attributes); err != nil {
				_ = rows.Close()
				return nil, store.DatabaseError(err, "decoding node attributes", sigilerr.FieldNodeID(n.SemanticID))
			}
		}
		n.WorkspaceID = scope.WorkspaceID
		n.SystemID = scope.SystemID
		n.UpdatedAt = parseTime(updated)
		st.Nodes[n.SemanticID] = &n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, store.DatabaseError(err, "iterating nodes", scopeFields(scope)...)
	}
	_ = rows.Close()

	const edgeQ = `SELECT uuid, source_id, target_id, type, label, updated_at
FROM graph_edges WHERE workspace_id = ? AND system_id = ?`
	rows, err = g.db.QueryContext(ctx, edgeQ, scope.WorkspaceID, scope.SystemID)
	if err != nil {
		return nil, store.DatabaseError(err, "querying edges", scopeFields(scope)...)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			e       graph.Edge
			updated string
		)
		if err := rows.Scan(&e.UUID, &e.SourceID, &e.TargetID, &e.Type, &e.Label, &updated); err != nil {
			return nil, store.DatabaseError(err, "scanning edge", scopeFields(scope)...)
		}
		e.WorkspaceID = scope.WorkspaceID
		e.SystemID = scope.SystemID
		e.UpdatedAt = parseTime(updated)
		st.Edges[e.UUID] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, store.DatabaseError(err, "iterating edges", scopeFields(scope)...)
	}

	err = g.db.QueryRowContext(ctx,
		`SELECT version FROM graph_versions WHERE workspace_id = ? AND system_id = ?`,
		scope.WorkspaceID, scope.SystemID,
	).Scan(&st.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, store.DatabaseError(err, "reading version", scopeFields(scope)...)
	}

	g.logger.Debug("graph loaded", "scope", scope.String(), "nodes", len(st.Nodes), "edges", len(st.Edges), "version", st.Version)
	return st, nil
}

// SaveNodes upserts nodes by semantic ID in one transaction.
func (g *GraphStore) SaveNodes(ctx context.Context, scope store.Scope, nodes []*graph.Node) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	return g.inTx(ctx, scope, func(tx *sql.Tx) error {
		const q = `INSERT INTO graph_nodes (workspace_id, system_id, semantic_id, uuid, type, name, description, attributes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(workspace_id, system_id, semantic_id) DO UPDATE SET
	uuid = excluded.uuid,
	type = excluded.type,
	name = excluded.name,
	description = excluded.description,
	attributes = excluded.attributes,
	updated_at = excluded.updated_at`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return store.DatabaseError(err, "preparing node upsert")
		}
		defer func() { _ = stmt.Close() }()

		for _, n := range nodes {
			attrs := []byte("{}")
			if len(n.Attributes) > 0 {
				attrs, err = json.Marshal(n.Attributes)
				if err != nil {
					return store.InvalidInput("node %s: attributes are not JSON-encodable: %v", n.SemanticID, err)
				}
			}
			if _, err := stmt.ExecContext(ctx, scope.WorkspaceID, scope.SystemID,
				n.SemanticID, n.UUID, n.Type, n.Name, n.Description, string(attrs), formatTime(n.UpdatedAt),
			); err != nil {
				return store.DatabaseError(err, "upserting node", sigilerr.FieldNodeID(n.SemanticID))
			}
		}
		return nil
	})
}

// SaveEdges upserts edges by UUID in one transaction. A stored edge that
// holds the same natural key under another UUID is replaced.
func (g *GraphStore) SaveEdges(ctx context.Context, scope store.Scope, edges []*graph.Edge) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}

	return g.inTx(ctx, scope, func(tx *sql.Tx) error {
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM graph_edges WHERE workspace_id = ? AND system_id = ? AND source_id = ? AND type = ? AND target_id = ? AND uuid <> ?`,
				scope.WorkspaceID, scope.SystemID, e.SourceID, e.Type, e.TargetID, e.UUID,
			); err != nil {
				return store.DatabaseError(err, "clearing natural key", sigilerr.FieldEdgeID(e.UUID))
			}

			const q = `INSERT INTO graph_edges (workspace_id, system_id, uuid, source_id, target_id, type, label, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(workspace_id, system_id, uuid) DO UPDATE SET
	source_id = excluded.source_id,
	target_id = excluded.target_id,
	type = excluded.type,
	label = excluded.label,
	updated_at = excluded.updated_at`
			if _, err := tx.ExecContext(ctx, q, scope.WorkspaceID, scope.SystemID,
				e.UUID, e.SourceID, e.TargetID, e.Type, e.Label, formatTime(e.UpdatedAt),
			); err != nil {
				return store.DatabaseError(err, "upserting edge", sigilerr.FieldEdgeID(e.UUID))
			}
		}
		return nil
	})
}

// DeleteNodes removes nodes and any stored edges touching them.
func (g *GraphStore) DeleteNodes(ctx context.Context, scope store.Scope, semanticIDs []string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(semanticIDs) == 0 {
		return nil
	}

	return g.inTx(ctx, scope, func(tx *sql.Tx) error {
		ph, args := inClause(scope, semanticIDs)
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM graph_nodes WHERE workspace_id = ? AND system_id = ? AND semantic_id IN (`+ph+`)`, args...,
		); err != nil {
			return store.DatabaseError(err, "deleting nodes")
		}
		edgeArgs := append(append([]any{}, args...), args[2:]...)
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM graph_edges WHERE workspace_id = ? AND system_id = ? AND (source_id IN (`+ph+`) OR target_id IN (`+ph+`))`,
			edgeArgs...,
		); err != nil {
			return store.DatabaseError(err, "deleting incident edges")
		}
		return nil
	})
}

// DeleteEdges removes edges by UUID.
func (g *GraphStore) DeleteEdges(ctx context.Context, scope store.Scope, edgeIDs []string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(edgeIDs) == 0 {
		return nil
	}

	ph, args := inClause(scope, edgeIDs)
	if _, err := g.db.ExecContext(ctx,
		`DELETE FROM graph_edges WHERE workspace_id = ? AND system_id = ? AND uuid IN (`+ph+`)`, args...,
	); err != nil {
		return store.DatabaseError(err, "deleting edges", scopeFields(scope)...)
	}
	return nil
}

// SaveVersion records the scope's graph version.
func (g *GraphStore) SaveVersion(ctx context.Context, scope store.Scope, version int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	const q = `INSERT INTO graph_versions (workspace_id, system_id, version) VALUES (?, ?, ?)
ON CONFLICT(workspace_id, system_id) DO UPDATE SET version = excluded.version`
	if _, err := g.db.ExecContext(ctx, q, scope.WorkspaceID, scope.SystemID, version); err != nil {
		return store.DatabaseError(err, "saving version", scopeFields(scope)...)
	}
	return nil
}

func (g *GraphStore) inTx(ctx context.Context, scope store.Scope, fn func(tx *sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return store.DatabaseError(err, "beginning transaction", scopeFields(scope)...)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return sigilerr.With(err, scopeFields(scope)...)
	}
	if err := tx.Commit(); err != nil {
		return store.DatabaseError(err, "committing transaction", scopeFields(scope)...)
	}
	return nil
}

// inClause returns "?,?,..." for ids and the argument list prefixed with the
// scope columns.
func inClause(scope store.Scope, ids []string) (string, []any) {
	ph := strings.Repeat("?,", len(ids))
	ph = ph[:len(ph)-1]
	args := make([]any, 0, len(ids)+2)
	args = append(args, scope.WorkspaceID, scope.SystemID)
	for _, id := range ids {
		args = append(args, id)
	}
	return ph, args
}

func scopeFields(scope store.Scope) []sigilerr.Attr {
	return []sigilerr.Attr{sigilerr.FieldWorkspaceID(scope.WorkspaceID), sigilerr.FieldSystemID(scope.SystemID)}
}

// formatTime serialises a time for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
