// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package neo4j implements the graph backing store on a Neo4j property graph.
// Nodes are stored as :OntoNode, edges as :ONTO_EDGE relationships, and the
// scope version on an :OntoScope node.
package neo4j

import (
	"context"
	"log/slog"
	"time"

	neo4jdrv "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/store"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

const connectTimeout = 10 * time.Second

func init() {
	store.RegisterBackend("neo4j", newGraphStore, nil)
}

// Compile-time interface check.
var _ store.GraphStore = (*GraphStore)(nil)

// GraphStore implements store.GraphStore on Neo4j.
type GraphStore struct {
	driver   neo4jdrv.DriverWithContext
	database string
	logger   *slog.Logger
}

func newGraphStore(cfg *store.StorageConfig, _ string) (store.GraphStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return NewGraphStore(ctx, cfg.Neo4j)
}

// NewGraphStore connects to Neo4j, verifies connectivity, and creates the
// schema constraints if they are missing.
func NewGraphStore(ctx context.Context, cfg store.Neo4jConfig) (*GraphStore, error) {
	if cfg.URI == "" {
		return nil, sigilerr.New(sigilerr.CodeStoreInvalidInput, "neo4j: storage.neo4j.uri is required")
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}

	driver, err := neo4jdrv.NewDriverWithContext(cfg.URI, neo4jdrv.BasicAuth(user, cfg.Password, ""), func(c *neo4jdrv.Config) {
		c.SocketConnectTimeout = connectTimeout
	})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "neo4j: init driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "neo4j: verify connectivity: %w", err)
	}

	g := &GraphStore{driver: driver, database: cfg.Database, logger: slog.Default()}
	g.ensureSchema(ctx)
	return g, nil
}

// ensureSchema is best effort; restricted users may not create constraints.
func (g *GraphStore) ensureSchema(ctx context.Context) {
	session := g.session(ctx, neo4jdrv.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()

	for _, q := range []string{
		`CREATE CONSTRAINT onto_node_key IF NOT EXISTS FOR (n:OntoNode) REQUIRE (n.workspace_id, n.system_id, n.semantic_id) IS UNIQUE`,
		`CREATE CONSTRAINT onto_scope_key IF NOT EXISTS FOR (s:OntoScope) REQUIRE (s.workspace_id, s.system_id) IS UNIQUE`,
	} {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			g.logger.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

// Close closes the driver.
func (g *GraphStore) Close() error {
	return g.driver.Close(context.Background())
}

// LoadGraph reads the scope's nodes, edges, and version in one read transaction.
func (g *GraphStore) LoadGraph(ctx context.Context, scope store.Scope) (*graph.State, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	session := g.session(ctx, neo4jdrv.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	out, err := session.ExecuteRead(ctx, func(tx neo4jdrv.ManagedTransaction) (any, error) {
		params := scopeParams(scope)
		st := graph.NewState()

		res, err := tx.Run(ctx, `
MATCH (n:OntoNode {workspace_id: $ws, system_id: $sys})
RETURN properties(n) AS props`, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			raw, _ := rec.Get("props")
			n, err := nodeFromProps(asMap(raw))
			if err != nil {
				return nil, err
			}
			st.Nodes[n.SemanticID] = n
		}

		res, err = tx.Run(ctx, `
MATCH (a:OntoNode {workspace_id: $ws, system_id: $sys})-[r:ONTO_EDGE]->(b:OntoNode {workspace_id: $ws, system_id: $sys})
RETURN properties(r) AS props, a.semantic_id AS source, b.semantic_id AS target`, params)
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			raw, _ := rec.Get("props")
			source, _ := rec.Get("source")
			target, _ := rec.Get("target")
			e := edgeFromProps(asMap(raw), asString(source), asString(target))
			st.Edges[e.UUID] = e
		}

		res, err = tx.Run(ctx, `
MATCH (s:OntoScope {workspace_id: $ws, system_id: $sys})
RETURN s.version AS version`, params)
		if err != nil {
			return nil, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			v, _ := records[0].Get("version")
			st.Version = asInt64(v)
		}
		return st, nil
	})
	if err != nil {
		return nil, wrapErr(err, "neo4j: loading graph", scope)
	}
	st := out.(*graph.State)
	g.logger.Debug("graph loaded", "scope", scope.String(), "nodes", len(st.Nodes), "edges", len(st.Edges), "version", st.Version)
	return st, nil
}

// SaveNodes merges nodes by (scope, semantic ID).
func (g *GraphStore) SaveNodes(ctx context.Context, scope store.Scope, nodes []*graph.Node) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	recs := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		rec, err := nodeRecord(scope, n)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}

	return g.write(ctx, scope, "neo4j: saving nodes", func(tx neo4jdrv.ManagedTransaction) error {
		return run(ctx, tx, `
UNWIND $nodes AS n
MERGE (c:OntoNode {workspace_id: n.workspace_id, system_id: n.system_id, semantic_id: n.semantic_id})
SET c += n`, map[string]any{"nodes": recs})
	})
}

// SaveEdges replaces edges by UUID and by natural key, then recreates them.
func (g *GraphStore) SaveEdges(ctx context.Context, scope store.Scope, edges []*graph.Edge) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}
	recs := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		recs = append(recs, edgeRecord(scope, e))
	}

	return g.write(ctx, scope, "neo4j: saving edges", func(tx neo4jdrv.ManagedTransaction) error {
		params := scopeParams(scope)
		params["rels"] = recs

		if err := run(ctx, tx, `
UNWIND $rels AS r
MATCH (:OntoNode {workspace_id: $ws, system_id: $sys})-[e:ONTO_EDGE {workspace_id: $ws, system_id: $sys}]->(:OntoNode)
WHERE e.uuid = r.uuid
DELETE e`, params); err != nil {
			return err
		}
		if err := run(ctx, tx, `
UNWIND $rels AS r
MATCH (:OntoNode {workspace_id: $ws, system_id: $sys, semantic_id: r.source})-[e:ONTO_EDGE {type: r.props.type}]->(:OntoNode {workspace_id: $ws, system_id: $sys, semantic_id: r.target})
DELETE e`, params); err != nil {
			return err
		}
		return run(ctx, tx, `
UNWIND $rels AS r
MATCH (a:OntoNode {workspace_id: $ws, system_id: $sys, semantic_id: r.source})
MATCH (b:OntoNode {workspace_id: $ws, system_id: $sys, semantic_id: r.target})
CREATE (a)-[e:ONTO_EDGE]->(b)
SET e = r.props`, params)
	})
}

// DeleteNodes detaches and deletes nodes, which drops their edges too.
func (g *GraphStore) DeleteNodes(ctx context.Context, scope store.Scope, semanticIDs []string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(semanticIDs) == 0 {
		return nil
	}
	return g.write(ctx, scope, "neo4j: deleting nodes", func(tx neo4jdrv.ManagedTransaction) error {
		params := scopeParams(scope)
		params["ids"] = semanticIDs
		return run(ctx, tx, `
UNWIND $ids AS id
MATCH (c:OntoNode {workspace_id: $ws, system_id: $sys, semantic_id: id})
DETACH DELETE c`, params)
	})
}

// DeleteEdges deletes edges by UUID.
func (g *GraphStore) DeleteEdges(ctx context.Context, scope store.Scope, edgeIDs []string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if len(edgeIDs) == 0 {
		return nil
	}
	return g.write(ctx, scope, "neo4j: deleting edges", func(tx neo4jdrv.ManagedTransaction) error {
		params := scopeParams(scope)
		params["ids"] = edgeIDs
		return run(ctx, tx, `
MATCH ()-[e:ONTO_EDGE {workspace_id: $ws, system_id: $sys}]->()
WHERE e.uuid IN $ids
DELETE e`, params)
	})
}

// SaveVersion records the scope version on its :OntoScope node.
func (g *GraphStore) SaveVersion(ctx context.Context, scope store.Scope, version int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return g.write(ctx, scope, "neo4j: saving version", func(tx neo4jdrv.ManagedTransaction) error {
		params := scopeParams(scope)
		params["version"] = version
		return run(ctx, tx, `
MERGE (s:OntoScope {workspace_id: $ws, system_id: $sys})
SET s.version = $version`, params)
	})
}

func (g *GraphStore) session(ctx context.Context, mode neo4jdrv.AccessMode) neo4jdrv.SessionWithContext {
	return g.driver.NewSession(ctx, neo4jdrv.SessionConfig{AccessMode: mode, DatabaseName: g.database})
}

func (g *GraphStore) write(ctx context.Context, scope store.Scope, op string, fn func(tx neo4jdrv.ManagedTransaction) error) error {
	session := g.session(ctx, neo4jdrv.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4jdrv.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return wrapErr(err, op, scope)
}

func run(ctx context.Context, tx neo4jdrv.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func wrapErr(err error, op string, scope store.Scope) error {
	if err == nil {
		return nil
	}
	if sigilerr.CodeOf(err) != "" {
		return sigilerr.With(err, sigilerr.FieldWorkspaceID(scope.WorkspaceID), sigilerr.FieldSystemID(scope.SystemID))
	}
	return store.DatabaseError(err, op, sigilerr.FieldWorkspaceID(scope.WorkspaceID), sigilerr.FieldSystemID(scope.SystemID))
}

func scopeParams(scope store.Scope) map[string]any {
	return map[string]any{"ws": scope.WorkspaceID, "sys": scope.SystemID}
}
