// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/server"
	"github.com/sigil-dev/ontograph/internal/service"
	"github.com/sigil-dev/ontograph/internal/store"
	"github.com/sigil-dev/ontograph/internal/workspace"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	manager := workspace.NewManager(nullGraphStore{}, service.Config{})
	defer func() { _ = manager.Shutdown(context.Background()) }()

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{
		Workspaces: manager,
		Config:     &server.ConfigDeps{},
	})
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "creating server")
	}
	defer srv.Close()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// nullGraphStore backs the manager during spec generation. Handlers are
// never invoked.
type nullGraphStore struct{}

func (nullGraphStore) LoadGraph(context.Context, store.Scope) (*graph.State, error) {
	return graph.NewState(), nil
}
func (nullGraphStore) SaveNodes(context.Context, store.Scope, []*graph.Node) error { return nil }
func (nullGraphStore) SaveEdges(context.Context, store.Scope, []*graph.Edge) error { return nil }
func (nullGraphStore) DeleteNodes(context.Context, store.Scope, []string) error    { return nil }
func (nullGraphStore) DeleteEdges(context.Context, store.Scope, []string) error    { return nil }
func (nullGraphStore) SaveVersion(context.Context, store.Scope, int64) error       { return nil }
func (nullGraphStore) Close() error                                                { return nil }
