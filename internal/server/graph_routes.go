// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/ontograph/internal/graph"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

func (s *Server) registerGraphRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-nodes",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/nodes",
		Summary:     "List nodes",
		Tags:        []string{"nodes"},
	}, s.handleListNodes)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-node",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/nodes/{id}",
		Summary:     "Get a node by semantic ID",
		Tags:        []string{"nodes"},
		Errors:      []int{http.StatusNotFound},
	}, s.handleGetNode)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-node",
		Method:        http.MethodPost,
		Path:          scopePrefix + "/nodes",
		Summary:       "Create a node",
		Tags:          []string{"nodes"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, s.handleCreateNode)

	huma.Register(s.api, huma.Operation{
		OperationID: "upsert-node",
		Method:      http.MethodPut,
		Path:        scopePrefix + "/nodes/{id}",
		Summary:     "Create or replace a node",
		Tags:        []string{"nodes"},
		Errors:      []int{http.StatusBadRequest},
	}, s.handleUpsertNode)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-node",
		Method:        http.MethodDelete,
		Path:          scopePrefix + "/nodes/{id}",
		Summary:       "Delete a node and its incident edges",
		Tags:          []string{"nodes"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, s.handleDeleteNode)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-edges",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/edges",
		Summary:     "List edges",
		Tags:        []string{"edges"},
	}, s.handleListEdges)

	huma.Register(s.api, huma.Operation{
		OperationID: "lookup-edge",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/edges/lookup",
		Summary:     "Get an edge by (source, type, target)",
		Tags:        []string{"edges"},
		Errors:      []int{http.StatusNotFound},
	}, s.handleLookupEdge)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-edge",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/edges/{id}",
		Summary:     "Get an edge by UUID",
		Tags:        []string{"edges"},
		Errors:      []int{http.StatusNotFound},
	}, s.handleGetEdge)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-edge",
		Method:        http.MethodPost,
		Path:          scopePrefix + "/edges",
		Summary:       "Create an edge",
		Tags:          []string{"edges"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, s.handleCreateEdge)

	huma.Register(s.api, huma.Operation{
		OperationID: "upsert-edge",
		Method:      http.MethodPut,
		Path:        scopePrefix + "/edges/{id}",
		Summary:     "Create or replace an edge",
		Tags:        []string{"edges"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, s.handleUpsertEdge)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-edge",
		Method:        http.MethodDelete,
		Path:          scopePrefix + "/edges/{id}",
		Summary:       "Delete an edge",
		Tags:          []string{"edges"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, s.handleDeleteEdge)
}

// --- Request/Response types for huma ---

type listNodesInput struct {
	ScopePath
	Types  []string `query:"type" doc:"Restrict to these node types"`
	Prefix string   `query:"prefix" doc:"Semantic ID prefix"`
}

type nodeListOutput struct {
	Body struct {
		Nodes []*graph.Node `json:"nodes"`
	}
}

type nodeIDInput struct {
	ScopePath
	ID string `path:"id" doc:"Semantic ID"`
}

type nodeOutput struct {
	Body *graph.Node
}

type createNodeInput struct {
	ScopePath
	Body NodeBody
}

type upsertNodeInput struct {
	ScopePath
	ID   string `path:"id" doc:"Semantic ID"`
	Body NodeBody
}

type listEdgesInput struct {
	ScopePath
	Types  []string `query:"type" doc:"Restrict to these edge types"`
	Source string   `query:"source" doc:"Source semantic ID"`
	Target string   `query:"target" doc:"Target semantic ID"`
}

type edgeListOutput struct {
	Body struct {
		Edges []*graph.Edge `json:"edges"`
	}
}

type lookupEdgeInput struct {
	ScopePath
	Source string `query:"source" required:"true"`
	Type   string `query:"type" required:"true"`
	Target string `query:"target" required:"true"`
}

type edgeIDInput struct {
	ScopePath
	ID string `path:"id" doc:"Edge UUID"`
}

type edgeOutput struct {
	Body *graph.Edge
}

type createEdgeInput struct {
	ScopePath
	Body EdgeBody
}

type upsertEdgeInput struct {
	ScopePath
	ID   string `path:"id" doc:"Edge UUID"`
	Body EdgeBody
}

// --- Node handlers ---

func (s *Server) handleListNodes(ctx context.Context, input *listNodesInput) (*nodeListOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	nodes, err := svc.GetNodes(graph.NodeFilter{Types: input.Types, IDPrefix: input.Prefix})
	if err != nil {
		return nil, s.apiError(err, "list nodes")
	}
	out := &nodeListOutput{}
	out.Body.Nodes = nonNil(nodes)
	return out, nil
}

func (s *Server) handleGetNode(ctx context.Context, input *nodeIDInput) (*nodeOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	n, err := svc.GetNode(input.ID)
	if err != nil {
		return nil, s.apiError(err, "get node")
	}
	if n == nil {
		return nil, s.apiError(sigilerr.New(sigilerr.CodeGraphNodeNotFound, "node not found", sigilerr.FieldNodeID(input.ID)), "get node")
	}
	return &nodeOutput{Body: n}, nil
}

func (s *Server) handleCreateNode(ctx context.Context, input *createNodeInput) (*nodeOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	n, err := svc.SetNode(input.Body.node())
	if err != nil {
		return nil, s.apiError(err, "create node")
	}
	return &nodeOutput{Body: n}, nil
}

func (s *Server) handleUpsertNode(ctx context.Context, input *upsertNodeInput) (*nodeOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	node := input.Body.node()
	node.SemanticID = input.ID
	n, err := svc.UpsertNode(node)
	if err != nil {
		return nil, s.apiError(err, "upsert node")
	}
	return &nodeOutput{Body: n}, nil
}

func (s *Server) handleDeleteNode(ctx context.Context, input *nodeIDInput) (*struct{}, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	if err := svc.DeleteNode(input.ID); err != nil {
		return nil, s.apiError(err, "delete node")
	}
	return nil, nil
}

// --- Edge handlers ---

func (s *Server) handleListEdges(ctx context.Context, input *listEdgesInput) (*edgeListOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	edges, err := svc.GetEdges(graph.EdgeFilter{Types: input.Types, SourceID: input.Source, TargetID: input.Target})
	if err != nil {
		return nil, s.apiError(err, "list edges")
	}
	out := &edgeListOutput{}
	out.Body.Edges = nonNil(edges)
	return out, nil
}

func (s *Server) handleLookupEdge(ctx context.Context, input *lookupEdgeInput) (*edgeOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	e, err := svc.GetEdgeByKey(input.Source, input.Type, input.Target)
	if err != nil {
		return nil, s.apiError(err, "lookup edge")
	}
	if e == nil {
		return nil, s.apiError(sigilerr.Errorf(sigilerr.CodeGraphEdgeNotFound,
			"no %s edge from %s to %s", input.Type, input.Source, input.Target), "lookup edge")
	}
	return &edgeOutput{Body: e}, nil
}

func (s *Server) handleGetEdge(ctx context.Context, input *edgeIDInput) (*edgeOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	e, err := svc.GetEdge(input.ID)
	if err != nil {
		return nil, s.apiError(err, "get edge")
	}
	if e == nil {
		return nil, s.apiError(sigilerr.New(sigilerr.CodeGraphEdgeNotFound, "edge not found", sigilerr.FieldEdgeID(input.ID)), "get edge")
	}
	return &edgeOutput{Body: e}, nil
}

func (s *Server) handleCreateEdge(ctx context.Context, input *createEdgeInput) (*edgeOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	e, err := svc.SetEdge(input.Body.edge())
	if err != nil {
		return nil, s.apiError(err, "create edge")
	}
	return &edgeOutput{Body: e}, nil
}

func (s *Server) handleUpsertEdge(ctx context.Context, input *upsertEdgeInput) (*edgeOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	edge := input.Body.edge()
	edge.UUID = input.ID
	e, err := svc.UpsertEdge(edge)
	if err != nil {
		return nil, s.apiError(err, "upsert edge")
	}
	return &edgeOutput{Body: e}, nil
}

func (s *Server) handleDeleteEdge(ctx context.Context, input *edgeIDInput) (*struct{}, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	if err := svc.DeleteEdge(input.ID); err != nil {
		return nil, s.apiError(err, "delete edge")
	}
	return nil, nil
}
