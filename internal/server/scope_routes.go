// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/ontograph/internal/assist"
	"github.com/sigil-dev/ontograph/internal/changes"
	"github.com/sigil-dev/ontograph/internal/embedding"
	"github.com/sigil-dev/ontograph/internal/service"
	"github.com/sigil-dev/ontograph/internal/store"
	"github.com/sigil-dev/ontograph/internal/workspace"
)

const scopePrefix = "/api/v1/scopes/{workspace}/{system}"

func (s *Server) registerScopeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-scopes",
		Method:      http.MethodGet,
		Path:        "/api/v1/scopes",
		Summary:     "List open scopes",
		Tags:        []string{"scopes"},
	}, s.handleListScopes)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/version",
		Summary:     "Current graph version",
		Tags:        []string{"scopes"},
	}, s.handleVersion)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/state",
		Summary:     "Snapshot of the whole graph",
		Tags:        []string{"scopes"},
	}, s.handleGetState)

	huma.Register(s.api, huma.Operation{
		OperationID: "load-state",
		Method:      http.MethodPut,
		Path:        scopePrefix + "/state",
		Summary:     "Replace the whole graph",
		Tags:        []string{"scopes"},
	}, s.handleLoadState)

	huma.Register(s.api, huma.Operation{
		OperationID: "commit-scope",
		Method:      http.MethodPost,
		Path:        scopePrefix + "/commit",
		Summary:     "Persist the graph to the backing store",
		Tags:        []string{"scopes"},
	}, s.handleCommit)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-scope",
		Method:      http.MethodPost,
		Path:        scopePrefix + "/reset",
		Summary:     "Clear graph, variants, baseline, embeddings, and cache",
		Tags:        []string{"scopes"},
	}, s.handleReset)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-changes",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/changes",
		Summary:     "Changes since the baseline",
		Tags:        []string{"changes"},
	}, s.handleChanges)

	huma.Register(s.api, huma.Operation{
		OperationID: "capture-baseline",
		Method:      http.MethodPost,
		Path:        scopePrefix + "/baseline",
		Summary:     "Capture the current graph as the baseline",
		Tags:        []string{"changes"},
	}, s.handleCaptureBaseline)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-baseline",
		Method:      http.MethodDelete,
		Path:        scopePrefix + "/baseline",
		Summary:     "Drop the baseline",
		Tags:        []string{"changes"},
	}, s.handleClearBaseline)

	huma.Register(s.api, huma.Operation{
		OperationID: "ask",
		Method:      http.MethodPost,
		Path:        scopePrefix + "/ask",
		Summary:     "Ask a question about the graph",
		Tags:        []string{"assist"},
	}, s.handleAsk)

	huma.Register(s.api, huma.Operation{
		OperationID: "similar-nodes",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/similar",
		Summary:     "Node pairs whose embeddings meet a similarity threshold",
		Tags:        []string{"embeddings"},
	}, s.handleSimilar)
}

// open returns the scope's service, hydrating it on first use.
func (s *Server) open(ctx context.Context, p ScopePath) (*service.Service, error) {
	ws, err := s.deps.Workspaces.Open(ctx, p.scope())
	if err != nil {
		return nil, s.apiError(err, "open")
	}
	return ws.Service, nil
}

// --- Request/Response types for huma ---

type listScopesOutput struct {
	Body struct {
		Scopes []store.Scope `json:"scopes"`
	}
}

type scopeInput struct {
	ScopePath
}

type versionOutput struct {
	Body struct {
		Version int64 `json:"version"`
	}
}

type stateOutput struct {
	Body StateView
}

type loadStateInput struct {
	ScopePath
	Body StateBody
}

type commitOutput struct {
	Body workspace.CommitResult
}

type changesOutput struct {
	Body struct {
		HasBaseline bool             `json:"has_baseline"`
		Summary     changes.Summary  `json:"summary"`
		Changes     []changes.Change `json:"changes"`
	}
}

type askInput struct {
	ScopePath
	Body struct {
		Query string `json:"query" minLength:"1" doc:"Natural-language question"`
	}
}

type askOutput struct {
	Body assist.Answer
}

type similarInput struct {
	ScopePath
	Threshold float64 `query:"threshold" default:"0.9" exclusiveMinimum:"0" maximum:"1" doc:"Minimum cosine similarity"`
}

type similarOutput struct {
	Body struct {
		Pairs []embedding.Pair `json:"pairs"`
	}
}

// --- Handlers ---

func (s *Server) handleListScopes(_ context.Context, _ *struct{}) (*listScopesOutput, error) {
	out := &listScopesOutput{}
	out.Body.Scopes = nonNil(s.deps.Workspaces.Scopes())
	return out, nil
}

func (s *Server) handleVersion(ctx context.Context, input *scopeInput) (*versionOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	v, err := svc.Version()
	if err != nil {
		return nil, s.apiError(err, "version")
	}
	out := &versionOutput{}
	out.Body.Version = v
	return out, nil
}

func (s *Server) handleGetState(ctx context.Context, input *scopeInput) (*stateOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	st, err := svc.State()
	if err != nil {
		return nil, s.apiError(err, "state")
	}
	return &stateOutput{Body: viewState(st)}, nil
}

func (s *Server) handleLoadState(ctx context.Context, input *loadStateInput) (*versionOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	st, err := input.Body.state()
	if err != nil {
		return nil, s.apiError(err, "load state")
	}
	v, err := svc.LoadFromState(st)
	if err != nil {
		return nil, s.apiError(err, "load state")
	}
	out := &versionOutput{}
	out.Body.Version = v
	return out, nil
}

func (s *Server) handleCommit(ctx context.Context, input *scopeInput) (*commitOutput, error) {
	if _, err := s.open(ctx, input.ScopePath); err != nil {
		return nil, err
	}
	res, err := s.deps.Workspaces.Commit(ctx, input.scope())
	if err != nil {
		return nil, s.apiError(err, "commit")
	}
	return &commitOutput{Body: *res}, nil
}

func (s *Server) handleReset(ctx context.Context, input *scopeInput) (*versionOutput, error) {
	if _, err := s.open(ctx, input.ScopePath); err != nil {
		return nil, err
	}
	v, err := s.deps.Workspaces.Reset(ctx, input.scope())
	if err != nil {
		return nil, s.apiError(err, "reset")
	}
	out := &versionOutput{}
	out.Body.Version = v
	return out, nil
}

func (s *Server) handleChanges(ctx context.Context, input *scopeInput) (*changesOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	summary, err := svc.ChangeSummary()
	if err != nil {
		return nil, s.apiError(err, "changes")
	}
	list, err := svc.Changes()
	if err != nil {
		return nil, s.apiError(err, "changes")
	}
	out := &changesOutput{}
	out.Body.HasBaseline = svc.HasBaseline()
	out.Body.Summary = summary
	out.Body.Changes = nonNil(list)
	return out, nil
}

func (s *Server) handleCaptureBaseline(ctx context.Context, input *scopeInput) (*struct{}, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	if err := svc.CaptureBaseline(); err != nil {
		return nil, s.apiError(err, "capture baseline")
	}
	return nil, nil
}

func (s *Server) handleClearBaseline(ctx context.Context, input *scopeInput) (*struct{}, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	if err := svc.ClearBaseline(); err != nil {
		return nil, s.apiError(err, "clear baseline")
	}
	return nil, nil
}

func (s *Server) handleAsk(ctx context.Context, input *askInput) (*askOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	a := assist.New(svc, s.deps.Responder, s.deps.Assist, s.logger)
	answer, err := a.Ask(ctx, input.Body.Query)
	if err != nil {
		return nil, s.apiError(err, "ask")
	}
	return &askOutput{Body: *answer}, nil
}

func (s *Server) handleSimilar(ctx context.Context, input *similarInput) (*similarOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	pairs, err := svc.SimilarNodes(ctx, input.Threshold)
	if err != nil {
		return nil, s.apiError(err, "similar")
	}
	out := &similarOutput{}
	out.Body.Pairs = nonNil(pairs)
	return out, nil
}
