// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/ontograph/internal/variant"
)

func (s *Server) registerVariantRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-variants",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/variants",
		Summary:     "List variants",
		Tags:        []string{"variants"},
	}, s.handleListVariants)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-variant",
		Method:        http.MethodPost,
		Path:          scopePrefix + "/variants",
		Summary:       "Create a variant from the base graph or a supplied state",
		Tags:          []string{"variants"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateVariant)

	huma.Register(s.api, huma.Operation{
		OperationID: "compare-variants",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/variants/compare",
		Summary:     "Compare two variants",
		Tags:        []string{"variants"},
		Errors:      []int{http.StatusNotFound},
	}, s.handleCompareVariants)

	huma.Register(s.api, huma.Operation{
		OperationID: "variant-memory",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/variants/memory",
		Summary:     "Variant pool memory usage",
		Tags:        []string{"variants"},
	}, s.handleVariantMemory)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-variant",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/variants/{id}",
		Summary:     "Get a variant's graph",
		Tags:        []string{"variants"},
		Errors:      []int{http.StatusNotFound},
	}, s.handleGetVariant)

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-to-variant",
		Method:      http.MethodPost,
		Path:        scopePrefix + "/variants/{id}/apply",
		Summary:     "Apply an edit batch to a variant",
		Tags:        []string{"variants"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, s.handleApplyToVariant)

	huma.Register(s.api, huma.Operation{
		OperationID:   "fork-variant",
		Method:        http.MethodPost,
		Path:          scopePrefix + "/variants/{id}/fork",
		Summary:       "Copy a variant into a new one",
		Tags:          []string{"variants"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, s.handleForkVariant)

	huma.Register(s.api, huma.Operation{
		OperationID: "promote-variant",
		Method:      http.MethodPost,
		Path:        scopePrefix + "/variants/{id}/promote",
		Summary:     "Replace the base graph with a variant",
		Tags:        []string{"variants"},
		Errors:      []int{http.StatusNotFound},
	}, s.handlePromoteVariant)

	huma.Register(s.api, huma.Operation{
		OperationID:   "discard-variant",
		Method:        http.MethodDelete,
		Path:          scopePrefix + "/variants/{id}",
		Summary:       "Discard a variant",
		Tags:          []string{"variants"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, s.handleDiscardVariant)
}

// --- Request/Response types for huma ---

type variantListOutput struct {
	Body struct {
		Variants []variant.Info `json:"variants"`
	}
}

type createVariantInput struct {
	ScopePath
	Body *StateBody `required:"false"`
}

type variantIDOutput struct {
	Body struct {
		ID string `json:"id"`
	}
}

type variantIDInput struct {
	ScopePath
	ID string `path:"id" doc:"Variant ID"`
}

type variantOutput struct {
	Body struct {
		Info  variant.Info `json:"info"`
		State StateView    `json:"state"`
	}
}

type applyInput struct {
	ScopePath
	ID   string `path:"id" doc:"Variant ID"`
	Body DiffBody
}

type compareInput struct {
	ScopePath
	A string `query:"a" required:"true" doc:"First variant ID"`
	B string `query:"b" required:"true" doc:"Second variant ID"`
}

type compareOutput struct {
	Body *variant.Comparison
}

type memoryOutput struct {
	Body variant.MemoryUsage
}

// --- Handlers ---

func (s *Server) handleListVariants(ctx context.Context, input *scopeInput) (*variantListOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	infos, err := svc.ListVariants()
	if err != nil {
		return nil, s.apiError(err, "list variants")
	}
	out := &variantListOutput{}
	out.Body.Variants = nonNil(infos)
	return out, nil
}

func (s *Server) handleCreateVariant(ctx context.Context, input *createVariantInput) (*variantIDOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}

	var id string
	if input.Body == nil {
		id, err = svc.CreateVariant()
	} else {
		st, serr := input.Body.state()
		if serr != nil {
			return nil, s.apiError(serr, "create variant")
		}
		id, err = svc.CreateVariantFrom(st)
	}
	if err != nil {
		return nil, s.apiError(err, "create variant")
	}
	out := &variantIDOutput{}
	out.Body.ID = id
	return out, nil
}

func (s *Server) handleGetVariant(ctx context.Context, input *variantIDInput) (*variantOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	st, err := svc.GetVariant(input.ID)
	if err != nil {
		return nil, s.apiError(err, "get variant")
	}
	info, err := svc.VariantInfo(input.ID)
	if err != nil {
		return nil, s.apiError(err, "get variant")
	}
	out := &variantOutput{}
	out.Body.Info = info
	out.Body.State = viewState(st)
	return out, nil
}

func (s *Server) handleApplyToVariant(ctx context.Context, input *applyInput) (*versionOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	v, err := svc.ApplyToVariant(input.ID, input.Body.diff())
	if err != nil {
		return nil, s.apiError(err, "apply to variant")
	}
	out := &versionOutput{}
	out.Body.Version = v
	return out, nil
}

func (s *Server) handleForkVariant(ctx context.Context, input *variantIDInput) (*variantIDOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	id, err := svc.ForkVariant(input.ID)
	if err != nil {
		return nil, s.apiError(err, "fork variant")
	}
	out := &variantIDOutput{}
	out.Body.ID = id
	return out, nil
}

func (s *Server) handlePromoteVariant(ctx context.Context, input *variantIDInput) (*versionOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	v, err := svc.PromoteVariant(input.ID)
	if err != nil {
		return nil, s.apiError(err, "promote variant")
	}
	out := &versionOutput{}
	out.Body.Version = v
	return out, nil
}

func (s *Server) handleDiscardVariant(ctx context.Context, input *variantIDInput) (*struct{}, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	if err := svc.DiscardVariant(input.ID); err != nil {
		return nil, s.apiError(err, "discard variant")
	}
	return nil, nil
}

func (s *Server) handleCompareVariants(ctx context.Context, input *compareInput) (*compareOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	cmp, err := svc.CompareVariants(input.A, input.B)
	if err != nil {
		return nil, s.apiError(err, "compare variants")
	}
	return &compareOutput{Body: cmp}, nil
}

func (s *Server) handleVariantMemory(ctx context.Context, input *scopeInput) (*memoryOutput, error) {
	svc, err := s.open(ctx, input.ScopePath)
	if err != nil {
		return nil, err
	}
	mem, err := svc.VariantMemory()
	if err != nil {
		return nil, s.apiError(err, "variant memory")
	}
	return &memoryOutput{Body: mem}, nil
}
