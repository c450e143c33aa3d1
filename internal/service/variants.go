// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package service

import (
	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/variant"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// CreateVariant snapshots the current graph into a new HOT variant.
func (s *Service) CreateVariant() (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.variants.Create(s.graph.SystemID(), s.graph.ToState()), nil
}

// CreateVariantFrom creates a variant from an arbitrary state.
func (s *Service) CreateVariantFrom(state *graph.State) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if state == nil {
		return "", sigilerr.New(sigilerr.CodeVariantInvalidInput, "variant state is required")
	}
	if err := state.Validate(); err != nil {
		return "", err
	}
	return s.variants.Create(s.graph.SystemID(), state), nil
}

// ForkVariant copies an existing variant.
func (s *Service) ForkVariant(id string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.variants.Fork(id)
}

// GetVariant returns a copy of the variant's state and marks it HOT.
func (s *Service) GetVariant(id string) (*graph.State, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	st := s.variants.Get(id)
	if st == nil {
		return nil, sigilerr.New(sigilerr.CodeVariantNotFound, "variant not found", sigilerr.FieldVariantID(id))
	}
	return st, nil
}

func (s *Service) VariantInfo(id string) (variant.Info, error) {
	if err := s.ready(); err != nil {
		return variant.Info{}, err
	}
	return s.variants.Info(id)
}

func (s *Service) ApplyToVariant(id string, diff variant.Diff) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.variants.Apply(id, diff)
}

// PromoteVariant replaces the graph with the variant's state and discards the
// variant. It returns the graph version after the reload. A variant whose
// state cannot be loaded is kept.
func (s *Service) PromoteVariant(id string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if current := s.variants.Get(id); current != nil {
		if err := current.Validate(); err != nil {
			return 0, sigilerr.With(err, sigilerr.FieldVariantID(id))
		}
	}
	st, err := s.variants.Promote(id)
	if err != nil {
		return 0, err
	}
	// The variant's private version is unrelated to the store's counter.
	st.Version = 0
	version, err := s.graph.LoadFromState(st)
	if err != nil {
		return 0, sigilerr.With(err, sigilerr.FieldVariantID(id))
	}
	s.retainEmbeddings(st)
	s.logger.Info("variant promoted", "variant_id", id, "version", version)
	return version, nil
}

func (s *Service) DiscardVariant(id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.variants.Discard(id)
}

func (s *Service) ListVariants() ([]variant.Info, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.variants.List(), nil
}

func (s *Service) CompareVariants(a, b string) (*variant.Comparison, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.variants.Compare(a, b)
}

func (s *Service) VariantMemory() (variant.MemoryUsage, error) {
	if err := s.ready(); err != nil {
		return variant.MemoryUsage{}, err
	}
	return s.variants.MemoryUsage(), nil
}
