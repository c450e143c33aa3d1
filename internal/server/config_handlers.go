// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/secrets"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// ProviderKeyValidator validates an API key for a given provider.
type ProviderKeyValidator func(ctx context.Context, name provider.Name, key string) error

// ConfigDeps holds dependencies for configuration endpoints.
type ConfigDeps struct {
	Secrets          secrets.Store
	ValidateProvider ProviderKeyValidator
	// Providers reports the health of the configured embedder and responders.
	Providers func() []provider.Status
}

// DefaultProviderKeyValidator returns a ProviderKeyValidator that uses the real provider API.
func DefaultProviderKeyValidator(client *http.Client) ProviderKeyValidator {
	return func(ctx context.Context, name provider.Name, key string) error {
		return provider.ValidateKey(ctx, client, name, key)
	}
}

// --- Request/Response types ---

type configureProviderInput struct {
	Body struct {
		Type   string `json:"type" doc:"Provider type" enum:"anthropic,openai,google" required:"true"`
		APIKey string `json:"api_key" doc:"Provider API key" minLength:"1" required:"true"`
	}
}

type configureProviderOutput struct {
	Body struct {
		Status   string `json:"status" doc:"Result status" example:"ok"`
		Provider string `json:"provider" doc:"Configured provider type"`
		KeyURI   string `json:"key_uri" doc:"Reference to use in the config file"`
	}
}

type providerStatusOutput struct {
	Body struct {
		Providers []provider.Status `json:"providers"`
	}
}

func (s *Server) registerConfigRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "configure-provider",
		Method:      http.MethodPost,
		Path:        "/api/v1/config/providers",
		Summary:     "Validate and store a provider API key",
		Tags:        []string{"config"},
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, s.handleConfigureProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "provider-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/config/providers",
		Summary:     "Health of the configured providers",
		Tags:        []string{"config"},
	}, s.handleProviderStatus)
}

func (s *Server) handleConfigureProvider(ctx context.Context, input *configureProviderInput) (*configureProviderOutput, error) {
	cd := s.deps.Config
	if cd.Secrets == nil || cd.ValidateProvider == nil {
		s.logger.Error("config endpoints called without secret store or validator")
		return nil, huma.Error503ServiceUnavailable("configuration service not available")
	}

	name := provider.Name(input.Body.Type)
	if err := cd.ValidateProvider(ctx, name, input.Body.APIKey); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeProviderKeyInvalid) {
			return nil, huma.Error400BadRequest(fmt.Sprintf("invalid %s API key", input.Body.Type))
		}
		s.logger.Error("provider key validation failed", "provider", input.Body.Type, "error", err)
		return nil, huma.Error502BadGateway(fmt.Sprintf("could not validate %s API key", input.Body.Type))
	}

	if err := cd.Secrets.Store(secrets.Service, secrets.ProviderKeyName(input.Body.Type), input.Body.APIKey); err != nil {
		s.logger.Error("failed to store provider key", "provider", input.Body.Type, "error", err)
		return nil, huma.Error500InternalServerError("failed to store API key")
	}

	s.logger.Info("provider API key configured", "provider", input.Body.Type)

	out := &configureProviderOutput{}
	out.Body.Status = "ok"
	out.Body.Provider = input.Body.Type
	out.Body.KeyURI = secrets.ProviderKeyURI(input.Body.Type)
	return out, nil
}

func (s *Server) handleProviderStatus(_ context.Context, _ *struct{}) (*providerStatusOutput, error) {
	out := &providerStatusOutput{}
	out.Body.Providers = []provider.Status{}
	if s.deps.Config.Providers != nil {
		out.Body.Providers = s.deps.Config.Providers()
	}
	return out, nil
}
