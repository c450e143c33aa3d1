// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google implements an embedder on the Gemini API.
package google

import (
	"context"
	"net/http"

	"google.golang.org/genai"

	"github.com/sigil-dev/ontograph/internal/provider"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

const DefaultModel = "gemini-embedding-001"

// Config holds Google provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	HTTPClient *http.Client
}

// Embedder implements provider.Embedder using the Gemini embeddings API.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
	health     *provider.HealthTracker
}

// New creates a new Google embedder. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "google: missing api_key in config", sigilerr.FieldProvider("google"))
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		client:     client,
		model:      model,
		dimensions: cfg.Dimensions,
		health:     provider.MustHealthTracker(),
	}, nil
}

func (e *Embedder) Name() string { return "google" }

func (e *Embedder) Health() *provider.HealthTracker { return e.health }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(e.dimensions))}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	e.health.Record(err)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeProviderUpstreamFailure, "google: embed content",
			sigilerr.FieldProvider("google"))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid,
			"google: %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid, "google: empty embedding at %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
