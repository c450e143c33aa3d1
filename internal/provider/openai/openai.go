// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai implements the embedder and responder on the OpenAI API.
package openai

import (
	"context"
	"slices"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/ontograph/internal/provider"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "gpt-4.1-mini"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int // embeddings only; 0 keeps the model default
	MaxRetries int
}

func newClient(cfg Config) (openaisdk.Client, error) {
	if cfg.APIKey == "" {
		return openaisdk.Client{}, sigilerr.New(sigilerr.CodeProviderRequestInvalid,
			"openai: missing api_key in config", sigilerr.FieldProvider("openai"))
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openaisdk.NewClient(opts...), nil
}

// Embedder implements provider.Embedder with the Embeddings API.
type Embedder struct {
	client     openaisdk.Client
	model      string
	dimensions int
	health     *provider.HealthTracker
}

// NewEmbedder returns an error if the API key is missing.
func NewEmbedder(cfg Config) (*Embedder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{
		client:     client,
		model:      model,
		dimensions: cfg.Dimensions,
		health:     provider.MustHealthTracker(),
	}, nil
}

func (e *Embedder) Name() string { return "openai" }

func (e *Embedder) Health() *provider.HealthTracker { return e.health }

// EmbedTexts sends every text in one request and returns the vectors in
// input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(e.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	e.health.Record(err)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeProviderUpstreamFailure, "openai: embeddings request",
			sigilerr.FieldProvider("openai"))
	}
	return orderEmbeddings(resp.Data, len(texts))
}

// orderEmbeddings places each vector at its reported index.
func orderEmbeddings(data []openaisdk.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid,
			"openai: %d embeddings for %d inputs", len(data), want)
	}
	out := make([][]float32, want)
	for _, d := range data {
		if d.Index < 0 || int(d.Index) >= want || out[d.Index] != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeProviderResponseInvalid,
				"openai: embedding index %d out of range or repeated", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Responder implements provider.Responder with Chat Completions.
type Responder struct {
	client openaisdk.Client
	model  string
	health *provider.HealthTracker
}

// NewResponder returns an error if the API key is missing.
func NewResponder(cfg Config) (*Responder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &Responder{client: client, model: model, health: provider.MustHealthTracker()}, nil
}

func (r *Responder) Name() string { return "openai" }

func (r *Responder) Available(_ context.Context) bool { return r.health.IsHealthy() }

func (r *Responder) Health() *provider.HealthTracker { return r.health }

func (r *Responder) Close() error { return nil }

func (r *Responder) Respond(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params, err := buildParams(r.model, req)
	if err != nil {
		return nil, err
	}

	completion, err := r.client.Chat.Completions.New(ctx, params)
	r.health.Record(err)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeProviderUpstreamFailure, "openai: chat completion",
			sigilerr.FieldProvider("openai"))
	}
	if len(completion.Choices) == 0 {
		return nil, sigilerr.New(sigilerr.CodeProviderResponseInvalid, "openai: completion has no choices",
			sigilerr.FieldProvider("openai"))
	}

	var text strings.Builder
	for _, choice := range completion.Choices {
		text.WriteString(choice.Message.Content)
	}
	return &provider.Response{
		Text:  text.String(),
		Model: completion.Model,
		Usage: provider.Usage{
			InputTokens:     int(completion.Usage.PromptTokens),
			OutputTokens:    int(completion.Usage.CompletionTokens),
			CacheReadTokens: int(completion.Usage.PromptTokensDetails.CachedTokens),
		},
	}, nil
}

// buildParams converts a provider.Request into ChatCompletionNewParams. The
// system prompt is prepended as a system message if present.
func buildParams(defaultModel string, req provider.Request) (openaisdk.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleUser:
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		case provider.MessageRoleAssistant:
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
		default:
			return openaisdk.ChatCompletionNewParams{}, sigilerr.Errorf(sigilerr.CodeProviderRequestInvalid,
				"openai: unsupported message role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return openaisdk.ChatCompletionNewParams{}, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "openai: empty request")
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: slices.Clip(msgs),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Temperature))
	}
	return params, nil
}
