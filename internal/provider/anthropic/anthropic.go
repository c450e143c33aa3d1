// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/ontograph/internal/provider"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// DefaultModel is used when neither the config nor the request names one.
const DefaultModel = "claude-sonnet-4-5"

const defaultMaxTokens = 4096

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	MaxRetries int
}

// Responder implements provider.Responder using the Anthropic Messages API.
type Responder struct {
	client anthropicsdk.Client
	model  string
	health *provider.HealthTracker
}

// New creates a new Anthropic responder. Returns an error if the API key is missing.
func New(cfg Config) (*Responder, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "anthropic: missing api_key in config",
			sigilerr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Responder{
		client: anthropicsdk.NewClient(opts...),
		model:  model,
		health: provider.MustHealthTracker(),
	}, nil
}

func (r *Responder) Name() string { return "anthropic" }

func (r *Responder) Available(_ context.Context) bool {
	return r.health.IsHealthy()
}

func (r *Responder) Health() *provider.HealthTracker { return r.health }

func (r *Responder) Close() error { return nil }

func (r *Responder) Respond(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params, err := buildParams(r.model, req)
	if err != nil {
		return nil, err
	}

	msg, err := r.client.Messages.New(ctx, params)
	r.health.Record(err)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeProviderUpstreamFailure, "anthropic: messages request",
			sigilerr.FieldProvider("anthropic"))
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, sigilerr.New(sigilerr.CodeProviderResponseInvalid, "anthropic: response has no text content",
			sigilerr.FieldProvider("anthropic"))
	}

	return &provider.Response{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: provider.Usage{
			InputTokens:      int(msg.Usage.InputTokens),
			OutputTokens:     int(msg.Usage.OutputTokens),
			CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}, nil
}

// buildParams converts a provider.Request into Anthropic SDK MessageNewParams.
func buildParams(defaultModel string, req provider.Request) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}
	if len(msgs) == 0 {
		return anthropicsdk.MessageNewParams{}, sigilerr.New(sigilerr.CodeProviderRequestInvalid,
			"anthropic: request has no messages")
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Temperature))
	}
	return params, nil
}

func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam
	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content)))
		case provider.MessageRoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content)))
		default:
			return nil, sigilerr.Errorf(sigilerr.CodeProviderRequestInvalid,
				"anthropic: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}
