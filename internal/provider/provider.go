// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package provider defines the remote model collaborators: embedders that
// turn node text into vectors and responders that answer questions about a
// graph.
package provider

import (
	"context"

	"github.com/sigil-dev/ontograph/pkg/health"
)

// Embedder computes one vector per input text in a single remote call.
type Embedder interface {
	Name() string
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Responder produces a complete (non-streamed) answer.
type Responder interface {
	Name() string
	Available(ctx context.Context) bool
	Respond(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Request is one model invocation.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  *float32
}

// Message is a conversation turn.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Response is a completed answer.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

// Status reports a provider's health for operators.
type Status struct {
	Provider string         `json:"provider"`
	Role     string         `json:"role"`
	Health   health.Metrics `json:"health"`
}
