// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/embedding"
	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/provider/openai"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Compile-time interface satisfaction checks.
var (
	_ provider.Embedder  = (*openai.Embedder)(nil)
	_ embedding.Provider = (*openai.Embedder)(nil)
	_ provider.Responder = (*openai.Responder)(nil)
)

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := openai.NewEmbedder(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeProviderRequestInvalid))

	_, err = openai.NewResponder(openai.Config{})
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestEmbedder_EmbedTextsSingleRequestInOrder(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		var body struct {
			Model      string   `json:"model"`
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body.Model)
		assert.Equal(t, []string{"a", "bb"}, body.Input)
		assert.Equal(t, 2, body.Dimensions)

		// Out of order on purpose.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":1,"embedding":[2,2]},{"object":"embedding","index":0,"embedding":[1,1]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e, err := openai.NewEmbedder(openai.Config{APIKey: "k", BaseURL: srv.URL, Dimensions: 2})
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)
	assert.Equal(t, 1, requests)
	assert.True(t, e.Health().IsHealthy())
}

func TestEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer srv.Close()

	e, err := openai.NewEmbedder(openai.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = e.EmbedTexts(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeProviderResponseInvalid))
}

func TestEmbedder_UpstreamFailureMarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := openai.NewEmbedder(openai.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = e.EmbedTexts(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, sigilerr.IsUpstreamFailure(err))
	assert.False(t, e.Health().IsHealthy())
}

func TestEmbedder_EmptyInputSkipsCall(t *testing.T) {
	e, err := openai.NewEmbedder(openai.Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	vecs, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestResponder_Respond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4.1-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"REQ-1 is satisfied by FUNC-1"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}}`))
	}))
	defer srv.Close()

	r, err := openai.NewResponder(openai.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	resp, err := r.Respond(context.Background(), provider.Request{
		SystemPrompt: "graph",
		Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: "what satisfies REQ-1?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "REQ-1 is satisfied by FUNC-1", resp.Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
	assert.True(t, r.Available(context.Background()))
}

func TestBuildParams(t *testing.T) {
	temp := float32(0.2)
	params, err := openai.BuildParams("fallback", provider.Request{
		SystemPrompt: "sys",
		Messages: []provider.Message{
			{Role: provider.MessageRoleUser, Content: "q"},
			{Role: provider.MessageRoleAssistant, Content: "a"},
		},
		MaxTokens:   100,
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", string(params.Model))
	assert.Len(t, params.Messages, 3)
	assert.Equal(t, int64(100), params.MaxCompletionTokens.Value)

	_, err = openai.BuildParams("m", provider.Request{Messages: []provider.Message{{Role: "tool"}}})
	assert.True(t, sigilerr.IsInvalidInput(err))

	_, err = openai.BuildParams("m", provider.Request{})
	assert.True(t, sigilerr.IsInvalidInput(err))
}
