// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/provider/anthropic"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

var _ provider.Responder = (*anthropic.Responder)(nil)

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestResponder_Respond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet-4-5", body["model"])
		assert.EqualValues(t, 4096, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"FUNC-1 "},{"type":"text","text":"satisfies REQ-1"}],
			"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":20,"output_tokens":5,"cache_read_input_tokens":3,"cache_creation_input_tokens":0}}`))
	}))
	defer srv.Close()

	r, err := anthropic.New(anthropic.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := r.Respond(context.Background(), provider.Request{
		SystemPrompt: "graph context",
		Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: "what satisfies REQ-1?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "FUNC-1 satisfies REQ-1", resp.Text)
	assert.Equal(t, "claude-sonnet-4-5", resp.Model)
	assert.Equal(t, provider.Usage{InputTokens: 20, OutputTokens: 5, CacheReadTokens: 3}, resp.Usage)
	assert.True(t, r.Available(context.Background()))
}

func TestResponder_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`))
	}))
	defer srv.Close()

	r, err := anthropic.New(anthropic.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = r.Respond(context.Background(), provider.Request{
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "q"}},
	})
	require.Error(t, err)
	assert.True(t, sigilerr.IsUpstreamFailure(err))
	assert.False(t, r.Available(context.Background()))
}

func TestBuildParams(t *testing.T) {
	temp := float32(0.5)
	params, err := anthropic.BuildParams("m", provider.Request{
		Model:        "override",
		SystemPrompt: "sys",
		Messages: []provider.Message{
			{Role: provider.MessageRoleUser, Content: "q"},
			{Role: provider.MessageRoleAssistant, Content: "a"},
		},
		MaxTokens:   256,
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "override", string(params.Model))
	assert.Equal(t, int64(256), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "sys", params.System[0].Text)
	assert.Len(t, params.Messages, 2)

	_, err = anthropic.BuildParams("m", provider.Request{})
	assert.True(t, sigilerr.IsInvalidInput(err))

	_, err = anthropic.BuildParams("m", provider.Request{Messages: []provider.Message{{Role: "system", Content: "x"}}})
	assert.True(t, sigilerr.IsInvalidInput(err))
}
