// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package assist answers natural-language questions about a scope's graph.
// Answers are cached per graph version so that a repeated question against an
// unchanged graph never reaches the model.
package assist

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sigil-dev/ontograph/internal/graph"
	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/service"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// defaultMaxContextNodes bounds how many nodes are rendered into the prompt.
const defaultMaxContextNodes = 200

const systemPreamble = `You answer questions about a system ontology graph.
Nodes are listed as "TYPE ID: name - description"; edges as "SOURCE -TYPE-> TARGET".
Answer from the graph only. If the question asks for changes, describe them and
then list them one per line inside an <operations></operations> block using
"add node|update node|delete node|add edge|delete edge" followed by the ids.`

var operationsRe = regexp.MustCompile(`(?s)<operations>(.*?)</operations>`)

// Config controls prompt construction.
type Config struct {
	Model           string
	MaxTokens       int
	MaxContextNodes int
}

// Answer is the result of Ask.
type Answer struct {
	Response   string         `json:"response"`
	Operations string         `json:"operations,omitempty"`
	Version    int64          `json:"version"`
	Cached     bool           `json:"cached"`
	Semantic   bool           `json:"semantic,omitempty"`
	Usage      provider.Usage `json:"usage"`
}

// Assistant binds a scope's service to a responder.
type Assistant struct {
	svc       *service.Service
	responder provider.Responder
	cfg       Config
	logger    *slog.Logger
}

// New creates an Assistant. A nil responder is allowed; Ask then serves only
// cached answers and reports a not-initialized error on a miss.
func New(svc *service.Service, responder provider.Responder, cfg Config, logger *slog.Logger) *Assistant {
	if cfg.MaxContextNodes <= 0 {
		cfg.MaxContextNodes = defaultMaxContextNodes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{svc: svc, responder: responder, cfg: cfg, logger: logger}
}

// Ask answers query against the graph as of the current version.
func (a *Assistant) Ask(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, sigilerr.New(sigilerr.CodeGraphInvalidInput, "assist: empty query")
	}

	version, err := a.svc.Version()
	if err != nil {
		return nil, err
	}

	hit, err := a.svc.CheckCache(ctx, query, version)
	if err != nil {
		// A broken semantic backing degrades to a miss.
		a.logger.Warn("assist cache lookup failed", "error", err, "version", version)
	}
	if hit != nil {
		return &Answer{
			Response:   hit.Response,
			Operations: hit.Operations,
			Version:    version,
			Cached:     true,
			Semantic:   hit.Semantic,
		}, nil
	}

	if a.responder == nil {
		return nil, sigilerr.New(sigilerr.CodeAssistNotConfigured, "assist: no responder configured",
			sigilerr.FieldWorkspaceID(a.svc.WorkspaceID()), sigilerr.FieldSystemID(a.svc.SystemID()))
	}

	state, err := a.svc.State()
	if err != nil {
		return nil, err
	}
	// The snapshot may be newer than the version we checked; answer for it.
	version = state.Version

	resp, err := a.responder.Respond(ctx, provider.Request{
		Model:        a.cfg.Model,
		SystemPrompt: systemPreamble + "\n\n" + RenderGraph(state, a.cfg.MaxContextNodes),
		Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: query}},
		MaxTokens:    a.cfg.MaxTokens,
	})
	if err != nil {
		return nil, sigilerr.With(err, sigilerr.FieldWorkspaceID(a.svc.WorkspaceID()), sigilerr.FieldSystemID(a.svc.SystemID()))
	}

	text, ops := ExtractOperations(resp.Text)
	if err := a.svc.CacheResponse(ctx, query, version, text, ops); err != nil {
		a.logger.Warn("assist cache store failed", "error", err, "version", version)
	}

	a.logger.Debug("assist answered",
		"workspace_id", a.svc.WorkspaceID(),
		"system_id", a.svc.SystemID(),
		"version", version,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return &Answer{
		Response:   text,
		Operations: ops,
		Version:    version,
		Usage:      resp.Usage,
	}, nil
}

// ExtractOperations splits a model reply into the prose answer and the
// contents of its first <operations> block. Both are trimmed.
func ExtractOperations(text string) (response, operations string) {
	loc := operationsRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), ""
	}
	operations = strings.TrimSpace(text[loc[2]:loc[3]])
	response = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return response, operations
}

// RenderGraph writes state as prompt context, at most maxNodes nodes and the
// edges between them.
func RenderGraph(state *graph.State, maxNodes int) string {
	var b strings.Builder
	nodes := state.NodeList()
	truncated := maxNodes > 0 && len(nodes) > maxNodes
	if truncated {
		nodes = nodes[:maxNodes]
	}

	included := make(map[string]struct{}, len(nodes))
	fmt.Fprintf(&b, "Graph version %d.\nNodes:\n", state.Version)
	for _, n := range nodes {
		included[n.SemanticID] = struct{}{}
		fmt.Fprintf(&b, "%s %s: %s", n.Type, n.SemanticID, n.Name)
		if n.Description != "" {
			fmt.Fprintf(&b, " - %s", n.Description)
		}
		b.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&b, "(%d more nodes omitted)\n", len(state.Nodes)-maxNodes)
	}

	b.WriteString("Edges:\n")
	for _, e := range state.EdgeList() {
		_, src := included[e.SourceID]
		_, dst := included[e.TargetID]
		if !src || !dst {
			continue
		}
		fmt.Fprintf(&b, "%s -%s-> %s\n", e.SourceID, e.Type, e.TargetID)
	}
	return b.String()
}
