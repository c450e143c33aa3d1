// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/broadcast"
	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/secrets"
	"github.com/sigil-dev/ontograph/internal/server"
	"github.com/sigil-dev/ontograph/internal/service"
	"github.com/sigil-dev/ontograph/internal/store/sqlite"
	"github.com/sigil-dev/ontograph/internal/workspace"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

const base = "/api/v1/scopes/acme/billing"

type stubResponder struct {
	reply string
	calls atomic.Int32
}

func (r *stubResponder) Name() string                   { return "stub" }
func (r *stubResponder) Available(context.Context) bool { return true }
func (r *stubResponder) Close() error                   { return nil }

func (r *stubResponder) Respond(_ context.Context, _ provider.Request) (*provider.Response, error) {
	r.calls.Add(1)
	return &provider.Response{Text: r.reply}, nil
}

// newTestServer builds a server over a SQLite-backed workspace manager with
// an event hub attached to every opened scope.
func newTestServer(t *testing.T, mutate func(*server.Deps)) *server.Server {
	t.Helper()
	gs, err := sqlite.NewGraphStore(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)

	hub := broadcast.NewHub()
	m := workspace.NewManager(gs, service.Config{}, workspace.WithOpenHook(func(ws *workspace.Workspace) {
		_, _ = ws.Service.Subscribe(hub.Listener(ws.Scope.WorkspaceID, ws.Scope.SystemID))
	}))

	deps := server.Deps{Workspaces: m, Hub: hub}
	if mutate != nil {
		mutate(&deps)
	}
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Close()
		_ = m.Shutdown(context.Background())
	})
	return srv
}

func do(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func node(id, typ string) map[string]any {
	return map[string]any{"semantic_id": id, "type": typ, "name": id}
}

func seed(t *testing.T, srv *server.Server) {
	t.Helper()
	for _, n := range []map[string]any{node("SYS-1", "SYS"), node("REQ-1", "REQ"), node("REQ-2", "REQ")} {
		w := do(t, srv, http.MethodPost, base+"/nodes", n)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := do(t, srv, http.MethodPost, base+"/edges", map[string]any{"source_id": "SYS-1", "target_id": "REQ-1", "type": "requires"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestServer_New_Validation(t *testing.T) {
	_, err := server.New(server.Config{}, server.Deps{})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeServerConfigInvalid))
	assert.Contains(t, err.Error(), "listen address is required")

	_, err = server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace manager is required")
}

func TestServer_HealthAndOpenAPI(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	w = do(t, srv, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "/api/v1/scopes/{workspace}/{system}/events")
	assert.Contains(t, body, "/api/v1/scopes/{workspace}/{system}/variants/{id}/promote")
}

func TestServer_NodeCRUD(t *testing.T) {
	srv := newTestServer(t, nil)
	seed(t, srv)

	w := do(t, srv, http.MethodGet, base+"/nodes/REQ-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "REQ-1", got["semantic_id"])
	assert.Equal(t, "acme", got["workspace_id"])
	assert.NotEmpty(t, got["uuid"])

	w = do(t, srv, http.MethodPost, base+"/nodes", node("REQ-1", "REQ"))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodGet, base+"/nodes?type=REQ", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Nodes []map[string]any `json:"nodes"`
	}](t, w)
	require.Len(t, list.Nodes, 2)
	assert.Equal(t, "REQ-1", list.Nodes[0]["semantic_id"])

	w = do(t, srv, http.MethodPut, base+"/nodes/REQ-2", map[string]any{"type": "REQ", "name": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Renamed", decode[map[string]any](t, w)["name"])

	w = do(t, srv, http.MethodDelete, base+"/nodes/REQ-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, base+"/nodes/REQ-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The incident edge went with the node.
	w = do(t, srv, http.MethodGet, base+"/edges", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		Edges []map[string]any `json:"edges"`
	}](t, w).Edges)
}

func TestServer_PathScopeSelectsGraph(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/scopes/acme/billing/nodes", node("SYS-1", "SYS"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "acme", created["workspace_id"])
	assert.Equal(t, "billing", created["system_id"])

	w = do(t, srv, http.MethodGet, "/api/v1/scopes/acme/shipping/nodes/SYS-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "other systems do not see the node")
	w = do(t, srv, http.MethodGet, "/api/v1/scopes/globex/billing/nodes/SYS-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "other workspaces do not see the node")
	w = do(t, srv, http.MethodGet, "/api/v1/scopes/acme/billing/nodes/SYS-1", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServer_EdgeCRUD(t *testing.T) {
	srv := newTestServer(t, nil)
	seed(t, srv)

	w := do(t, srv, http.MethodPost, base+"/edges", map[string]any{"source_id": "SYS-1", "target_id": "MISSING", "type": "requires"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodPost, base+"/edges", map[string]any{"source_id": "SYS-1", "target_id": "REQ-1", "type": "requires"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodGet, base+"/edges/lookup?source=SYS-1&type=requires&target=REQ-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id, _ := decode[map[string]any](t, w)["uuid"].(string)
	require.NotEmpty(t, id)

	w = do(t, srv, http.MethodPut, base+"/edges/"+id, map[string]any{"source_id": "SYS-1", "target_id": "REQ-1", "type": "requires", "label": "must"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodGet, base+"/edges/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "must", decode[map[string]any](t, w)["label"])

	w = do(t, srv, http.MethodGet, base+"/edges?source=REQ-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		Edges []map[string]any `json:"edges"`
	}](t, w).Edges)

	w = do(t, srv, http.MethodDelete, base+"/edges/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodDelete, base+"/edges/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StateRoundTripAndScopes(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, http.MethodPut, base+"/state", map[string]any{
		"nodes": []any{node("SYS-1", "SYS"), node("REQ-1", "REQ")},
		"edges": []any{map[string]any{"source_id": "SYS-1", "target_id": "REQ-1", "type": "requires"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	loaded := decode[struct {
		Version int64 `json:"version"`
	}](t, w).Version
	assert.Positive(t, loaded)

	w = do(t, srv, http.MethodGet, base+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[server.StateView](t, w)
	assert.Equal(t, loaded, st.Version)
	assert.Len(t, st.Nodes, 2)
	require.Len(t, st.Edges, 1)
	assert.NotEmpty(t, st.Edges[0].UUID)

	w = do(t, srv, http.MethodPut, base+"/state", map[string]any{
		"edges": []any{map[string]any{"source_id": "X", "target_id": "Y", "type": "requires"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodGet, "/api/v1/scopes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "billing")
}

func TestServer_ChangesAndCommit(t *testing.T) {
	srv := newTestServer(t, nil)
	seed(t, srv)

	w := do(t, srv, http.MethodGet, base+"/changes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ch := decode[struct {
		HasBaseline bool `json:"has_baseline"`
		Summary     struct {
			Added int `json:"added"`
		} `json:"summary"`
	}](t, w)
	assert.True(t, ch.HasBaseline)
	assert.Equal(t, 4, ch.Summary.Added)

	w = do(t, srv, http.MethodPost, base+"/commit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[workspace.CommitResult](t, w)
	assert.Equal(t, 3, res.NodesSaved)
	assert.Equal(t, 1, res.EdgesSaved)

	w = do(t, srv, http.MethodGet, base+"/changes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)

	w = do(t, srv, http.MethodDelete, base+"/baseline", nil)
	assert.Less(t, w.Code, 300)
	w = do(t, srv, http.MethodGet, base+"/changes", nil)
	assert.Contains(t, w.Body.String(), `"has_baseline":false`)

	w = do(t, srv, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, srv, http.MethodGet, base+"/nodes", nil)
	assert.Contains(t, w.Body.String(), `"nodes":[]`)
}

func TestServer_Variants(t *testing.T) {
	srv := newTestServer(t, nil)
	seed(t, srv)

	w := do(t, srv, http.MethodPost, base+"/variants", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[map[string]string](t, w)["id"]
	require.NotEmpty(t, id)

	w = do(t, srv, http.MethodPost, base+"/variants/"+id+"/apply", map[string]any{
		"add_nodes":    []any{node("FUNC-1", "FUNC")},
		"add_edges":    []any{map[string]any{"source_id": "REQ-2", "target_id": "FUNC-1", "type": "satisfied_by"}},
		"delete_nodes": []string{"REQ-1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodPost, base+"/variants/"+id+"/fork", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	fork := decode[map[string]string](t, w)["id"]

	w = do(t, srv, http.MethodGet, base+"/variants/compare?a="+id+"&b="+fork, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodGet, base+"/variants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Variants []map[string]any `json:"variants"`
	}](t, w).Variants, 2)

	w = do(t, srv, http.MethodGet, base+"/variants/memory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"variants":2`)

	w = do(t, srv, http.MethodGet, base+"/variants/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "FUNC-1")

	w = do(t, srv, http.MethodPost, base+"/variants/"+id+"/promote", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodGet, base+"/nodes/FUNC-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, srv, http.MethodGet, base+"/nodes/REQ-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodDelete, base+"/variants/"+fork, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodGet, base+"/variants/"+fork, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Ask(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, nil)
		w := do(t, srv, http.MethodPost, base+"/ask", map[string]string{"query": "what requires REQ-1?"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("cached per version", func(t *testing.T) {
		r := &stubResponder{reply: "SYS-1 requires it.\n<operations>[]</operations>"}
		srv := newTestServer(t, func(d *server.Deps) { d.Responder = r })
		seed(t, srv)

		w := do(t, srv, http.MethodPost, base+"/ask", map[string]string{"query": "what requires REQ-1?"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		first := decode[map[string]any](t, w)
		assert.Equal(t, false, first["cached"])
		assert.Equal(t, "[]", first["operations"])

		w = do(t, srv, http.MethodPost, base+"/ask", map[string]string{"query": "what requires REQ-1?"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode[map[string]any](t, w)["cached"])
		assert.Equal(t, int32(1), r.calls.Load())
	})

	t.Run("empty query", func(t *testing.T) {
		srv := newTestServer(t, nil)
		w := do(t, srv, http.MethodPost, base+"/ask", map[string]string{"query": ""})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestServer_SimilarWithoutEmbedder(t *testing.T) {
	srv := newTestServer(t, nil)
	seed(t, srv)
	w := do(t, srv, http.MethodGet, base+"/similar?threshold=0.8", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_Events(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+base+"/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	nextEvent := func() (string, string) {
		var name, data string
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
		return name, data
	}

	name, data := nextEvent()
	assert.Equal(t, "ready", name)
	assert.JSONEq(t, `{"version":0}`, data)

	w := do(t, srv, http.MethodPost, base+"/nodes", node("SYS-1", "SYS"))
	require.Equal(t, http.StatusCreated, w.Code)

	name, data = nextEvent()
	assert.Equal(t, "node_add", name)
	assert.Contains(t, data, `"id":"SYS-1"`)
}

func TestServer_EventsWithoutHub(t *testing.T) {
	srv := newTestServer(t, func(d *server.Deps) { d.Hub = nil })
	w := do(t, srv, http.MethodGet, base+"/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_ConfigureProvider(t *testing.T) {
	store := secrets.NewMemoryStore()
	srv := newTestServer(t, func(d *server.Deps) {
		d.Config = &server.ConfigDeps{
			Secrets: store,
			ValidateProvider: func(_ context.Context, _ provider.Name, key string) error {
				switch key {
				case "bad":
					return sigilerr.New(sigilerr.CodeProviderKeyInvalid, "rejected")
				case "down":
					return sigilerr.New(sigilerr.CodeProviderKeyCheckFailed, "unreachable")
				}
				return nil
			},
		}
	})

	w := do(t, srv, http.MethodPost, "/api/v1/config/providers", map[string]string{"type": "openai", "api_key": "good"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "keyring://ontograph/openai-api-key", decode[map[string]string](t, w)["key_uri"])
	got, err := store.Retrieve(secrets.Service, "openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "good", got)

	w = do(t, srv, http.MethodPost, "/api/v1/config/providers", map[string]string{"type": "openai", "api_key": "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/config/providers", map[string]string{"type": "openai", "api_key": "down"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/config/providers", map[string]string{"type": "acme", "api_key": "good"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodGet, "/api/v1/config/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"providers":[]`)
}
