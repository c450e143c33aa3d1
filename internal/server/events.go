// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/sigil-dev/ontograph/internal/store"
)

// eventBuffer is the per-connection queue; a client that falls further
// behind loses events rather than stalling writers.
const eventBuffer = 256

func (s *Server) registerEventRoute() {
	s.router.Get(scopePrefix+"/events", s.handleEvents)

	// The stream needs the raw ResponseWriter, so it is served by chi and
	// documented here by hand.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "stream-events",
		Method:      http.MethodGet,
		Path:        scopePrefix + "/events",
		Summary:     "Stream graph change events via SSE",
		Description: "Opens the scope if needed, then emits a ready event carrying the current version followed by one event per graph mutation.",
		Tags:        []string{"events"},
		Parameters: []*huma.Param{
			{Name: "workspace", In: "path", Required: true, Schema: &huma.Schema{Type: "string"}},
			{Name: "system", In: "path", Required: true, Schema: &huma.Schema{Type: "string"}},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Server-sent event stream",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{Type: "string", Description: "Server-sent event stream"},
					},
				},
			},
			"503": {Description: "Event hub not configured"},
		},
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		http.Error(w, `{"error":"event hub not configured"}`, http.StatusServiceUnavailable)
		return
	}
	scope := store.Scope{WorkspaceID: chi.URLParam(r, "workspace"), SystemID: chi.URLParam(r, "system")}

	// Subscribe before reading the version so no event between the two is lost.
	ch, cancel := s.deps.Hub.Subscribe(scope.WorkspaceID, scope.SystemID, eventBuffer)
	defer cancel()

	ws, err := s.deps.Workspaces.Open(r.Context(), scope)
	if err != nil {
		s.writeError(w, err, "open")
		return
	}
	version, err := ws.Service.Version()
	if err != nil {
		s.writeError(w, err, "version")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	writeEvent := func(name string, payload any) bool {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("marshaling event", "error", err)
			return true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	if !writeEvent("ready", map[string]int64{"version": version}) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !writeEvent(string(msg.Event.Kind), msg.Event) {
				return
			}
		}
	}
}

// writeError reports err as JSON for handlers outside huma, with the same
// status mapping and redaction as apiError.
func (s *Server) writeError(w http.ResponseWriter, err error, op string) {
	var se huma.StatusError
	if !errors.As(s.apiError(err, op), &se) {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.GetStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": se.Error()})
}
