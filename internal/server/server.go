// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package server exposes open scopes over a REST API with a server-sent
// event stream of graph changes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sigil-dev/ontograph/internal/assist"
	"github.com/sigil-dev/ontograph/internal/broadcast"
	"github.com/sigil-dev/ontograph/internal/provider"
	"github.com/sigil-dev/ontograph/internal/workspace"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// Version is reported in the OpenAPI document.
var Version = "0.1.0"

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string          `mapstructure:"listen"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// Deps are the components the routes operate on. Workspaces is required.
type Deps struct {
	Workspaces *workspace.Manager
	Hub        *broadcast.Hub
	Responder  provider.Responder
	Assist     assist.Config
	Config     *ConfigDeps
	Logger     *slog.Logger
}

// Server wraps a chi router with huma API and HTTP server.
type Server struct {
	router chi.Router
	api    huma.API
	cfg    Config
	deps   Deps
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Server with chi router, huma API, health endpoint, CORS, and
// every scope route.
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "listen address is required")
	}
	if deps.Workspaces == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "workspace manager is required")
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "server"),
		done:   make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(cfg.RateLimit, s.done))

	humaConfig := huma.DefaultConfig("Ontograph", Version)
	humaConfig.Info.Description = "Versioned in-memory system ontology graphs"
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	s.router = r
	s.api = api

	s.registerScopeRoutes()
	s.registerGraphRoutes()
	s.registerVariantRoutes()
	s.registerEventRoute()
	if deps.Config != nil {
		s.registerConfigRoutes()
	}
	return s, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	// WriteTimeout stays zero by default: event streams are long-lived.
	srv := &http.Server{
		Handler:     s.router,
		ReadTimeout: s.cfg.ReadTimeout,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	if s.cfg.WriteTimeout > 0 {
		srv.WriteTimeout = s.cfg.WriteTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeServerInternalFailure, "shutting down")
	}
	return <-errCh
}

// Close stops background goroutines. It is idempotent.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// apiError converts a coded error into a huma status error. Server-side
// failures are logged and reported without detail.
func (s *Server) apiError(err error, op string) error {
	status := sigilerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusBadGateway {
		s.logger.Error("request failed", "op", op, "error", err, "code", sigilerr.CodeOf(err))
		return huma.Error500InternalServerError("internal server error")
	}
	return huma.NewError(status, err.Error())
}
