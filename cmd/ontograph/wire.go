// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sigil-dev/ontograph/internal/assist"
	"github.com/sigil-dev/ontograph/internal/broadcast"
	"github.com/sigil-dev/ontograph/internal/config"
	"github.com/sigil-dev/ontograph/internal/provider"
	anthropicprov "github.com/sigil-dev/ontograph/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/ontograph/internal/provider/google"
	openaiprov "github.com/sigil-dev/ontograph/internal/provider/openai"
	"github.com/sigil-dev/ontograph/internal/server"
	"github.com/sigil-dev/ontograph/internal/service"
	"github.com/sigil-dev/ontograph/internal/store"
	_ "github.com/sigil-dev/ontograph/internal/store/neo4j"  // register neo4j backend
	_ "github.com/sigil-dev/ontograph/internal/store/sqlite" // register sqlite backend
	"github.com/sigil-dev/ontograph/internal/workspace"
	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// healthReporter is implemented by every concrete provider.
type healthReporter interface {
	Name() string
	Health() *provider.HealthTracker
}

type trackedProvider struct {
	role string
	healthReporter
}

// Runtime holds all wired subsystems and manages their lifecycle.
type Runtime struct {
	Workspaces *workspace.Manager
	Hub        *broadcast.Hub
	Embedder   provider.Embedder
	Responder  provider.Responder
	Server     *server.Server

	tracked []trackedProvider
}

// openManager opens the backing stores and providers and returns a workspace
// manager over them. The hub, when given, receives every scope's events.
func openManager(ctx context.Context, cfg *config.Config, hub *broadcast.Hub, logger *slog.Logger) (*workspace.Manager, provider.Embedder, []trackedProvider, error) {
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, nil, nil, err
	}
	storeCfg := cfg.StoreConfig()

	graphs, err := store.NewGraphStore(storeCfg, dataDir)
	if err != nil {
		return nil, nil, nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "opening graph store")
	}

	var tracked []trackedProvider
	opts := []workspace.Option{workspace.WithLogger(logger)}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		_ = graphs.Close()
		return nil, nil, nil, err
	}
	if embedder != nil {
		vectors, err := store.NewVectorStore(storeCfg, dataDir)
		if err != nil {
			_ = graphs.Close()
			return nil, nil, nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "opening vector store")
		}
		opts = append(opts,
			workspace.WithServiceOptions(service.WithEmbedder(embedder)),
			workspace.WithSemanticCache(vectors, embedder),
		)
		if hr, ok := embedder.(healthReporter); ok {
			tracked = append(tracked, trackedProvider{role: "embeddings", healthReporter: hr})
		}
	}

	if hub != nil {
		opts = append(opts, workspace.WithOpenHook(func(ws *workspace.Workspace) {
			if _, err := ws.Service.Subscribe(hub.Listener(ws.Scope.WorkspaceID, ws.Scope.SystemID)); err != nil {
				logger.Warn("subscribing event hub", "scope", ws.Scope.String(), "error", err)
			}
		}))
	}

	return workspace.NewManager(graphs, cfg.ServiceConfig(), opts...), embedder, tracked, nil
}

// Wire creates all subsystems and wires them together. ctx bounds the
// Redis forwarding loop, so it should live as long as the server.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	hubOpts := []broadcast.HubOption{broadcast.WithLogger(logger)}
	var redis *broadcast.RedisPublisher
	if cfg.Broadcast.Addr != "" {
		var err error
		redis, err = broadcast.NewRedisPublisher(ctx, cfg.Broadcast, logger)
		if err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "connecting broadcast redis")
		}
		hubOpts = append(hubOpts, broadcast.WithPublisher(redis, 0))
	}
	hub := broadcast.NewHub(hubOpts...)

	manager, embedder, tracked, err := openManager(ctx, cfg, hub, logger)
	if err != nil {
		_ = hub.Close()
		return nil, err
	}
	rt := &Runtime{Workspaces: manager, Hub: hub, Embedder: embedder, tracked: tracked}

	responders, err := newResponders(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	for _, r := range responders {
		if hr, ok := r.(healthReporter); ok {
			rt.tracked = append(rt.tracked, trackedProvider{role: "assistant", healthReporter: hr})
		}
	}
	switch len(responders) {
	case 0:
	case 1:
		rt.Responder = responders[0]
	default:
		failover, err := provider.NewFailover(logger, responders...)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Responder = failover
	}

	if redis != nil {
		if err := redis.Forward(ctx, hub.Deliver); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	srv, err := server.New(cfg.Networking, server.Deps{
		Workspaces: manager,
		Hub:        hub,
		Responder:  rt.Responder,
		Assist: assist.Config{
			Model:           cfg.Assistant.Model,
			MaxTokens:       cfg.Assistant.MaxTokens,
			MaxContextNodes: cfg.Assistant.MaxContextNodes,
		},
		Config: &server.ConfigDeps{
			Secrets:          secretStoreFactory(),
			ValidateProvider: validateProviderKey,
			Providers:        rt.providerStatuses,
		},
		Logger: logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "creating server")
	}
	rt.Server = srv
	return rt, nil
}

func (rt *Runtime) providerStatuses() []provider.Status {
	out := make([]provider.Status, 0, len(rt.tracked))
	for _, p := range rt.tracked {
		out = append(out, provider.Status{Provider: p.Name(), Role: p.role, Health: p.Health().Metrics()})
	}
	return out
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Server.Start(ctx)
}

// Close releases all resources held by the runtime.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Server != nil {
		rt.Server.Close()
	}
	if rt.Responder != nil {
		errs = append(errs, rt.Responder.Close())
	}
	if rt.Workspaces != nil {
		errs = append(errs, rt.Workspaces.Shutdown(context.Background()))
	}
	if rt.Hub != nil {
		errs = append(errs, rt.Hub.Close())
	}
	return errors.Join(errs...)
}

func newEmbedder(ctx context.Context, cfg *config.Config) (provider.Embedder, error) {
	p := cfg.Providers[cfg.Embeddings.Provider]
	switch cfg.Embeddings.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case "openai":
		return openaiprov.NewEmbedder(openaiprov.Config{
			APIKey:     p.APIKey,
			BaseURL:    p.BaseURL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	case "google":
		return googleprov.New(ctx, googleprov.Config{
			APIKey:     p.APIKey,
			BaseURL:    p.BaseURL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "unsupported embeddings provider %q", cfg.Embeddings.Provider)
	}
}

// newResponders builds the primary responder followed by the failover chain.
// The configured model applies to the primary only.
func newResponders(cfg *config.Config) ([]provider.Responder, error) {
	if cfg.Assistant.Provider == config.ProviderNone || cfg.Assistant.Provider == "" {
		return nil, nil
	}
	names := append([]string{cfg.Assistant.Provider}, cfg.Assistant.Failover...)

	out := make([]provider.Responder, 0, len(names))
	for i, name := range names {
		model := ""
		if i == 0 {
			model = cfg.Assistant.Model
		}
		r, err := newResponder(name, model, cfg.Providers[name])
		if err != nil {
			for _, built := range out {
				_ = built.Close()
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func newResponder(name, model string, p config.ProviderConfig) (provider.Responder, error) {
	switch name {
	case "anthropic":
		return anthropicprov.New(anthropicprov.Config{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: model})
	case "openai":
		return openaiprov.NewResponder(openaiprov.Config{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: model})
	default:
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "unsupported assistant provider %q", name)
	}
}
